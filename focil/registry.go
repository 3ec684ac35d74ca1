// registry.go implements the obligation registry: a content-addressed store
// of pending obligations with secondary indices by proposer and by deadline
// block. All index mutations happen under one lock together with the arena
// mutation, so the indices can never point at a missing record.
package focil

import (
	"errors"
	"sort"
	"sync"

	"github.com/bpimesh/bpimesh/core/types"
	"github.com/bpimesh/bpimesh/log"
	"github.com/bpimesh/bpimesh/metrics"
)

// Registry errors.
var (
	ErrRegistryFull        = errors.New("focil: obligation registry at capacity")
	ErrDuplicateObligation = errors.New("focil: obligation already registered")
	ErrObligationNotFound  = errors.New("focil: obligation not found")
	ErrNotPending          = errors.New("focil: obligation is not pending")
)

// ObligationRegistry stores pending obligations. Thread-safe.
type ObligationRegistry struct {
	mu sync.RWMutex

	config Config

	arena      map[types.Hash]*PendingObligation
	byProposer map[types.NodeID]map[types.Hash]struct{}
	byDeadline map[uint64]map[types.Hash]struct{}

	logger *log.Logger

	registered *metrics.Counter
	included   *metrics.Counter
	expired    *metrics.Counter
	pending    *metrics.Gauge
}

// NewObligationRegistry creates an empty registry. Zero config fields are
// backfilled from DefaultConfig.
func NewObligationRegistry(config Config) (*ObligationRegistry, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}
	return &ObligationRegistry{
		config:     config,
		arena:      make(map[types.Hash]*PendingObligation),
		byProposer: make(map[types.NodeID]map[types.Hash]struct{}),
		byDeadline: make(map[uint64]map[types.Hash]struct{}),
		logger:     log.Default().Module("focil"),
		registered: metrics.NewCounter("focil_obligations_registered_total"),
		included:   metrics.NewCounter("focil_obligations_included_total"),
		expired:    metrics.NewCounter("focil_obligations_expired_total"),
		pending:    metrics.NewGauge("focil_obligations_pending"),
	}, nil
}

// Config returns the registry's effective configuration.
func (r *ObligationRegistry) Config() Config { return r.config }

// Register records a new obligation for the proposer at the current block.
// The deadline is currentBlock plus the configured timeout. Registering an
// identical duty twice returns ErrDuplicateObligation.
func (r *ObligationRegistry) Register(typ ObligationType, txHash types.Hash, proposer types.NodeID, currentBlock uint64) (PendingObligation, error) {
	deadline := currentBlock + r.config.ObligationTimeoutBlocks
	id, err := ObligationID(typ, txHash, proposer, currentBlock, deadline)
	if err != nil {
		return PendingObligation{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.arena) >= r.config.MaxPendingObligations {
		return PendingObligation{}, ErrRegistryFull
	}
	if _, exists := r.arena[id]; exists {
		return PendingObligation{}, ErrDuplicateObligation
	}

	ob := &PendingObligation{
		ID:             id,
		Type:           typ,
		TxHash:         txHash,
		Proposer:       proposer,
		CreatedAtBlock: currentBlock,
		DeadlineBlock:  deadline,
		Status:         StatusPending,
	}
	r.insert(ob)

	r.registered.Inc()
	r.pending.Set(int64(len(r.arena)))
	r.logger.Debug("obligation registered",
		"id", id.Hex(),
		"proposer", string(proposer),
		"deadline", deadline,
	)
	return *ob, nil
}

// insert places the obligation into the arena and both indices. Caller
// holds the write lock.
func (r *ObligationRegistry) insert(ob *PendingObligation) {
	r.arena[ob.ID] = ob
	if r.byProposer[ob.Proposer] == nil {
		r.byProposer[ob.Proposer] = make(map[types.Hash]struct{})
	}
	r.byProposer[ob.Proposer][ob.ID] = struct{}{}
	if r.byDeadline[ob.DeadlineBlock] == nil {
		r.byDeadline[ob.DeadlineBlock] = make(map[types.Hash]struct{})
	}
	r.byDeadline[ob.DeadlineBlock][ob.ID] = struct{}{}
}

// remove drops the obligation from the arena and both indices. Caller holds
// the write lock.
func (r *ObligationRegistry) remove(ob *PendingObligation) {
	delete(r.arena, ob.ID)
	if set := r.byProposer[ob.Proposer]; set != nil {
		delete(set, ob.ID)
		if len(set) == 0 {
			delete(r.byProposer, ob.Proposer)
		}
	}
	if set := r.byDeadline[ob.DeadlineBlock]; set != nil {
		delete(set, ob.ID)
		if len(set) == 0 {
			delete(r.byDeadline, ob.DeadlineBlock)
		}
	}
}

// Get returns a copy of the obligation with the given ID.
func (r *ObligationRegistry) Get(id types.Hash) (PendingObligation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ob, ok := r.arena[id]
	if !ok {
		return PendingObligation{}, ErrObligationNotFound
	}
	return *ob, nil
}

// HasObligation reports whether any stored obligation binds the proposer to
// the given item hash.
func (r *ObligationRegistry) HasObligation(proposer types.NodeID, txHash types.Hash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id := range r.byProposer[proposer] {
		if r.arena[id].TxHash == txHash {
			return true
		}
	}
	return false
}

// MarkIncluded transitions a pending obligation to included at the given
// height. Only pending obligations can be satisfied.
func (r *ObligationRegistry) MarkIncluded(id types.Hash, height uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ob, ok := r.arena[id]
	if !ok {
		return ErrObligationNotFound
	}
	if ob.Status != StatusPending {
		return ErrNotPending
	}
	ob.Status = StatusIncluded
	ob.IncludedAtBlock = height
	r.included.Inc()
	return nil
}

// markStatus transitions an obligation's status without lifecycle checks.
// Used by enforcement when flagging findings. Caller holds no lock.
func (r *ObligationRegistry) markStatus(id types.Hash, status ObligationStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ob, ok := r.arena[id]; ok {
		ob.Status = status
	}
}

// ByProposer returns copies of the proposer's obligations sorted by
// deadline, earliest first.
func (r *ObligationRegistry) ByProposer(proposer types.NodeID) []PendingObligation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PendingObligation, 0, len(r.byProposer[proposer]))
	for id := range r.byProposer[proposer] {
		out = append(out, *r.arena[id])
	}
	sortObligations(out)
	return out
}

// DueBy returns copies of all pending obligations whose deadline is at or
// before the given block, sorted by deadline.
func (r *ObligationRegistry) DueBy(block uint64) []PendingObligation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []PendingObligation
	for deadline, set := range r.byDeadline {
		if deadline > block {
			continue
		}
		for id := range set {
			if ob := r.arena[id]; ob.Status == StatusPending {
				out = append(out, *ob)
			}
		}
	}
	sortObligations(out)
	return out
}

// PendingCount returns the number of stored obligations in any state.
func (r *ObligationRegistry) PendingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.arena)
}

// ExpireOverdue marks every pending obligation past its deadline as expired
// and returns the number transitioned.
func (r *ObligationRegistry) ExpireOverdue(currentBlock uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for _, ob := range r.arena {
		if ob.Status == StatusPending && ob.DeadlineBlock < currentBlock {
			ob.Status = StatusExpired
			n++
		}
	}
	if n > 0 {
		r.expired.Add(int64(n))
		r.logger.Debug("obligations expired", "count", n, "block", currentBlock)
	}
	return n
}

// PruneSettled drops included, expired, and flagged obligations whose
// deadline fell more than the retention window before currentBlock. Returns
// the number removed.
func (r *ObligationRegistry) PruneSettled(currentBlock uint64) int {
	retention := r.config.SlashingEvidenceRetentionBlocks

	r.mu.Lock()
	defer r.mu.Unlock()

	var victims []*PendingObligation
	for _, ob := range r.arena {
		if ob.Status == StatusPending {
			continue
		}
		if ob.DeadlineBlock+retention < currentBlock {
			victims = append(victims, ob)
		}
	}
	for _, ob := range victims {
		r.remove(ob)
	}
	r.pending.Set(int64(len(r.arena)))
	return len(victims)
}

// sortObligations orders by deadline, then by ID for determinism.
func sortObligations(obs []PendingObligation) {
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].DeadlineBlock != obs[j].DeadlineBlock {
			return obs[i].DeadlineBlock < obs[j].DeadlineBlock
		}
		return obs[i].ID.Hex() < obs[j].ID.Hex()
	})
}

// enforcement.go implements the enforcement engine: it audits published
// inclusion lists, detects obligations that went unsatisfied, and emits
// findings. Findings are deduplicated through an LRU of commitments so one
// violation never produces evidence twice across repeated sweeps.
package focil

import (
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/bpimesh/bpimesh/core/types"
	"github.com/bpimesh/bpimesh/crypto"
	"github.com/bpimesh/bpimesh/log"
	"github.com/bpimesh/bpimesh/metrics"
)

// Enforcement errors.
var (
	ErrNilRegistry = errors.New("focil: nil obligation registry")
)

// detectChunkSize is how many obligations a sweep examines between context
// cancellation checks.
const detectChunkSize = 256

// findingCacheSize bounds the dedup LRU of finding commitments.
const findingCacheSize = 4096

// EnforcementEngine audits lists and turns misses into findings and
// slashing evidence. Thread-safe.
type EnforcementEngine struct {
	mu sync.RWMutex

	config   Config
	registry *ObligationRegistry

	// signer attests generated evidence. Optional; nil engines emit
	// unsigned evidence.
	signer crypto.Signer

	// seen holds finding commitments already emitted.
	seen *lru.Cache

	evidence     map[types.Hash]*SlashingEvidence
	byProposerEv map[types.NodeID][]types.Hash

	logger *log.Logger

	findings      *metrics.Counter
	evidenceCount *metrics.Counter
	listsAudited  *metrics.Counter
	sweepLatency  *metrics.Histogram
}

// NewEnforcementEngine creates an engine over the registry. signer may be
// nil.
func NewEnforcementEngine(registry *ObligationRegistry, signer crypto.Signer) (*EnforcementEngine, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	seen, err := lru.New(findingCacheSize)
	if err != nil {
		return nil, err
	}
	return &EnforcementEngine{
		config:        registry.Config(),
		registry:      registry,
		signer:        signer,
		seen:          seen,
		evidence:      make(map[types.Hash]*SlashingEvidence),
		byProposerEv:  make(map[types.NodeID][]types.Hash),
		logger:        log.Default().Module("focil"),
		findings:      metrics.NewCounter("focil_findings_total"),
		evidenceCount: metrics.NewCounter("focil_evidence_total"),
		listsAudited:  metrics.NewCounter("focil_lists_audited_total"),
		sweepLatency:  metrics.NewHistogram("focil_detect_sweep_ms"),
	}, nil
}

// DetectMissingItems sweeps every obligation due at or before currentBlock
// against the block's published inclusion list. A nil list means no list
// was published: every due obligation is then a deadline violation. When a
// list exists, obligations absent from it classify as missing transactions.
// Obligations reported here transition to flagged status and are never
// reported again.
func (e *EnforcementEngine) DetectMissingItems(ctx context.Context, currentBlock uint64, list *InclusionList) ([]MissingItem, error) {
	timer := metrics.NewTimer(e.sweepLatency)
	defer timer.Stop()

	var included map[types.Hash]struct{}
	if list != nil {
		included = make(map[types.Hash]struct{}, len(list.Transactions))
		for _, tx := range list.Transactions {
			included[tx] = struct{}{}
		}
	}

	due := e.registry.DueBy(currentBlock)

	var found []MissingItem
	for i, ob := range due {
		if i%detectChunkSize == 0 {
			if err := ctx.Err(); err != nil {
				return found, err
			}
		}

		if _, ok := included[ob.TxHash]; ok {
			if err := e.registry.MarkIncluded(ob.ID, currentBlock); err == nil {
				continue
			}
			continue
		}

		typ := EvidenceDeadlineViolation
		if list != nil {
			typ = EvidenceMissingTransaction
		}

		item := MissingItem{
			ObligationID:    ob.ID,
			TxHash:          ob.TxHash,
			Proposer:        ob.Proposer,
			DeadlineBlock:   ob.DeadlineBlock,
			DetectedAtBlock: currentBlock,
			Type:            typ,
		}
		commitment, err := item.commit()
		if err != nil {
			return found, err
		}
		item.Commitment = commitment

		if _, dup := e.seen.Get(commitment); dup {
			continue
		}
		e.seen.Add(commitment, struct{}{})
		e.registry.markStatus(ob.ID, StatusFlaggedMissing)

		found = append(found, item)
		e.findings.Inc()
	}

	if len(found) > 0 {
		e.logger.Warn("missing inclusion items detected",
			"block", currentBlock,
			"count", len(found),
		)
	}
	return found, nil
}

// VerifyList is the full verification contract for a published list:
// structural validity plus every committed item being backed by one of the
// proposer's obligations in the store. Lists naming unknown items fail.
func (e *EnforcementEngine) VerifyList(list *InclusionList, proposerPubkey []byte) bool {
	if !VerifyListStructure(list, proposerPubkey, e.config.MaxListSize) {
		return false
	}
	for _, tx := range list.Transactions {
		if !e.registry.HasObligation(list.Proposer, tx) {
			return false
		}
	}
	return true
}

// AuditList verifies a published list and cross-checks its contents against
// the proposer's registered obligations. Valid entries satisfy their
// obligations; entries with no matching obligation and structurally invalid
// lists produce findings.
func (e *EnforcementEngine) AuditList(list *InclusionList, proposerPubkey []byte, currentBlock uint64) ([]MissingItem, error) {
	e.listsAudited.Inc()

	if !VerifyListStructure(list, proposerPubkey, e.config.MaxListSize) {
		item := MissingItem{
			Proposer:        listProposer(list),
			DetectedAtBlock: currentBlock,
			Type:            EvidenceInvalidProposal,
		}
		commitment, err := item.commit()
		if err != nil {
			return nil, err
		}
		item.Commitment = commitment
		if _, dup := e.seen.Get(commitment); dup {
			return nil, nil
		}
		e.seen.Add(commitment, struct{}{})
		e.findings.Inc()
		e.logger.Warn("invalid inclusion list",
			"proposer", string(item.Proposer),
			"block", currentBlock,
		)
		return []MissingItem{item}, nil
	}

	obligated := make(map[types.Hash]types.Hash)
	for _, ob := range e.registry.ByProposer(list.Proposer) {
		if ob.Status == StatusPending {
			obligated[ob.TxHash] = ob.ID
		}
	}

	var found []MissingItem
	for _, tx := range list.Transactions {
		id, ok := obligated[tx]
		if ok {
			// Inclusion observed; errors only mean a concurrent sweep
			// settled the obligation first.
			_ = e.registry.MarkIncluded(id, currentBlock)
			continue
		}

		item := MissingItem{
			TxHash:          tx,
			Proposer:        list.Proposer,
			DetectedAtBlock: currentBlock,
			Type:            EvidenceIncorrectInclusion,
		}
		commitment, err := item.commit()
		if err != nil {
			return found, err
		}
		item.Commitment = commitment
		if _, dup := e.seen.Get(commitment); dup {
			continue
		}
		e.seen.Add(commitment, struct{}{})
		found = append(found, item)
		e.findings.Inc()
	}
	return found, nil
}

// GetProposerRequirements returns the proposer's pending obligations due
// within the enforcement window of currentBlock, earliest deadline first.
func (e *EnforcementEngine) GetProposerRequirements(proposer types.NodeID, currentBlock uint64) []PendingObligation {
	horizon := currentBlock + e.config.EnforcementWindowBlocks

	var out []PendingObligation
	for _, ob := range e.registry.ByProposer(proposer) {
		if ob.Status == StatusPending && ob.DeadlineBlock <= horizon {
			out = append(out, ob)
		}
	}
	return out
}

// listProposer tolerates nil lists when attributing invalid proposals.
func listProposer(list *InclusionList) types.NodeID {
	if list == nil {
		return ""
	}
	return list.Proposer
}

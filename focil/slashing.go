// slashing.go assembles findings into content-addressed slashing evidence,
// stores it for the retention window, and exposes the cleanup entry point
// that advances obligation lifecycles and prunes settled state.
package focil

import (
	"errors"
	"fmt"

	"github.com/bpimesh/bpimesh/core/types"
)

// Slashing errors.
var (
	ErrNoFindings       = errors.New("focil: no findings to build evidence from")
	ErrMixedProposers   = errors.New("focil: findings span multiple proposers")
	ErrEvidenceExists   = errors.New("focil: evidence already recorded")
	ErrEvidenceNotFound = errors.New("focil: evidence not found")
)

// GenerateSlashingEvidence packages findings against one proposer into a
// signed evidence record spanning the given block range. The violation
// classification reflects the most severe finding present, and the severity
// scores 10 per finding plus each finding's type weight.
func (e *EnforcementEngine) GenerateSlashingEvidence(items []MissingItem, blockRange [2]uint64) (*SlashingEvidence, error) {
	if len(items) == 0 {
		return nil, ErrNoFindings
	}
	proposer := items[0].Proposer
	for i := range items {
		if items[i].Proposer != proposer {
			return nil, ErrMixedProposers
		}
	}

	violation := classifyViolation(items)
	severity := EvidenceSeverity(items)

	id, err := evidenceID(proposer, violation, items, severity, blockRange)
	if err != nil {
		return nil, fmt.Errorf("focil: derive evidence id: %w", err)
	}

	ev := &SlashingEvidence{
		ID:         id,
		Proposer:   proposer,
		Violation:  violation,
		Items:      append([]MissingItem{}, items...),
		Severity:   severity,
		BlockRange: blockRange,
	}
	if e.signer != nil {
		sig, err := e.signer.Sign(id.Bytes())
		if err != nil {
			return nil, fmt.Errorf("focil: sign evidence: %w", err)
		}
		ev.ReporterSignature = sig
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.evidence[id]; exists {
		return nil, ErrEvidenceExists
	}
	e.evidence[id] = ev
	e.byProposerEv[proposer] = append(e.byProposerEv[proposer], id)

	e.evidenceCount.Inc()
	e.logger.Warn("slashing evidence generated",
		"id", id.Hex(),
		"proposer", string(proposer),
		"violation", violation.String(),
		"severity", severity,
		"items", len(items),
		"from_block", blockRange[0],
		"to_block", blockRange[1],
	)

	out := *ev
	return &out, nil
}

// EvidenceByID returns a copy of the stored evidence record.
func (e *EnforcementEngine) EvidenceByID(id types.Hash) (SlashingEvidence, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ev, ok := e.evidence[id]
	if !ok {
		return SlashingEvidence{}, ErrEvidenceNotFound
	}
	out := *ev
	out.Items = append([]MissingItem{}, ev.Items...)
	return out, nil
}

// EvidenceForProposer returns copies of all retained evidence against the
// proposer, oldest first.
func (e *EnforcementEngine) EvidenceForProposer(proposer types.NodeID) []SlashingEvidence {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := e.byProposerEv[proposer]
	out := make([]SlashingEvidence, 0, len(ids))
	for _, id := range ids {
		ev := e.evidence[id]
		cp := *ev
		cp.Items = append([]MissingItem{}, ev.Items...)
		out = append(out, cp)
	}
	return out
}

// CleanupResult reports what one cleanup pass changed.
type CleanupResult struct {
	// ExpiredObligations is how many pending obligations passed their
	// deadline and were marked expired.
	ExpiredObligations int

	// PrunedObligations is how many settled obligations aged out of
	// retention and were dropped.
	PrunedObligations int

	// PrunedEvidence is how many evidence records aged out of retention.
	PrunedEvidence int
}

// Cleanup advances lifecycles for the given block: overdue pending
// obligations expire, settled obligations and evidence past the retention
// window are dropped. Idempotent for a fixed block.
func (e *EnforcementEngine) Cleanup(currentBlock uint64) CleanupResult {
	result := CleanupResult{
		ExpiredObligations: e.registry.ExpireOverdue(currentBlock),
		PrunedObligations:  e.registry.PruneSettled(currentBlock),
	}

	retention := e.config.SlashingEvidenceRetentionBlocks

	e.mu.Lock()
	defer e.mu.Unlock()

	for id, ev := range e.evidence {
		if ev.BlockRange[1]+retention < currentBlock {
			delete(e.evidence, id)
			e.removeProposerEvidence(ev.Proposer, id)
			result.PrunedEvidence++
		}
	}

	if result != (CleanupResult{}) {
		e.logger.Debug("cleanup pass",
			"block", currentBlock,
			"expired", result.ExpiredObligations,
			"pruned_obligations", result.PrunedObligations,
			"pruned_evidence", result.PrunedEvidence,
		)
	}
	return result
}

// removeProposerEvidence drops one ID from the per-proposer index. Caller
// holds the write lock.
func (e *EnforcementEngine) removeProposerEvidence(proposer types.NodeID, id types.Hash) {
	ids := e.byProposerEv[proposer]
	for i := range ids {
		if ids[i] == id {
			e.byProposerEv[proposer] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(e.byProposerEv[proposer]) == 0 {
		delete(e.byProposerEv, proposer)
	}
}

// Stats is a point-in-time snapshot of enforcement state.
type Stats struct {
	StoredObligations int
	EvidenceRecords   int
	FindingsEmitted   int64
	ListsAudited      int64
}

// Snapshot returns current enforcement statistics.
func (e *EnforcementEngine) Snapshot() Stats {
	e.mu.RLock()
	evCount := len(e.evidence)
	e.mu.RUnlock()

	return Stats{
		StoredObligations: e.registry.PendingCount(),
		EvidenceRecords:   evCount,
		FindingsEmitted:   e.findings.Value(),
		ListsAudited:      e.listsAudited.Value(),
	}
}

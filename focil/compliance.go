// compliance.go implements the advisory compliance check proposers run
// before publishing: does the list they are about to sign actually cover
// everything due? Non-compliance here is logged and reported, never
// punished; enforcement handles punishment after publication.
package focil

import (
	"github.com/bpimesh/bpimesh/core/types"
	"github.com/bpimesh/bpimesh/log"
)

// ComplianceReport summarizes one pre-publication check.
type ComplianceReport struct {
	// Proposer is the checked validator.
	Proposer types.NodeID

	// Height is the block height the list targets.
	Height uint64

	// Required is how many obligations were due within the window.
	Required int

	// Missing lists the due item hashes absent from the list.
	Missing []types.Hash

	// Compliant is true when nothing due is missing.
	Compliant bool
}

// ComplianceChecker validates draft lists against the obligation registry.
type ComplianceChecker struct {
	engine *EnforcementEngine
	logger *log.Logger
}

// NewComplianceChecker creates a checker over the engine's registry.
func NewComplianceChecker(engine *EnforcementEngine) *ComplianceChecker {
	return &ComplianceChecker{
		engine: engine,
		logger: log.Default().Module("focil"),
	}
}

// Check compares the list against the proposer's due obligations at the
// list's height. Missing items are reported and logged; the list stays
// publishable either way.
func (c *ComplianceChecker) Check(list *InclusionList) ComplianceReport {
	report := ComplianceReport{Compliant: true}
	if list == nil {
		report.Compliant = false
		return report
	}
	report.Proposer = list.Proposer
	report.Height = list.Height

	included := make(map[types.Hash]struct{}, len(list.Transactions))
	for _, tx := range list.Transactions {
		included[tx] = struct{}{}
	}

	required := c.engine.GetProposerRequirements(list.Proposer, list.Height)
	report.Required = len(required)
	for _, ob := range required {
		if _, ok := included[ob.TxHash]; !ok {
			report.Missing = append(report.Missing, ob.TxHash)
		}
	}
	report.Compliant = len(report.Missing) == 0

	if !report.Compliant {
		c.logger.Warn("draft list misses due obligations",
			"proposer", string(list.Proposer),
			"height", list.Height,
			"required", report.Required,
			"missing", len(report.Missing),
		)
	}
	return report
}

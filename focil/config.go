package focil

import "errors"

// Config errors.
var (
	ErrConfigWindow = errors.New("focil: enforcement window must not exceed obligation timeout")
)

// Config holds the obligation and enforcement parameters.
type Config struct {
	// MaxPendingObligations bounds the registry size.
	MaxPendingObligations int

	// ObligationTimeoutBlocks is how many blocks a proposer has to satisfy
	// a new obligation.
	ObligationTimeoutBlocks uint64

	// MaxListSize bounds the number of transactions per inclusion list.
	MaxListSize int

	// EnforcementWindowBlocks is how far ahead of a height list building
	// and proposer requirements look for obligations coming due.
	EnforcementWindowBlocks uint64

	// SlashingEvidenceRetentionBlocks is how long generated evidence and
	// settled obligations stay queryable before pruning.
	SlashingEvidenceRetentionBlocks uint64
}

// DefaultConfig returns the standard enforcement parameters.
func DefaultConfig() Config {
	return Config{
		MaxPendingObligations:           10000,
		ObligationTimeoutBlocks:         32,
		MaxListSize:                     1000,
		EnforcementWindowBlocks:         8,
		SlashingEvidenceRetentionBlocks: 256,
	}
}

// withDefaults backfills zero fields from DefaultConfig and validates the
// result.
func (c Config) withDefaults() (Config, error) {
	def := DefaultConfig()
	if c.MaxPendingObligations == 0 {
		c.MaxPendingObligations = def.MaxPendingObligations
	}
	if c.ObligationTimeoutBlocks == 0 {
		c.ObligationTimeoutBlocks = def.ObligationTimeoutBlocks
	}
	if c.MaxListSize == 0 {
		c.MaxListSize = def.MaxListSize
	}
	if c.EnforcementWindowBlocks == 0 {
		c.EnforcementWindowBlocks = def.EnforcementWindowBlocks
	}
	if c.SlashingEvidenceRetentionBlocks == 0 {
		c.SlashingEvidenceRetentionBlocks = def.SlashingEvidenceRetentionBlocks
	}
	if c.EnforcementWindowBlocks > c.ObligationTimeoutBlocks {
		return c, ErrConfigWindow
	}
	return c, nil
}

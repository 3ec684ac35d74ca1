package types

import "time"

// RoundInfo carries the per-round clock values consumed by leader selection
// and obligation-window computation. It is supplied by the chain driver and
// must be monotonic in (Height, Round).
type RoundInfo struct {
	// Height is the block height the round proposes for.
	Height uint64

	// Round is the consensus round within the height (0 on first attempt).
	Round uint64

	// Epoch is the validator-set epoch the round belongs to.
	Epoch uint64

	// Timestamp is the wall-clock time the round started. Informational;
	// never an input to VRF derivation.
	Timestamp time.Time
}

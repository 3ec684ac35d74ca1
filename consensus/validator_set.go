// validator_set.go implements the validator registry backing leader
// selection: indexed lookups by node ID and sequential index, stake
// tracking, activation flags, and the VRF/BLS public keys other nodes use
// to verify a validator's proofs and signatures.
package consensus

import (
	"errors"
	"sort"
	"sync"

	"github.com/bpimesh/bpimesh/core/types"
)

// Validator set errors.
var (
	ErrValidatorSetFull   = errors.New("validator_set: registry at capacity")
	ErrDuplicateValidator = errors.New("validator_set: duplicate node id")
	ErrValidatorNotFound  = errors.New("validator_set: validator not found")
	ErrZeroStake          = errors.New("validator_set: stake must be positive")
)

// MaxValidators bounds the registry size.
const MaxValidators = 1 << 20

// ValidatorInfo describes one registered validator.
type ValidatorInfo struct {
	// Index is the sequential registry index, assigned at registration.
	Index uint64

	// NodeID is the validator's stable network identity.
	NodeID types.NodeID

	// Stake is the validator's bonded stake in base units.
	Stake uint64

	// Active reports whether the validator participates in selection.
	Active bool

	// VRFPublicKey is the compressed VRF public point used to verify the
	// validator's selection proofs.
	VRFPublicKey []byte

	// BLSPublicKey is the compressed BLS public key used to verify the
	// validator's inclusion-list signatures.
	BLSPublicKey []byte
}

// ValidatorSet is a thread-safe registry of validators.
type ValidatorSet struct {
	mu sync.RWMutex

	byID    map[types.NodeID]*ValidatorInfo
	ordered []*ValidatorInfo
}

// NewValidatorSet creates an empty validator set.
func NewValidatorSet() *ValidatorSet {
	return &ValidatorSet{
		byID: make(map[types.NodeID]*ValidatorInfo),
	}
}

// Register adds a validator and returns its assigned index. The validator
// starts active.
func (vs *ValidatorSet) Register(id types.NodeID, stake uint64, vrfPub, blsPub []byte) (uint64, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if len(vs.ordered) >= MaxValidators {
		return 0, ErrValidatorSetFull
	}
	if _, exists := vs.byID[id]; exists {
		return 0, ErrDuplicateValidator
	}
	if stake == 0 {
		return 0, ErrZeroStake
	}

	info := &ValidatorInfo{
		Index:        uint64(len(vs.ordered)),
		NodeID:       id,
		Stake:        stake,
		Active:       true,
		VRFPublicKey: append([]byte{}, vrfPub...),
		BLSPublicKey: append([]byte{}, blsPub...),
	}
	vs.byID[id] = info
	vs.ordered = append(vs.ordered, info)
	return info.Index, nil
}

// Get returns a copy of the validator record for id.
func (vs *ValidatorSet) Get(id types.NodeID) (ValidatorInfo, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	info, ok := vs.byID[id]
	if !ok {
		return ValidatorInfo{}, ErrValidatorNotFound
	}
	return *info, nil
}

// GetByIndex returns a copy of the validator record at the given index.
func (vs *ValidatorSet) GetByIndex(index uint64) (ValidatorInfo, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if index >= uint64(len(vs.ordered)) {
		return ValidatorInfo{}, ErrValidatorNotFound
	}
	return *vs.ordered[index], nil
}

// UpdateStake replaces the validator's stake.
func (vs *ValidatorSet) UpdateStake(id types.NodeID, stake uint64) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	info, ok := vs.byID[id]
	if !ok {
		return ErrValidatorNotFound
	}
	if stake == 0 {
		return ErrZeroStake
	}
	info.Stake = stake
	return nil
}

// SetActive flips a validator's participation flag.
func (vs *ValidatorSet) SetActive(id types.NodeID, active bool) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	info, ok := vs.byID[id]
	if !ok {
		return ErrValidatorNotFound
	}
	info.Active = active
	return nil
}

// Active returns copies of all active validators ordered by node ID, so
// iteration order is deterministic across nodes.
func (vs *ValidatorSet) Active() []ValidatorInfo {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	out := make([]ValidatorInfo, 0, len(vs.ordered))
	for _, info := range vs.ordered {
		if info.Active {
			out = append(out, *info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// TotalActiveStake sums the stake of all active validators.
func (vs *ValidatorSet) TotalActiveStake() uint64 {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	var total uint64
	for _, info := range vs.ordered {
		if info.Active {
			total += info.Stake
		}
	}
	return total
}

// Len returns the number of registered validators, active or not.
func (vs *ValidatorSet) Len() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return len(vs.ordered)
}

// VRF-based stake-weighted leader selection.
//
// Each candidate's VRF output for the round is reduced to a selection hash,
// and the winner is the candidate maximizing hash-times-stake in fixed-width
// integer arithmetic. The scheme is deterministic per (validator set, round),
// publicly verifiable from the VRF proof alone, and stake-monotonic: raising
// a validator's stake can never lower its chance of winning.
//
// The selection probability carried on results is a diagnostic estimate of
// the candidate's stake share raised to the configured weight factor; the
// binding lottery is the integer weight comparison, never the float.
package consensus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"github.com/bpimesh/bpimesh/core/types"
	"github.com/bpimesh/bpimesh/crypto"
	"github.com/bpimesh/bpimesh/crypto/vrf"
	"github.com/bpimesh/bpimesh/log"
	"github.com/bpimesh/bpimesh/metrics"
)

// Leader selection errors.
var (
	ErrNoCandidates        = errors.New("leader_selection: no eligible candidates")
	ErrInvalidVRFProof     = errors.New("leader_selection: invalid vrf proof")
	ErrUnknownValidator    = errors.New("leader_selection: validator not registered")
	ErrInvalidWeightFactor = errors.New("leader_selection: stake weight factor must be positive")
	ErrProbabilityDrift    = errors.New("leader_selection: selection probability out of tolerance")
)

// probabilityTolerance bounds how far a reported selection probability may
// drift from the locally recomputed value before verification fails.
const probabilityTolerance = 0.1

// RandomnessMode selects how per-round VRF inputs are derived.
type RandomnessMode uint8

const (
	// RandomnessHeightRound derives the input from height, round and epoch.
	RandomnessHeightRound RandomnessMode = iota

	// RandomnessPrevBlockHash mixes the previous block hash into the input.
	RandomnessPrevBlockHash

	// RandomnessCustomSeed mixes a fixed configured seed into the input.
	RandomnessCustomSeed
)

// RandomnessSource describes the entropy feeding round inputs.
type RandomnessSource struct {
	Mode RandomnessMode

	// Seed is used only when Mode is RandomnessCustomSeed.
	Seed types.Hash
}

// LeaderSelectionConfig configures the selector.
type LeaderSelectionConfig struct {
	// MinStake is the minimum stake required to enter the lottery.
	MinStake uint64

	// StakeWeightFactor shapes the reported selection probability
	// (stake_share ^ factor). Must be positive.
	StakeWeightFactor float64

	// Randomness selects the round input derivation.
	Randomness RandomnessSource
}

// DefaultLeaderSelectionConfig returns the standard selection parameters.
func DefaultLeaderSelectionConfig() LeaderSelectionConfig {
	return LeaderSelectionConfig{
		MinStake:          1000,
		StakeWeightFactor: 1.0,
		Randomness:        RandomnessSource{Mode: RandomnessHeightRound},
	}
}

// CandidateScore is one validator's evaluated entry for a round.
type CandidateScore struct {
	NodeID        types.NodeID
	Stake         uint64
	SelectionHash types.Hash

	// Weight is the value the lottery compares: the top 192 bits of the
	// selection hash times the stake. Truncating the hash keeps the
	// product inside 256 bits, so the comparison stays in fixed-width
	// arithmetic; ties on the discarded low bits fall through to the
	// node ID tie break.
	Weight *uint256.Int
}

// LeaderSelectionResult records the outcome of one round's lottery together
// with everything a remote verifier needs to re-check it.
type LeaderSelectionResult struct {
	Leader types.NodeID
	Height uint64
	Round  uint64
	Epoch  uint64

	// VRFProof is the winner's serialized proof over the round input.
	VRFProof []byte

	// VRFOutput is the winner's VRF output beta.
	VRFOutput [vrf.OutputSize]byte

	// SelectionHash is derived from the output and the winner's identity.
	SelectionHash types.Hash

	// SelectionProbability estimates the winner's stake-share advantage.
	// Diagnostic only.
	SelectionProbability float64

	// Candidates is how many validators entered the lottery.
	Candidates int

	// TotalStake is the summed stake of all entrants.
	TotalStake uint64
}

// LeaderSelector runs the per-round lottery over a validator set. Provers
// are registered per validator; selection evaluates every registered,
// active, sufficiently staked validator and picks the maximum weight.
type LeaderSelector struct {
	mu sync.RWMutex

	config     LeaderSelectionConfig
	validators *ValidatorSet
	provers    map[types.NodeID]*vrf.KeyPair

	logger *log.Logger

	selections  *metrics.Counter
	verifyFails *metrics.Counter
	latency     *metrics.Histogram
}

// NewLeaderSelector creates a selector over the given validator set. Zero
// config fields are backfilled from DefaultLeaderSelectionConfig.
func NewLeaderSelector(config LeaderSelectionConfig, validators *ValidatorSet) (*LeaderSelector, error) {
	def := DefaultLeaderSelectionConfig()
	if config.MinStake == 0 {
		config.MinStake = def.MinStake
	}
	if config.StakeWeightFactor == 0 {
		config.StakeWeightFactor = def.StakeWeightFactor
	}
	if config.StakeWeightFactor < 0 {
		return nil, ErrInvalidWeightFactor
	}

	return &LeaderSelector{
		config:      config,
		validators:  validators,
		provers:     make(map[types.NodeID]*vrf.KeyPair),
		logger:      log.Default().Module("consensus"),
		selections:  metrics.NewCounter("leader_selections_total"),
		verifyFails: metrics.NewCounter("leader_verify_failures_total"),
		latency:     metrics.NewHistogram("leader_selection_ms"),
	}, nil
}

// RegisterProver installs the VRF key pair the selector uses to evaluate a
// validator's entry. The validator must already be in the set.
func (ls *LeaderSelector) RegisterProver(id types.NodeID, kp *vrf.KeyPair) error {
	if _, err := ls.validators.Get(id); err != nil {
		return ErrUnknownValidator
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.provers[id] = kp
	return nil
}

// RoundInput derives the deterministic VRF input for a round under the
// configured randomness source. Counters are packed little-endian: the
// default mode hashes height || round || epoch, the previous-hash mode
// hashes prevHash || round, and the seeded mode hashes seed || height ||
// round.
func (ls *LeaderSelector) RoundInput(round types.RoundInfo, prevHash types.Hash) []byte {
	var digest types.Hash
	switch ls.config.Randomness.Mode {
	case RandomnessPrevBlockHash:
		var rd [8]byte
		binary.LittleEndian.PutUint64(rd[:], round.Round)
		digest = crypto.DomainHashConcat(crypto.DomainVRFInput, prevHash[:], rd[:])
	case RandomnessCustomSeed:
		var hr [16]byte
		binary.LittleEndian.PutUint64(hr[:8], round.Height)
		binary.LittleEndian.PutUint64(hr[8:], round.Round)
		seed := ls.config.Randomness.Seed
		digest = crypto.DomainHashConcat(crypto.DomainVRFInput, seed[:], hr[:])
	default:
		var hre [24]byte
		binary.LittleEndian.PutUint64(hre[:8], round.Height)
		binary.LittleEndian.PutUint64(hre[8:16], round.Round)
		binary.LittleEndian.PutUint64(hre[16:], round.Epoch)
		digest = crypto.DomainHash(crypto.DomainVRFInput, hre[:])
	}
	return digest[:]
}

// SelectLeader runs the lottery for the given round and returns the winning
// validator with its proof. Validators without a registered prover are
// skipped; they cannot produce an entry.
func (ls *LeaderSelector) SelectLeader(round types.RoundInfo, prevHash types.Hash) (*LeaderSelectionResult, error) {
	timer := metrics.NewTimer(ls.latency)
	defer timer.Stop()

	input := ls.RoundInput(round, prevHash)

	ls.mu.RLock()
	defer ls.mu.RUnlock()

	var (
		best       *CandidateScore
		bestProof  *vrf.Proof
		bestOutput *vrf.Output
		totalStake uint64
		candidates int
	)

	for _, info := range ls.validators.Active() {
		if info.Stake < ls.config.MinStake {
			continue
		}
		// Eligible stake counts toward the probability denominator even
		// when the local node holds no prover for the validator.
		totalStake += info.Stake

		kp, ok := ls.provers[info.NodeID]
		if !ok {
			continue
		}

		proof, out, err := kp.Prove(input)
		if err != nil {
			return nil, fmt.Errorf("leader_selection: prove for %s: %w", info.NodeID, err)
		}

		score := scoreCandidate(info.NodeID, info.Stake, out)
		candidates++

		if best == nil || beats(score, best) {
			best = score
			bestProof = proof
			bestOutput = out
		}
	}

	if best == nil {
		return nil, ErrNoCandidates
	}

	proofBytes, err := bestProof.Bytes()
	if err != nil {
		return nil, fmt.Errorf("leader_selection: serialize proof: %w", err)
	}

	result := &LeaderSelectionResult{
		Leader:               best.NodeID,
		Height:               round.Height,
		Round:                round.Round,
		Epoch:                round.Epoch,
		VRFProof:             proofBytes,
		VRFOutput:            bestOutput.Beta,
		SelectionHash:        best.SelectionHash,
		SelectionProbability: selectionProbability(best.Stake, totalStake, ls.config.StakeWeightFactor),
		Candidates:           candidates,
		TotalStake:           totalStake,
	}

	ls.selections.Inc()
	ls.logger.Debug("leader selected",
		"height", round.Height,
		"round", round.Round,
		"leader", string(best.NodeID),
		"candidates", candidates,
		"probability", result.SelectionProbability,
	)
	return result, nil
}

// VerifyLeaderSelection re-checks a selection result: the VRF proof must
// verify under the leader's registered public key, the selection hash must
// match the output, and the reported probability must agree with the local
// recomputation within tolerance.
func (ls *LeaderSelector) VerifyLeaderSelection(result *LeaderSelectionResult, prevHash types.Hash) error {
	if result == nil {
		return ErrInvalidVRFProof
	}

	info, err := ls.validators.Get(result.Leader)
	if err != nil {
		return ErrUnknownValidator
	}
	public, err := vrf.PublicKeyFromBytes(info.VRFPublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVRFProof, err)
	}
	proof, err := vrf.ProofFromBytes(result.VRFProof)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVRFProof, err)
	}

	round := types.RoundInfo{Height: result.Height, Round: result.Round, Epoch: result.Epoch}
	input := ls.RoundInput(round, prevHash)

	ok, err := vrf.Verify(public, proof, &vrf.Output{Beta: result.VRFOutput}, input)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVRFProof, err)
	}
	if !ok {
		ls.verifyFails.Inc()
		return ErrInvalidVRFProof
	}

	expected := selectionHash(result.Leader, result.VRFOutput)
	if expected != result.SelectionHash {
		ls.verifyFails.Inc()
		return ErrInvalidVRFProof
	}

	local := selectionProbability(info.Stake, ls.eligibleStake(), ls.config.StakeWeightFactor)
	if math.Abs(local-result.SelectionProbability) > probabilityTolerance {
		ls.verifyFails.Inc()
		return ErrProbabilityDrift
	}
	return nil
}

// RankCandidates evaluates every eligible validator for the round and
// returns the entries sorted best-first. Useful for fallback leader lists
// and fairness audits.
func (ls *LeaderSelector) RankCandidates(round types.RoundInfo, prevHash types.Hash) ([]CandidateScore, error) {
	input := ls.RoundInput(round, prevHash)

	ls.mu.RLock()
	defer ls.mu.RUnlock()

	var scores []CandidateScore
	for _, info := range ls.validators.Active() {
		if info.Stake < ls.config.MinStake {
			continue
		}
		kp, ok := ls.provers[info.NodeID]
		if !ok {
			continue
		}
		_, out, err := kp.Prove(input)
		if err != nil {
			return nil, fmt.Errorf("leader_selection: prove for %s: %w", info.NodeID, err)
		}
		scores = append(scores, *scoreCandidate(info.NodeID, info.Stake, out))
	}
	if len(scores) == 0 {
		return nil, ErrNoCandidates
	}

	sort.Slice(scores, func(i, j int) bool { return beats(&scores[i], &scores[j]) })
	return scores, nil
}

// eligibleStake sums stake across active validators meeting the minimum.
func (ls *LeaderSelector) eligibleStake() uint64 {
	var total uint64
	for _, info := range ls.validators.Active() {
		if info.Stake >= ls.config.MinStake {
			total += info.Stake
		}
	}
	return total
}

// scoreCandidate derives the selection hash and lottery weight for one entry.
func scoreCandidate(id types.NodeID, stake uint64, out *vrf.Output) *CandidateScore {
	h := selectionHash(id, out.Beta)
	weight := new(uint256.Int).SetBytes(h[:])
	weight.Rsh(weight, 64)
	weight.Mul(weight, uint256.NewInt(stake))
	return &CandidateScore{
		NodeID:        id,
		Stake:         stake,
		SelectionHash: h,
		Weight:        weight,
	}
}

// beats reports whether a wins over b, with the node ID as a deterministic
// tie break.
func beats(a, b *CandidateScore) bool {
	switch a.Weight.Cmp(b.Weight) {
	case 1:
		return true
	case -1:
		return false
	default:
		return a.NodeID < b.NodeID
	}
}

// selectionHash binds a VRF output to the candidate's identity.
func selectionHash(id types.NodeID, beta [vrf.OutputSize]byte) types.Hash {
	return crypto.DomainHashConcat(crypto.DomainLeaderSelection, beta[:], []byte(id))
}

// selectionProbability is the diagnostic stake-share estimate carried on
// results: (stake / total)^factor.
func selectionProbability(stake, totalStake uint64, factor float64) float64 {
	if totalStake == 0 {
		return 0
	}
	share := float64(stake) / float64(totalStake)
	return math.Pow(share, factor)
}

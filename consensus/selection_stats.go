// selection_stats.go tracks per-validator selection counts across rounds
// and distills them into fairness metrics. The metrics answer one question:
// does the realized leader distribution match the stake distribution the
// lottery promises?
package consensus

import (
	"math"
	"sort"
	"sync"

	"github.com/bpimesh/bpimesh/core/types"
)

// FairnessMetrics summarizes how selections spread across validators.
type FairnessMetrics struct {
	// Gini is the Gini coefficient of selection counts. 0 is perfectly
	// even, 1 is a single validator winning everything.
	Gini float64

	// StdDev is the standard deviation of selection counts.
	StdDev float64

	// ChiSquare compares observed counts against stake-proportional
	// expectations. Large values indicate a skewed lottery.
	ChiSquare float64
}

// SelectionStats accumulates leader selections. Thread-safe.
type SelectionStats struct {
	mu sync.RWMutex

	counts   map[types.NodeID]uint64
	probSums map[types.NodeID]float64
	probSeen map[types.NodeID]uint64
	rounds   uint64
}

// NewSelectionStats creates an empty tracker.
func NewSelectionStats() *SelectionStats {
	return &SelectionStats{
		counts:   make(map[types.NodeID]uint64),
		probSums: make(map[types.NodeID]float64),
		probSeen: make(map[types.NodeID]uint64),
	}
}

// Record notes one round's winner.
func (ss *SelectionStats) Record(leader types.NodeID) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.counts[leader]++
	ss.rounds++
}

// RecordResult notes a full selection result, tracking the winner's
// reported probability alongside the count.
func (ss *SelectionStats) RecordResult(result *LeaderSelectionResult) {
	if result == nil {
		return
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.counts[result.Leader]++
	ss.rounds++
	ss.probSums[result.Leader] += result.SelectionProbability
	ss.probSeen[result.Leader]++
}

// AvgProbability returns the mean reported selection probability across the
// validator's recorded wins, or 0 when none were recorded with one.
func (ss *SelectionStats) AvgProbability(id types.NodeID) float64 {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	if ss.probSeen[id] == 0 {
		return 0
	}
	return ss.probSums[id] / float64(ss.probSeen[id])
}

// Count returns how many times the validator has been selected.
func (ss *SelectionStats) Count(id types.NodeID) uint64 {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.counts[id]
}

// Rounds returns the total number of recorded rounds.
func (ss *SelectionStats) Rounds() uint64 {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.rounds
}

// Reset clears all recorded selections.
func (ss *SelectionStats) Reset() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.counts = make(map[types.NodeID]uint64)
	ss.probSums = make(map[types.NodeID]float64)
	ss.probSeen = make(map[types.NodeID]uint64)
	ss.rounds = 0
}

// Fairness computes distribution metrics over the given stake map. Every
// validator in stakes participates, including those never selected; winners
// missing from stakes are ignored.
func (ss *SelectionStats) Fairness(stakes map[types.NodeID]uint64) FairnessMetrics {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if len(stakes) == 0 || ss.rounds == 0 {
		return FairnessMetrics{}
	}

	ids := make([]types.NodeID, 0, len(stakes))
	var totalStake uint64
	for id, stake := range stakes {
		ids = append(ids, id)
		totalStake += stake
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	counts := make([]float64, len(ids))
	var sum float64
	for i, id := range ids {
		counts[i] = float64(ss.counts[id])
		sum += counts[i]
	}

	return FairnessMetrics{
		Gini:      giniCoefficient(counts, sum),
		StdDev:    stdDev(counts, sum),
		ChiSquare: ss.chiSquare(ids, stakes, totalStake),
	}
}

func giniCoefficient(counts []float64, sum float64) float64 {
	n := len(counts)
	if n == 0 || sum == 0 {
		return 0
	}
	sorted := append([]float64{}, counts...)
	sort.Float64s(sorted)

	var weighted float64
	for i, c := range sorted {
		weighted += float64(i+1) * c
	}
	return (2*weighted)/(float64(n)*sum) - float64(n+1)/float64(n)
}

func stdDev(counts []float64, sum float64) float64 {
	n := float64(len(counts))
	if n == 0 {
		return 0
	}
	mean := sum / n
	var variance float64
	for _, c := range counts {
		variance += (c - mean) * (c - mean)
	}
	return math.Sqrt(variance / n)
}

func (ss *SelectionStats) chiSquare(ids []types.NodeID, stakes map[types.NodeID]uint64, totalStake uint64) float64 {
	if totalStake == 0 {
		return 0
	}
	var chi float64
	for _, id := range ids {
		expected := float64(ss.rounds) * float64(stakes[id]) / float64(totalStake)
		if expected == 0 {
			continue
		}
		observed := float64(ss.counts[id])
		chi += (observed - expected) * (observed - expected) / expected
	}
	return chi
}

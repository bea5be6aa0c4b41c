package partitioner

import (
	"math"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
)

// Move is one attempted vertex relocation.
type Move struct {
	V    datastructure.Index
	From int
	To   int
	Gain int64
}

// AttributedGain converts the per-edge observation of the move delta hook
// into the exact objective change caused by that edge (negative = the
// objective improved). Summed over all incident edges of a committed move it
// equals the total objective delta.
func AttributedGain(obj pkg.Objective, weight int32, size int, pinCountInFromAfter, pinCountInToAfter int32) int64 {
	w := int64(weight)
	switch obj {
	case pkg.KM1_OBJECTIVE:
		delta := int64(0)
		if pinCountInToAfter == 1 {
			delta += w
		}
		if pinCountInFromAfter == 0 {
			delta -= w
		}
		return delta
	default: // cut
		if pinCountInToAfter == int32(size) {
			return -w
		}
		if pinCountInFromAfter == int32(size-1) && pinCountInToAfter == 1 {
			return w
		}
		return 0
	}
}

// ComputeGain evaluates the objective improvement (positive = better) of
// moving v to block `to` against the live partition, by scanning v's
// incident nets.
func ComputeGain(phg *datastructure.PartitionedHypergraph, obj pkg.Objective, v datastructure.Index, to int) int64 {
	from := phg.PartID(v)
	if from == to {
		return 0
	}
	hg := phg.Hypergraph()
	gain := int64(0)
	for _, e := range hg.IncidentNets(v) {
		w := int64(hg.EdgeWeight(e))
		size := hg.EdgeSize(e)
		pFrom := phg.PinCountInPart(e, from)
		pTo := phg.PinCountInPart(e, to)
		switch obj {
		case pkg.KM1_OBJECTIVE:
			if pFrom == 1 {
				gain += w
			}
			if pTo == 0 {
				gain -= w
			}
		default:
			if pFrom == int32(size) {
				gain -= w
			}
			if pTo == int32(size-1) {
				gain += w
			}
		}
	}
	return gain
}

// BestMove scans the connectivity sets of v's incident nets and returns the
// target block with the highest gain that can still take v's weight, or
// ok=false when no positive candidate exists. With acceptZero, the best
// candidate is returned whatever its gain, zero or negative (used for
// rebalancing).
func BestMove(phg *datastructure.PartitionedHypergraph, obj pkg.Objective, v datastructure.Index, maxWeight int64, acceptZero bool) (Move, bool) {
	from := phg.PartID(v)
	hg := phg.Hypergraph()
	w := int64(hg.NodeWeight(v))

	seen := make(map[int]struct{}, 8)
	best := Move{V: v, From: from, To: pkg.INVALID_PARTITION_ID}
	bestGain := int64(0)
	if acceptZero {
		bestGain = math.MinInt64
	}
	found := false

	consider := func(to int) {
		if to == from {
			return
		}
		if _, dup := seen[to]; dup {
			return
		}
		seen[to] = struct{}{}
		if phg.PartWeight(to)+w > maxWeight {
			return
		}
		gain := ComputeGain(phg, obj, v, to)
		if gain > bestGain ||
			(gain == bestGain && found && phg.PartWeight(to) < phg.PartWeight(best.To)) {
			best.To = to
			best.Gain = gain
			bestGain = gain
			found = true
		}
	}

	for _, e := range hg.IncidentNets(v) {
		phg.ForEachBlockOf(e, func(p int) { consider(p) })
	}
	return best, found
}

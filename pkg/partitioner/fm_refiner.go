package partitioner

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/concurrent"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/config"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
)

// NodeTracker arbitrates vertex ownership between concurrent localized
// searches: a vertex joins at most one search's priority queues.
type NodeTracker struct {
	owner []int32
}

func NewNodeTracker(numNodes int) *NodeTracker {
	return &NodeTracker{owner: make([]int32, numNodes)}
}

// Claim acquires v for the given search id (> 0). Only the winner of the
// compare-and-set may insert v into its queues.
func (nt *NodeTracker) Claim(v datastructure.Index, searchID int32) bool {
	return atomic.CompareAndSwapInt32(&nt.owner[v], 0, searchID)
}

func (nt *NodeTracker) Release(v datastructure.Index) {
	atomic.StoreInt32(&nt.owner[v], 0)
}

// FMRefiner runs parallel localized FM searches seeded from border
// vertices. Gains come from the gain cache in O(1), are re-validated
// against the live partition before a move commits, and each search rolls
// back to the best prefix of its move sequence.
type FMRefiner struct {
	ctx       *config.Context
	gainCache *GainCache
	logger    *zap.Logger
}

func NewFMRefiner(ctx *config.Context, gainCache *GainCache, logger *zap.Logger) *FMRefiner {
	return &FMRefiner{ctx: ctx, gainCache: gainCache, logger: logger}
}

func (fm *FMRefiner) Name() string { return "fm" }

func (fm *FMRefiner) Initialize(phg *datastructure.PartitionedHypergraph) {
	fm.gainCache.Initialize(phg, fm.ctx.NumThreads)
}

func (fm *FMRefiner) Refine(phg *datastructure.PartitionedHypergraph, deadline time.Time) int64 {
	hg := phg.Hypergraph()
	n := hg.NumberOfVertices()
	lmax := metrics.LMax(hg.TotalWeight(), phg.K(), fm.ctx.Epsilon)
	moveCap := lmax
	if fm.ctx.FMUnconstrained {
		moveCap = int64(float64(lmax) * fm.ctx.FMUnconstrainedUpperBound)
	}

	totalImprovement := int64(0)
	for round := 0; ; round++ {
		if time.Now().After(deadline) {
			break
		}
		seeds := make([]datastructure.Index, 0, n)
		for v := 0; v < n; v++ {
			if phg.IsBorderNode(datastructure.Index(v)) {
				seeds = append(seeds, datastructure.Index(v))
			}
		}
		if len(seeds) == 0 {
			break
		}
		rng := rand.New(rand.NewSource(fm.ctx.Seed ^ (uint64(round+1) * 0x94d049bb133111eb)))
		rng.Shuffle(len(seeds), func(i, j int) { seeds[i], seeds[j] = seeds[j], seeds[i] })

		tracker := NewNodeTracker(n)
		var roundImprovement int64
		var nextSearchID int32

		workers := concurrent.NumWorkers(fm.ctx.NumThreads)
		seedsPerSearch := fm.ctx.FMNumSeeds
		concurrent.ParallelFor(len(seeds), workers, func(_, lo, hi int) {
			for start := lo; start < hi; start += seedsPerSearch {
				if time.Now().After(deadline) {
					return
				}
				end := start + seedsPerSearch
				if end > hi {
					end = hi
				}
				id := atomic.AddInt32(&nextSearchID, 1)
				search := newLocalSearch(fm, phg, tracker, id, lmax, moveCap)
				improvement := search.run(seeds[start:end], deadline)
				atomic.AddInt64(&roundImprovement, improvement)
			}
		})

		totalImprovement += roundImprovement
		fm.logger.Sugar().Debugf("fm round %d: improvement %d", round, roundImprovement)
		if roundImprovement == 0 {
			break
		}
	}

	if fm.ctx.FMUnconstrained && !metrics.IsBalanced(phg, fm.ctx.Epsilon) {
		rebalancer := NewRebalancer(fm.ctx, fm.gainCache, fm.logger)
		rebalancer.Refine(phg, deadline)
	}
	return totalImprovement
}

// localSearch is one bounded FM search: per-block vertex queues, a block
// queue over their tops, and a move log for the best-prefix rollback.
type localSearch struct {
	fm      *FMRefiner
	phg     *datastructure.PartitionedHypergraph
	tracker *NodeTracker
	id      int32

	lmax    int64
	moveCap int64

	vertexPQs  []*datastructure.MaxHeap[datastructure.Index] // one per source block
	blockPQ    *datastructure.MaxHeap[int]
	targetPart []int32 // claimed vertices only

	claimed []datastructure.Index
	moves   []Move
}

func newLocalSearch(fm *FMRefiner, phg *datastructure.PartitionedHypergraph,
	tracker *NodeTracker, id int32, lmax, moveCap int64) *localSearch {
	k := phg.K()
	pqs := make([]*datastructure.MaxHeap[datastructure.Index], k)
	for p := 0; p < k; p++ {
		pqs[p] = datastructure.NewMaxHeap[datastructure.Index]()
	}
	return &localSearch{
		fm:         fm,
		phg:        phg,
		tracker:    tracker,
		id:         id,
		lmax:       lmax,
		moveCap:    moveCap,
		vertexPQs:  pqs,
		blockPQ:    datastructure.NewMaxHeap[int](),
		targetPart: make([]int32, phg.Hypergraph().NumberOfVertices()),
	}
}

// bestTarget picks the highest cached gain over all feasible target blocks.
func (ls *localSearch) bestTarget(v datastructure.Index) (int, int64, bool) {
	phg := ls.phg
	from := phg.PartID(v)
	w := int64(phg.Hypergraph().NodeWeight(v))
	bestTo := pkg.INVALID_PARTITION_ID
	bestGain := int64(math.MinInt64)
	for p := 0; p < phg.K(); p++ {
		if p == from || phg.PartWeight(p)+w > ls.moveCap {
			continue
		}
		gain := ls.fm.gainCache.Gain(v, p)
		if gain > bestGain || (gain == bestGain && bestTo != pkg.INVALID_PARTITION_ID && phg.PartWeight(p) < phg.PartWeight(bestTo)) {
			bestTo = p
			bestGain = gain
		}
	}
	return bestTo, bestGain, bestTo != pkg.INVALID_PARTITION_ID
}

func (ls *localSearch) insert(v datastructure.Index) {
	to, gain, ok := ls.bestTarget(v)
	if !ok {
		return
	}
	from := ls.phg.PartID(v)
	ls.targetPart[v] = int32(to)
	ls.vertexPQs[from].Insert(datastructure.NewPriorityQueueNode(gain, v))
	ls.blockPQ.UpdateKey(from, ls.vertexPQs[from].GetMaxRank())
}

func (ls *localSearch) run(seedSlice []datastructure.Index, deadline time.Time) int64 {
	for _, v := range seedSlice {
		if ls.tracker.Claim(v, ls.id) {
			ls.claimed = append(ls.claimed, v)
			ls.insert(v)
		}
	}

	bestPrefix := 0
	prefixDelta := int64(0) // objective delta of applied moves, negative is better
	bestDelta := int64(0)

	for !ls.blockPQ.IsEmpty() && len(ls.moves) < ls.fm.ctx.FMMoveBudget {
		if time.Now().After(deadline) {
			break
		}
		top, err := ls.blockPQ.GetMax()
		if err != nil {
			break
		}
		block := top.GetItem()
		node, err := ls.vertexPQs[block].ExtractMax()
		if err != nil {
			ls.blockPQ.Delete(block)
			continue
		}
		v := node.GetItem()
		ls.syncBlockPQ(block)

		if ls.phg.PartID(v) != block {
			// v moved blocks since insertion; re-queue under its current block
			ls.insert(v)
			continue
		}

		// re-validate against the live partition: the PQ key may be stale
		to, gain, ok := ls.bestTarget(v)
		if !ok {
			continue
		}
		if gain < node.GetRank() {
			ls.targetPart[v] = int32(to)
			ls.vertexPQs[block].Insert(datastructure.NewPriorityQueueNode(gain, v))
			ls.syncBlockPQ(block)
			continue
		}

		moveDelta := int64(0)
		var edgeDeltas []EdgeDelta
		committed := ls.phg.ChangeNodePart(v, block, to, ls.moveCap,
			func(e datastructure.Index, w int32, size int, pFrom, pTo int32) {
				moveDelta += AttributedGain(ls.fm.ctx.Objective, w, size, pFrom, pTo)
				edgeDeltas = append(edgeDeltas, EdgeDelta{E: e, PFromAfter: pFrom, PToAfter: pTo})
			})
		if !committed {
			continue
		}
		ls.fm.gainCache.ApplyMove(ls.phg, v, block, to, edgeDeltas)
		ls.moves = append(ls.moves, Move{V: v, From: block, To: to, Gain: -moveDelta})
		prefixDelta += moveDelta

		// best prefix must also be feasible under L_max
		if prefixDelta < bestDelta && ls.feasible() {
			bestDelta = prefixDelta
			bestPrefix = len(ls.moves)
		}

		// activate unclaimed neighbors
		hg := ls.phg.Hypergraph()
		for _, e := range hg.IncidentNets(v) {
			for _, u := range hg.Pins(e) {
				if u == v {
					continue
				}
				if ls.tracker.Claim(u, ls.id) {
					ls.claimed = append(ls.claimed, u)
					ls.insert(u)
				}
			}
		}
	}

	ls.rollback(bestPrefix)
	for _, v := range ls.claimed {
		ls.tracker.Release(v)
	}
	return -bestDelta
}

func (ls *localSearch) syncBlockPQ(block int) {
	if ls.vertexPQs[block].IsEmpty() {
		ls.blockPQ.Delete(block)
	} else {
		ls.blockPQ.UpdateKey(block, ls.vertexPQs[block].GetMaxRank())
	}
}

func (ls *localSearch) feasible() bool {
	for p := 0; p < ls.phg.K(); p++ {
		if ls.phg.PartWeight(p) > ls.lmax {
			return false
		}
	}
	return true
}

// rollback reverts every move after the best prefix, newest first. Reverts
// bypass the weight gate: they restore a state that existed before.
func (ls *localSearch) rollback(bestPrefix int) {
	for i := len(ls.moves) - 1; i >= bestPrefix; i-- {
		m := ls.moves[i]
		var edgeDeltas []EdgeDelta
		ls.phg.ChangeNodePart(m.V, m.To, m.From, math.MaxInt64,
			func(e datastructure.Index, w int32, size int, pFrom, pTo int32) {
				edgeDeltas = append(edgeDeltas, EdgeDelta{E: e, PFromAfter: pFrom, PToAfter: pTo})
			})
		ls.fm.gainCache.ApplyMove(ls.phg, m.V, m.To, m.From, edgeDeltas)
	}
	ls.moves = ls.moves[:bestPrefix]
}

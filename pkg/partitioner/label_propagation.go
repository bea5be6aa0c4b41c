package partitioner

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/concurrent"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/config"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
)

// sub-rounds per deterministic round; a fixed count keeps the bucket layout
// independent of the machine's core count.
const deterministicSubRounds = 8

// LabelPropagationRefiner runs parallel rounds of single-vertex moves over
// the active set (border vertices; everything in rebalance mode). A round
// marks the neighborhood of every successful move active for the next round
// via single-shot compare-and-set flags.
type LabelPropagationRefiner struct {
	ctx       *config.Context
	gainCache *GainCache // kept consistent when non-nil
	rebalance bool
	logger    *zap.Logger
}

func NewLabelPropagationRefiner(ctx *config.Context, gainCache *GainCache, logger *zap.Logger) *LabelPropagationRefiner {
	return &LabelPropagationRefiner{ctx: ctx, gainCache: gainCache, logger: logger}
}

// NewRebalancer returns label propagation in rebalance mode: every vertex is
// active and zero- or negative-gain moves into underloaded blocks are
// allowed, so overweight blocks drain back under L_max.
func NewRebalancer(ctx *config.Context, gainCache *GainCache, logger *zap.Logger) *LabelPropagationRefiner {
	return &LabelPropagationRefiner{ctx: ctx, gainCache: gainCache, rebalance: true, logger: logger}
}

func (lp *LabelPropagationRefiner) Name() string {
	if lp.rebalance {
		return "rebalancer"
	}
	return "label_propagation"
}

func (lp *LabelPropagationRefiner) Initialize(*datastructure.PartitionedHypergraph) {}

func (lp *LabelPropagationRefiner) Refine(phg *datastructure.PartitionedHypergraph, deadline time.Time) int64 {
	hg := phg.Hypergraph()
	n := hg.NumberOfVertices()
	lmax := metrics.LMax(hg.TotalWeight(), phg.K(), lp.ctx.Epsilon)

	active := make([]datastructure.Index, 0, n)
	for v := 0; v < n; v++ {
		if lp.rebalance || phg.IsBorderNode(datastructure.Index(v)) {
			active = append(active, datastructure.Index(v))
		}
	}

	totalDelta := int64(0) // objective delta, negative is better
	for round := 0; round < lp.ctx.LPMaxIterations && len(active) > 0; round++ {
		if time.Now().After(deadline) {
			break
		}
		rng := rand.New(rand.NewSource(lp.ctx.Seed ^ (uint64(round+1) * 0xbf58476d1ce4e5b9)))
		rng.Shuffle(len(active), func(i, j int) { active[i], active[j] = active[j], active[i] })

		nextActive := make([]int32, n)
		moves := int64(0)
		roundDelta := int64(0)

		apply := func(v datastructure.Index) (int64, bool) {
			mv, ok := BestMove(phg, lp.ctx.Objective, v, lmax, lp.rebalance)
			if !ok {
				return 0, false
			}
			if lp.rebalance && phg.PartWeight(mv.From) <= lmax {
				return 0, false
			}
			var edgeDeltas []EdgeDelta
			moveDelta := int64(0)
			committed := phg.ChangeNodePart(v, mv.From, mv.To, lmax,
				func(e datastructure.Index, w int32, size int, pFrom, pTo int32) {
					moveDelta += AttributedGain(lp.ctx.Objective, w, size, pFrom, pTo)
					if lp.gainCache != nil {
						edgeDeltas = append(edgeDeltas, EdgeDelta{E: e, PFromAfter: pFrom, PToAfter: pTo})
					}
				})
			if !committed {
				return 0, false
			}
			if lp.gainCache != nil {
				lp.gainCache.ApplyMove(phg, v, mv.From, mv.To, edgeDeltas)
			}
			if !lp.rebalance && moveDelta > 0 {
				// the gain estimate went stale between proposal and commit;
				// undo so a round never worsens the objective
				var revertDeltas []EdgeDelta
				phg.ChangeNodePart(v, mv.To, mv.From, math.MaxInt64,
					func(e datastructure.Index, w int32, size int, pFrom, pTo int32) {
						revertDeltas = append(revertDeltas, EdgeDelta{E: e, PFromAfter: pFrom, PToAfter: pTo})
					})
				if lp.gainCache != nil {
					lp.gainCache.ApplyMove(phg, v, mv.To, mv.From, revertDeltas)
				}
				return 0, false
			}
			for _, e := range hg.IncidentNets(v) {
				for _, u := range hg.Pins(e) {
					atomic.CompareAndSwapInt32(&nextActive[u], 0, 1)
				}
			}
			return moveDelta, true
		}

		if lp.ctx.Deterministic {
			// synchronous bucketed sub-rounds: moves of a bucket are proposed
			// in parallel against the state at bucket start, then committed in
			// a fixed order, so the outcome does not depend on scheduling
			proposals := make([]bool, len(active))
			concurrent.ForEachBucket(len(active), deterministicSubRounds, lp.ctx.NumThreads,
				func(_, lo, hi int) {
					for i := lo; i < hi; i++ {
						_, ok := BestMove(phg, lp.ctx.Objective, active[i], lmax, lp.rebalance)
						proposals[i] = ok
					}
				},
				func(lo, hi int) {
					for i := lo; i < hi; i++ {
						if !proposals[i] {
							continue
						}
						if delta, ok := apply(active[i]); ok {
							roundDelta += delta
							moves++
						}
					}
				})
		} else {
			var deltaAcc, movesAcc int64
			concurrent.ParallelFor(len(active), lp.ctx.NumThreads, func(_, lo, hi int) {
				for i := lo; i < hi; i++ {
					if delta, ok := apply(active[i]); ok {
						atomic.AddInt64(&deltaAcc, delta)
						atomic.AddInt64(&movesAcc, 1)
					}
				}
			})
			roundDelta = deltaAcc
			moves = movesAcc
		}

		totalDelta += roundDelta
		lp.logger.Sugar().Debugf("%s round %d: %d moves, objective delta %d", lp.Name(), round, moves, roundDelta)
		if moves == 0 {
			break
		}

		active = active[:0]
		for v := 0; v < n; v++ {
			if nextActive[v] == 1 && (lp.rebalance || phg.IsBorderNode(datastructure.Index(v))) {
				active = append(active, datastructure.Index(v))
			}
		}
	}

	if totalDelta < 0 {
		return -totalDelta
	}
	return 0
}

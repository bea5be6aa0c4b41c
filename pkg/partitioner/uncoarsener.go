package partitioner

import (
	"time"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/config"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/metrics"
	"go.uber.org/zap"
)

const minRefinementBudget = 5 * time.Second

// Uncoarsener walks the level stack back up: project the partition onto the
// next finer hypergraph, then run the configured refiners under the
// per-level time budget.
type Uncoarsener struct {
	ctx    *config.Context
	logger *zap.Logger
}

func NewUncoarsener(ctx *config.Context, logger *zap.Logger) *Uncoarsener {
	return &Uncoarsener{ctx: ctx, logger: logger}
}

// levelBudget derives the refinement deadline for one level from the
// measured coarsening time.
func (uc *Uncoarsener) levelBudget(coarsenTime time.Duration) time.Duration {
	budget := time.Duration(uc.ctx.TimeLimitFactor * float64(uc.ctx.NumBlocks) * float64(coarsenTime))
	if budget < minRefinementBudget {
		budget = minRefinementBudget
	}
	return budget
}

// buildRefiners instantiates the refiner chain {LP, FM, flows} over a
// shared gain cache sized for the given hypergraph.
func (uc *Uncoarsener) buildRefiners(numNodes int) ([]Refiner, *GainCache) {
	gainCache := NewGainCache(numNodes, uc.ctx.NumBlocks, uc.ctx.Objective)
	refiners := []Refiner{NewLabelPropagationRefiner(uc.ctx, gainCache, uc.logger)}
	if uc.ctx.FMEnabled {
		refiners = append(refiners, NewFMRefiner(uc.ctx, gainCache, uc.logger))
	}
	if uc.ctx.FlowsEnabled {
		refiners = append(refiners, NewFlowRefiner(uc.ctx, gainCache, uc.logger))
	}
	return refiners, gainCache
}

// refine runs the chain on one level.
func (uc *Uncoarsener) refine(phg *datastructure.PartitionedHypergraph, gainCache *GainCache,
	refiners []Refiner, deadline time.Time) {
	gainCache.Initialize(phg, uc.ctx.NumThreads)
	for _, refiner := range refiners {
		improvement := refiner.Refine(phg, deadline)
		if improvement > 0 {
			uc.logger.Sugar().Debugf("%s improved the objective by %d", refiner.Name(), improvement)
		}
	}
}

// Uncoarsen projects coarsePhg through the level stack down to the original
// hypergraph, refining at every level, and returns the finest partitioned
// hypergraph.
func (uc *Uncoarsener) Uncoarsen(ud *UncoarseningData, coarsePhg *datastructure.PartitionedHypergraph) *datastructure.PartitionedHypergraph {
	budget := uc.levelBudget(ud.CoarsenTime)
	cur := coarsePhg

	// refine the coarsest level first
	refiners, gainCache := uc.buildRefiners(cur.Hypergraph().NumberOfVertices())
	uc.refine(cur, gainCache, refiners, time.Now().Add(budget))

	for l := len(ud.levels) - 1; l >= 0; l-- {
		var fine *datastructure.Hypergraph
		if l == 0 {
			fine = ud.original
		} else {
			fine = ud.levels[l-1].coarse
		}
		mapping := ud.levels[l].mapping

		finePhg := datastructure.NewPartitionedHypergraph(fine, uc.ctx.NumBlocks)
		fine.ForEachVertexParallel(uc.ctx.NumThreads, func(v datastructure.Index) {
			finePhg.SetOnlyNodePart(v, cur.PartID(mapping[v]))
		})
		finePhg.InitializePartition(uc.ctx.NumThreads)

		refiners, gainCache := uc.buildRefiners(fine.NumberOfVertices())
		uc.refine(finePhg, gainCache, refiners, time.Now().Add(budget))

		uc.logger.Sugar().Infof("uncoarsened to %d vertices: %s=%d, imbalance %.4f",
			fine.NumberOfVertices(), uc.ctx.Objective,
			metrics.Objective(finePhg, uc.ctx.Objective), metrics.Imbalance(finePhg))
		cur = finePhg
	}
	return cur
}

// UncoarsenNLevel reverses the n-level contraction sequence batch by batch,
// materializing a static snapshot for refinement after every batch.
func (uc *Uncoarsener) UncoarsenNLevel(hierarchy *NLevelHierarchy, partition []int) []int {
	budget := uc.levelBudget(hierarchy.CoarsenTime)
	for hierarchy.NumBatches() > 0 {
		hierarchy.UncontractBatch(partition)

		snapshot, _, toDynamic := hierarchy.Dynamic.ToStatic()
		phg := datastructure.NewPartitionedHypergraph(snapshot, uc.ctx.NumBlocks)
		for i, dyn := range toDynamic {
			phg.SetOnlyNodePart(datastructure.Index(i), partition[dyn])
		}
		phg.InitializePartition(uc.ctx.NumThreads)

		refiners, gainCache := uc.buildRefiners(snapshot.NumberOfVertices())
		uc.refine(phg, gainCache, refiners, time.Now().Add(budget))

		for i, dyn := range toDynamic {
			partition[dyn] = phg.PartID(datastructure.Index(i))
		}
	}
	return partition
}

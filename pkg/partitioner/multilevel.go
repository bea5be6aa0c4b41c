package partitioner

import (
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/community"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/config"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/metrics"
	"go.uber.org/zap"
)

// Multilevel orchestrates the pipeline: community detection, coarsening,
// initial partitioning on the coarsest hypergraph, uncoarsening with
// refinement at every level, and optional v-cycles that rerun the pipeline
// with the current partition as a contraction constraint.
type Multilevel struct {
	ctx    *config.Context
	logger *zap.Logger
}

func NewMultilevel(ctx *config.Context, logger *zap.Logger) *Multilevel {
	return &Multilevel{ctx: ctx, logger: logger}
}

// Partition computes a balanced k-way partition of hg and returns it as a
// block id per vertex.
func (ml *Multilevel) Partition(hg *datastructure.Hypergraph) ([]int, error) {
	ml.logger.Sugar().Infof("partitioning hypergraph: %d vertices, %d nets, %d pins, total weight %d, k=%d, epsilon=%.3f, objective=%s",
		hg.NumberOfVertices(), hg.NumberOfHyperedges(), hg.NumberOfPins(),
		hg.TotalWeight(), ml.ctx.NumBlocks, ml.ctx.Epsilon, ml.ctx.Objective)

	// degenerate nets never affect the objective; drop them up front
	work := hg.RemoveDegenerateNets()

	var communities []datastructure.Index
	if ml.ctx.UseCommunityDetection {
		communities = community.Detect(work, community.Config{
			MaxPasses:     ml.ctx.LouvainMaxPasses,
			MinGain:       ml.ctx.LouvainMinGain,
			Seed:          ml.ctx.Seed,
			Workers:       ml.ctx.NumThreads,
			Deterministic: ml.ctx.Deterministic,
		}, ml.logger)
	}

	partition, err := ml.runPipeline(work, communities)
	if err != nil {
		return nil, err
	}

	for cycle := 0; cycle < ml.ctx.NumVCycles; cycle++ {
		ml.logger.Sugar().Infof("v-cycle %d/%d", cycle+1, ml.ctx.NumVCycles)
		// the current partition becomes the community structure, so
		// contractions never cross block boundaries
		blockCommunities := make([]datastructure.Index, work.NumberOfVertices())
		for v, p := range partition {
			blockCommunities[v] = datastructure.Index(p)
		}
		improved, err := ml.runVCycle(work, blockCommunities, partition)
		if err != nil {
			return nil, err
		}
		partition = improved
	}
	return partition, nil
}

// runPipeline is one coarsen -> initial-partition -> uncoarsen pass.
func (ml *Multilevel) runPipeline(hg *datastructure.Hypergraph, communities []datastructure.Index) ([]int, error) {
	if ml.ctx.UseNLevel {
		return ml.runNLevel(hg, communities)
	}

	coarsener := NewMultilevelCoarsener(ml.ctx, communities, ml.logger)
	ud := coarsener.Coarsen(hg)

	coarsePhg := datastructure.NewPartitionedHypergraph(ud.Coarsest(), ml.ctx.NumBlocks)
	if err := NewInitialPartitioner(ml.ctx, ml.logger).Partition(coarsePhg); err != nil {
		return nil, err
	}

	finest := NewUncoarsener(ml.ctx, ml.logger).Uncoarsen(ud, coarsePhg)
	return extractPartition(finest), nil
}

// runNLevel is the n-level variant: single contractions, batch-wise
// uncontraction with refinement.
func (ml *Multilevel) runNLevel(hg *datastructure.Hypergraph, communities []datastructure.Index) ([]int, error) {
	coarsener := NewNLevelCoarsener(ml.ctx, communities, ml.logger)
	hierarchy := coarsener.Coarsen(hg)

	snapshot, _, toDynamic := hierarchy.Dynamic.ToStatic()
	coarsePhg := datastructure.NewPartitionedHypergraph(snapshot, ml.ctx.NumBlocks)
	if err := NewInitialPartitioner(ml.ctx, ml.logger).Partition(coarsePhg); err != nil {
		return nil, err
	}

	partition := make([]int, hg.NumberOfVertices())
	for i, dyn := range toDynamic {
		partition[dyn] = coarsePhg.PartID(datastructure.Index(i))
	}
	return NewUncoarsener(ml.ctx, ml.logger).UncoarsenNLevel(hierarchy, partition), nil
}

// runVCycle reruns coarsening restricted to the given block communities,
// seeds the coarsest partition by projection instead of initial
// partitioning, and refines back up. Keeps the better of old and new.
func (ml *Multilevel) runVCycle(hg *datastructure.Hypergraph, blockCommunities []datastructure.Index, current []int) ([]int, error) {
	coarsener := NewMultilevelCoarsener(ml.ctx, blockCommunities, ml.logger)
	ud := coarsener.Coarsen(hg)

	// every coarse vertex groups fine vertices of a single block, so the
	// projected assignment is well defined
	coarseAssign := make([]int, ud.Coarsest().NumberOfVertices())
	mapDown := identityMapping(hg.NumberOfVertices())
	for _, level := range ud.levels {
		next := make([]datastructure.Index, len(mapDown))
		for v := range mapDown {
			next[v] = level.mapping[mapDown[v]]
		}
		mapDown = next
	}
	for v := 0; v < hg.NumberOfVertices(); v++ {
		coarseAssign[mapDown[v]] = current[v]
	}

	coarsePhg := datastructure.NewPartitionedHypergraph(ud.Coarsest(), ml.ctx.NumBlocks)
	for v, p := range coarseAssign {
		coarsePhg.SetOnlyNodePart(datastructure.Index(v), p)
	}
	coarsePhg.InitializePartition(ml.ctx.NumThreads)

	finest := NewUncoarsener(ml.ctx, ml.logger).Uncoarsen(ud, coarsePhg)
	improved := extractPartition(finest)

	if better, ok := ml.pickBetter(hg, current, improved); ok {
		return better, nil
	}
	return current, nil
}

// pickBetter evaluates both assignments on hg and returns the preferable
// one (feasible first, objective second).
func (ml *Multilevel) pickBetter(hg *datastructure.Hypergraph, old, new_ []int) ([]int, bool) {
	evalCandidate := func(assign []int) (bool, int64) {
		phg := datastructure.NewPartitionedHypergraph(hg, ml.ctx.NumBlocks)
		for v, p := range assign {
			phg.SetOnlyNodePart(datastructure.Index(v), p)
		}
		phg.InitializePartition(ml.ctx.NumThreads)
		return metrics.IsBalanced(phg, ml.ctx.Epsilon), metrics.Objective(phg, ml.ctx.Objective)
	}
	oldFeasible, oldObj := evalCandidate(old)
	newFeasible, newObj := evalCandidate(new_)
	if newFeasible && (!oldFeasible || newObj < oldObj) {
		return new_, true
	}
	return old, true
}

func extractPartition(phg *datastructure.PartitionedHypergraph) []int {
	partition := make([]int, phg.Hypergraph().NumberOfVertices())
	for v := range partition {
		partition[v] = phg.PartID(datastructure.Index(v))
	}
	return partition
}

func identityMapping(n int) []datastructure.Index {
	mapping := make([]datastructure.Index, n)
	for v := range mapping {
		mapping[v] = datastructure.Index(v)
	}
	return mapping
}

package partitioner

import (
	"fmt"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/config"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/logger"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/metrics"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Partition runs the multilevel pipeline on hg and returns the objective
// value together with the block assignment. Every emitted partition
// respects L_max; a balance violation is reported as an error, never
// returned silently.
func Partition(hg *datastructure.Hypergraph, ctx *config.Context, log *zap.Logger) (int64, []int, error) {
	if err := ctx.Validate(); err != nil {
		return 0, nil, err
	}

	assignment, err := NewMultilevel(ctx, log).Partition(hg)
	if err != nil {
		return 0, nil, err
	}

	// evaluate on the original hypergraph, not the cleaned working copy
	phg := datastructure.NewPartitionedHypergraph(hg, ctx.NumBlocks)
	for v, p := range assignment {
		phg.SetOnlyNodePart(datastructure.Index(v), p)
	}
	phg.InitializePartition(ctx.NumThreads)

	lmax := metrics.LMax(hg.TotalWeight(), ctx.NumBlocks, ctx.Epsilon)
	var balanceErr error
	for p := 0; p < ctx.NumBlocks; p++ {
		if phg.PartWeight(p) > lmax {
			balanceErr = multierr.Append(balanceErr,
				fmt.Errorf("block %d weighs %d, exceeding L_max %d", p, phg.PartWeight(p), lmax))
		}
	}
	if balanceErr != nil {
		return 0, nil, balanceErr
	}

	objective := metrics.Objective(phg, ctx.Objective)
	stats := metrics.BlockWeights(phg)
	log.Sugar().Infof("final partition: %s=%d, imbalance %.4f, block weights min/mean/max = %.0f/%.1f/%.0f",
		ctx.Objective, objective, metrics.Imbalance(phg), stats.Min, stats.Mean, stats.Max)
	return objective, assignment, nil
}

// PartitionArrays is the array-based entry point mirroring the programmatic
// API: it materializes the hypergraph from CSR arrays, applies the
// user-facing parameters to ctx and runs Partition. With verbose=false all
// pipeline logging is suppressed.
func PartitionArrays(numNodes, numEdges int, epsilon float64, k int, seed uint64,
	vertexWeights, edgeWeights []int32, edgeOffsets []int, edgePins []uint32,
	ctx *config.Context, verbose bool) (int64, []int, error) {
	ctx.NumBlocks = k
	ctx.Epsilon = epsilon
	ctx.Seed = seed
	ctx.Verbose = verbose

	pins := make([]datastructure.Index, len(edgePins))
	for i, p := range edgePins {
		pins[i] = datastructure.Index(p)
	}
	hg, err := datastructure.NewHypergraph(numNodes, numEdges, edgeOffsets, pins, edgeWeights, vertexWeights)
	if err != nil {
		return 0, nil, fmt.Errorf("building hypergraph: %w", err)
	}

	log := logger.NewNop()
	if verbose {
		if l, err := logger.New(); err == nil {
			log = l
		}
	}
	return Partition(hg, ctx, log)
}

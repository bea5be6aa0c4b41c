package metrics

import (
	"math"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// LMax is the per-block weight bound ceil((1+eps) * W / k).
func LMax(totalWeight int64, k int, epsilon float64) int64 {
	return int64(math.Ceil((1.0 + epsilon) * float64(totalWeight) / float64(k)))
}

// Cut sums the weight of hyperedges spanning at least two blocks.
func Cut(phg *datastructure.PartitionedHypergraph) int64 {
	total := int64(0)
	hg := phg.Hypergraph()
	for e := 0; e < hg.NumberOfHyperedges(); e++ {
		if phg.Connectivity(datastructure.Index(e)) >= 2 {
			total += int64(hg.EdgeWeight(datastructure.Index(e)))
		}
	}
	return total
}

// Km1 sums weight * (connectivity - 1) over all hyperedges.
func Km1(phg *datastructure.PartitionedHypergraph) int64 {
	total := int64(0)
	hg := phg.Hypergraph()
	for e := 0; e < hg.NumberOfHyperedges(); e++ {
		lambda := phg.Connectivity(datastructure.Index(e))
		if lambda >= 2 {
			total += int64(hg.EdgeWeight(datastructure.Index(e))) * int64(lambda-1)
		}
	}
	return total
}

// Objective evaluates the configured metric on the current partition.
func Objective(phg *datastructure.PartitionedHypergraph, obj pkg.Objective) int64 {
	if obj == pkg.CUT_OBJECTIVE {
		return Cut(phg)
	}
	return Km1(phg)
}

// Imbalance returns max_p partWeight[p] / (W/k) - 1.
func Imbalance(phg *datastructure.PartitionedHypergraph) float64 {
	k := phg.K()
	weights := make([]float64, k)
	for p := 0; p < k; p++ {
		weights[p] = float64(phg.PartWeight(p))
	}
	avg := float64(phg.Hypergraph().TotalWeight()) / float64(k)
	return floats.Max(weights)/avg - 1.0
}

// IsBalanced reports whether every block respects L_max.
func IsBalanced(phg *datastructure.PartitionedHypergraph, epsilon float64) bool {
	lmax := LMax(phg.Hypergraph().TotalWeight(), phg.K(), epsilon)
	for p := 0; p < phg.K(); p++ {
		if phg.PartWeight(p) > lmax {
			return false
		}
	}
	return true
}

// BlockWeightStats summarizes the block weight vector for quality reports.
type BlockWeightStats struct {
	Min, Max, Mean, StdDev float64
}

func BlockWeights(phg *datastructure.PartitionedHypergraph) BlockWeightStats {
	weights := make([]float64, phg.K())
	for p := 0; p < phg.K(); p++ {
		weights[p] = float64(phg.PartWeight(p))
	}
	mean, std := stat.MeanStdDev(weights, nil)
	if phg.K() == 1 {
		std = 0
	}
	return BlockWeightStats{
		Min:    floats.Min(weights),
		Max:    floats.Max(weights),
		Mean:   mean,
		StdDev: std,
	}
}

package partitioner

import (
	"time"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
)

// Refiner is the capability interface every refinement algorithm
// implements. Refine returns the total objective improvement it achieved
// (never negative: a refiner that cannot improve leaves the partition
// untouched).
type Refiner interface {
	Name() string
	Initialize(phg *datastructure.PartitionedHypergraph)
	Refine(phg *datastructure.PartitionedHypergraph, deadline time.Time) int64
}

package partitioner

import (
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
)

// hashRegionPins hashes a sorted pin list; the flow refiner keys its
// identical-net detection on it.
func hashRegionPins(pins []datastructure.Index) uint64 {
	h := uint64(14695981039346656037)
	for _, p := range pins {
		x := uint32(p)
		for i := 0; i < 4; i++ {
			h ^= uint64(byte(x))
			h *= 1099511628211
			x >>= 8
		}
	}
	return h
}

func equalRegionPins(a, b []datastructure.Index) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

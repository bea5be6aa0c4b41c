package datastructure_test

import (
	"testing"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"github.com/stretchr/testify/require"
)

func TestNewHypergraphValidation(t *testing.T) {
	tests := []struct {
		name    string
		n, m    int
		offsets []int
		pins    []datastructure.Index
		ew, vw  []int32
	}{
		{"non-monotone offsets", 3, 2, []int{0, 3, 2}, []datastructure.Index{0, 1, 2}, nil, nil},
		{"offset pin mismatch", 3, 1, []int{0, 2}, []datastructure.Index{0, 1, 2}, nil, nil},
		{"pin out of range", 2, 1, []int{0, 2}, []datastructure.Index{0, 5}, nil, nil},
		{"nonpositive vertex weight", 2, 1, []int{0, 2}, []datastructure.Index{0, 1}, nil, []int32{1, 0}},
		{"nonpositive edge weight", 2, 1, []int{0, 2}, []datastructure.Index{0, 1}, []int32{-3}, nil},
		{"no vertices", 0, 0, []int{0}, nil, nil, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := datastructure.NewHypergraph(tc.n, tc.m, tc.offsets, tc.pins, tc.ew, tc.vw)
			require.Error(t, err)
		})
	}
}

func TestIncidenceConsistency(t *testing.T) {
	hg := sevenVertexFixture(t)

	// v is a pin of e exactly when e is an incident net of v
	for e := 0; e < hg.NumberOfHyperedges(); e++ {
		for _, v := range hg.Pins(datastructure.Index(e)) {
			found := false
			for _, net := range hg.IncidentNets(v) {
				if net == datastructure.Index(e) {
					found = true
				}
			}
			require.True(t, found, "vertex %d missing net %d", v, e)
		}
	}
	require.Equal(t, 12, hg.NumberOfPins())
	require.Equal(t, int64(7), hg.TotalWeight())
	require.Equal(t, 2, hg.NodeDegree(0))
	require.Equal(t, 4, hg.EdgeSize(1))
}

func TestContractBuildsCoarseHypergraph(t *testing.T) {
	hg := sevenVertexFixture(t)

	// merge (0,2), (3,4), (5,6); 1 stays alone
	clusters := []datastructure.Index{0, 1, 0, 3, 3, 5, 5}
	coarse, mapping := hg.Contract(clusters)

	require.Equal(t, 4, coarse.NumberOfVertices())
	require.Equal(t, mapping[0], mapping[2])
	require.Equal(t, mapping[3], mapping[4])
	require.Equal(t, mapping[5], mapping[6])
	require.Equal(t, int64(7), coarse.TotalWeight())
	require.Equal(t, int32(2), coarse.NodeWeight(mapping[0]))

	// {0,2} collapses to a single pin and disappears;
	// {0,1,3,4} -> {c0,c1,c3}; {3,4,6} -> {c3,c5}; {2,5,6} -> {c0,c5}
	require.Equal(t, 3, coarse.NumberOfHyperedges())
}

func TestContractMergesParallelNets(t *testing.T) {
	hg, err := datastructure.NewHypergraph(4, 2,
		[]int{0, 2, 4},
		[]datastructure.Index{0, 1, 2, 3},
		[]int32{3, 4}, nil)
	require.NoError(t, err)

	// both nets project onto {c0, c1}
	coarse, _ := hg.Contract([]datastructure.Index{0, 2, 0, 2})
	require.Equal(t, 2, coarse.NumberOfVertices())
	require.Equal(t, 1, coarse.NumberOfHyperedges())
	require.Equal(t, int32(7), coarse.EdgeWeight(0))
}

func TestRemoveDegenerateNets(t *testing.T) {
	hg, err := datastructure.NewHypergraph(3, 4,
		[]int{0, 2, 4, 5, 7},
		[]datastructure.Index{0, 1, 1, 0, 2, 1, 2},
		[]int32{2, 5, 9, 1}, nil)
	require.NoError(t, err)

	clean := hg.RemoveDegenerateNets()
	require.Equal(t, 3, clean.NumberOfVertices())
	// single-pin net dropped, parallel pair merged, {1,2} kept
	require.Equal(t, 2, clean.NumberOfHyperedges())
	require.Equal(t, int32(7), clean.EdgeWeight(0))
	require.Equal(t, int32(1), clean.EdgeWeight(1))
}

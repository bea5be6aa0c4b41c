package datastructure_test

import (
	"testing"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"github.com/stretchr/testify/require"
)

func incidentNetSets(dhg *datastructure.DynamicHypergraph) []map[datastructure.Index]bool {
	sets := make([]map[datastructure.Index]bool, dhg.NumberOfVertices())
	for v := range sets {
		sets[v] = make(map[datastructure.Index]bool)
		for _, e := range dhg.IncidentNets(datastructure.Index(v)) {
			sets[v][e] = true
		}
	}
	return sets
}

func pinLists(dhg *datastructure.DynamicHypergraph) [][]datastructure.Index {
	lists := make([][]datastructure.Index, dhg.NumberOfHyperedges())
	for e := range lists {
		lists[e] = append([]datastructure.Index(nil), dhg.Pins(datastructure.Index(e))...)
	}
	return lists
}

func TestContractUncontractCycle(t *testing.T) {
	hg := sevenVertexFixture(t)
	dhg := datastructure.NewDynamicHypergraph(hg)

	netsBefore := incidentNetSets(dhg)
	pinsBefore := pinLists(dhg)

	m1 := dhg.Contract(0, 2)
	m2 := dhg.Contract(3, 4)
	m3 := dhg.Contract(5, 6)
	require.Equal(t, 4, dhg.NumberOfEnabledVertices())

	dhg.Uncontract(m3)
	dhg.Uncontract(m2)
	dhg.Uncontract(m1)

	require.Equal(t, 7, dhg.NumberOfEnabledVertices())
	require.Equal(t, netsBefore, incidentNetSets(dhg))
	// pin arrays are restored exactly, not just as sets
	require.Equal(t, pinsBefore, pinLists(dhg))
	for v := 0; v < 7; v++ {
		require.Equal(t, int32(1), dhg.NodeWeight(datastructure.Index(v)))
	}
}

func TestContractMergesWeightsAndRelabelsPins(t *testing.T) {
	hg := sevenVertexFixture(t)
	dhg := datastructure.NewDynamicHypergraph(hg)

	// 0 and 2 share net 0; nets 0 and 3 are affected
	dhg.Contract(0, 2)
	require.False(t, dhg.IsEnabled(2))
	require.Equal(t, int32(2), dhg.NodeWeight(0))

	// net 0 = {0,2} shrinks to the single pin {0}
	require.Equal(t, 1, dhg.EdgeSize(0))
	require.Equal(t, datastructure.Index(0), dhg.Pins(0)[0])

	// net 3 = {2,5,6} now contains 0 instead of 2, and joins 0's nets
	found := false
	for _, p := range dhg.Pins(3) {
		require.NotEqual(t, datastructure.Index(2), p)
		if p == 0 {
			found = true
		}
	}
	require.True(t, found)
	hasNet3 := false
	for _, e := range dhg.IncidentNets(0) {
		if e == 3 {
			hasNet3 = true
		}
	}
	require.True(t, hasNet3)
}

func TestRemoveAndRestoreDegenerateNets(t *testing.T) {
	// two parallel nets {0,1} and a single-pin net {2}
	hg, err := datastructure.NewHypergraph(3, 3,
		[]int{0, 2, 4, 5},
		[]datastructure.Index{0, 1, 1, 0, 2},
		[]int32{2, 5, 1}, nil)
	require.NoError(t, err)
	dhg := datastructure.NewDynamicHypergraph(hg)

	removed := dhg.RemoveSinglePinAndParallelNets()
	require.Len(t, removed, 2)
	require.True(t, dhg.IsEdgeEnabled(0))
	require.False(t, dhg.IsEdgeEnabled(1))
	require.False(t, dhg.IsEdgeEnabled(2))
	// the surviving representative carries the combined weight
	require.Equal(t, int32(7), dhg.EdgeWeight(0))

	dhg.RestoreRemovedNets(removed)
	require.True(t, dhg.IsEdgeEnabled(1))
	require.True(t, dhg.IsEdgeEnabled(2))
	require.Equal(t, int32(2), dhg.EdgeWeight(0))
	require.Equal(t, int32(5), dhg.EdgeWeight(1))
}

func TestToStaticCompactsEnabledVertices(t *testing.T) {
	hg := sevenVertexFixture(t)
	dhg := datastructure.NewDynamicHypergraph(hg)
	dhg.Contract(0, 2)

	static, toStatic, toDynamic := dhg.ToStatic()
	require.Equal(t, 6, static.NumberOfVertices())
	require.Equal(t, datastructure.InvalidIndex, toStatic[2])
	require.Len(t, toDynamic, 6)
	require.Equal(t, int64(7), static.TotalWeight())
	for i, dyn := range toDynamic {
		require.Equal(t, datastructure.Index(i), toStatic[dyn])
	}
}

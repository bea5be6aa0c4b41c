package datastructure_test

import (
	"math"
	"sync"
	"testing"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// sevenVertexFixture is the shared test hypergraph:
// E = {{0,2},{0,1,3,4},{3,4,6},{2,5,6}}, unit weights.
func sevenVertexFixture(t *testing.T) *datastructure.Hypergraph {
	t.Helper()
	hg, err := datastructure.NewHypergraph(7, 4,
		[]int{0, 2, 6, 9, 12},
		[]datastructure.Index{0, 2, 0, 1, 3, 4, 3, 4, 6, 2, 5, 6},
		nil, nil)
	require.NoError(t, err)
	return hg
}

func initialPartition(t *testing.T, hg *datastructure.Hypergraph) *datastructure.PartitionedHypergraph {
	t.Helper()
	phg := datastructure.NewPartitionedHypergraph(hg, 3)
	for v, p := range []int{0, 0, 0, 1, 1, 2, 2} {
		phg.SetOnlyNodePart(datastructure.Index(v), p)
	}
	phg.InitializePartition(2)
	return phg
}

type PartitionedHypergraphSuite struct {
	suite.Suite
}

func (s *PartitionedHypergraphSuite) TestDerivedStateAfterInitialization() {
	hg := sevenVertexFixture(s.T())
	phg := initialPartition(s.T(), hg)

	require.Equal(s.T(), int64(3), phg.PartWeight(0))
	require.Equal(s.T(), int64(2), phg.PartWeight(1))
	require.Equal(s.T(), int64(2), phg.PartWeight(2))

	expectedPinCounts := [][3]int32{
		{2, 0, 0},
		{2, 2, 0},
		{0, 2, 1},
		{1, 0, 2},
	}
	for e, counts := range expectedPinCounts {
		for p, cnt := range counts {
			require.Equal(s.T(), cnt, phg.PinCountInPart(datastructure.Index(e), p),
				"pin count of edge %d in block %d", e, p)
		}
	}

	require.Equal(s.T(), 1, phg.Connectivity(0))
	require.Equal(s.T(), 2, phg.Connectivity(1))
	require.Equal(s.T(), 2, phg.Connectivity(2))
	require.Equal(s.T(), 2, phg.Connectivity(3))

	expectedCutCounts := []int{1, 1, 1, 2, 2, 1, 2}
	for v, cnt := range expectedCutCounts {
		require.Equal(s.T(), cnt, phg.NumIncidentCutHyperedges(datastructure.Index(v)))
		require.True(s.T(), phg.IsBorderNode(datastructure.Index(v)), "vertex %d should be a border node", v)
	}
}

func (s *PartitionedHypergraphSuite) TestChangeNodePartUpdatesDerivedState() {
	hg := sevenVertexFixture(s.T())
	phg := initialPartition(s.T(), hg)

	ok := phg.ChangeNodePart(2, 0, 2, math.MaxInt64, nil)
	require.True(s.T(), ok)

	require.Equal(s.T(), 2, phg.PartID(2))
	require.Equal(s.T(), int64(2), phg.PartWeight(0))
	require.Equal(s.T(), int64(3), phg.PartWeight(2))

	// edge 0 = {0,2} became cut, edge 3 = {2,5,6} became internal to block 2
	require.Equal(s.T(), int32(1), phg.PinCountInPart(0, 0))
	require.Equal(s.T(), int32(1), phg.PinCountInPart(0, 2))
	require.Equal(s.T(), 2, phg.Connectivity(0))
	require.Equal(s.T(), int32(3), phg.PinCountInPart(3, 2))
	require.Equal(s.T(), 1, phg.Connectivity(3))

	require.Equal(s.T(), 2, phg.NumIncidentCutHyperedges(0))
	require.Equal(s.T(), 1, phg.NumIncidentCutHyperedges(2))
	require.Equal(s.T(), 0, phg.NumIncidentCutHyperedges(5))
	require.False(s.T(), phg.IsBorderNode(5))
}

func (s *PartitionedHypergraphSuite) TestWeightCapRejectsMove() {
	hg := sevenVertexFixture(s.T())
	phg := initialPartition(s.T(), hg)

	// block 1 already weighs 2; a cap of 2 cannot take vertex 0
	ok := phg.ChangeNodePart(0, 0, 1, 2, nil)
	require.False(s.T(), ok)
	require.Equal(s.T(), 0, phg.PartID(0))
	require.Equal(s.T(), int64(3), phg.PartWeight(0))
	require.Equal(s.T(), int64(2), phg.PartWeight(1))
	require.Equal(s.T(), int32(2), phg.PinCountInPart(1, 0))
}

func (s *PartitionedHypergraphSuite) TestConcurrentContestedMove() {
	// two movers race vertex 0 into different blocks; exactly one wins
	for run := 0; run < 50; run++ {
		hg := sevenVertexFixture(s.T())
		phg := initialPartition(s.T(), hg)
		lmax := int64(3)

		results := make([]bool, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			results[0] = phg.ChangeNodePart(0, 0, 1, lmax, nil)
		}()
		go func() {
			defer wg.Done()
			results[1] = phg.ChangeNodePart(0, 0, 2, lmax, nil)
		}()
		wg.Wait()

		require.NotEqual(s.T(), results[0], results[1], "exactly one contested move must win")
		winner := 1
		if results[1] {
			winner = 2
		}
		require.Equal(s.T(), winner, phg.PartID(0))
		total := phg.PartWeight(0) + phg.PartWeight(1) + phg.PartWeight(2)
		require.Equal(s.T(), int64(7), total)
		require.Equal(s.T(), int64(2), phg.PartWeight(0))
		require.Equal(s.T(), int64(3), phg.PartWeight(winner))
	}
}

func (s *PartitionedHypergraphSuite) TestCommutativeConcurrentMoves() {
	for run := 0; run < 50; run++ {
		hg := sevenVertexFixture(s.T())
		phg := initialPartition(s.T(), hg)

		moves := [][3]int{
			{0, 0, 1}, {3, 1, 2}, {2, 0, 2},
			{5, 2, 1}, {6, 2, 0}, {4, 1, 2},
		}
		var wg sync.WaitGroup
		wg.Add(len(moves))
		for _, m := range moves {
			go func(v datastructure.Index, from, to int) {
				defer wg.Done()
				require.True(s.T(), phg.ChangeNodePart(v, from, to, math.MaxInt64, nil))
			}(datastructure.Index(m[0]), m[1], m[2])
		}
		wg.Wait()

		require.Equal(s.T(), int64(2), phg.PartWeight(0))
		require.Equal(s.T(), int64(2), phg.PartWeight(1))
		require.Equal(s.T(), int64(3), phg.PartWeight(2))

		for e := 0; e < 4; e++ {
			sum := int32(0)
			for p := 0; p < 3; p++ {
				sum += phg.PinCountInPart(datastructure.Index(e), p)
			}
			require.Equal(s.T(), int32(hg.EdgeSize(datastructure.Index(e))), sum,
				"pin counts of edge %d must sum to its size", e)
		}

		// derived state must agree with a from-scratch recomputation
		fresh := datastructure.NewPartitionedHypergraph(hg, 3)
		for v := 0; v < 7; v++ {
			fresh.SetOnlyNodePart(datastructure.Index(v), phg.PartID(datastructure.Index(v)))
		}
		fresh.InitializePartition(1)
		for e := 0; e < 4; e++ {
			for p := 0; p < 3; p++ {
				require.Equal(s.T(), fresh.PinCountInPart(datastructure.Index(e), p),
					phg.PinCountInPart(datastructure.Index(e), p))
			}
			require.Equal(s.T(), fresh.Connectivity(datastructure.Index(e)), phg.Connectivity(datastructure.Index(e)))
		}
		for v := 0; v < 7; v++ {
			require.Equal(s.T(), fresh.NumIncidentCutHyperedges(datastructure.Index(v)),
				phg.NumIncidentCutHyperedges(datastructure.Index(v)))
		}
	}
}

func (s *PartitionedHypergraphSuite) TestExtractWithNetSplitting() {
	hg := sevenVertexFixture(s.T())
	phg := initialPartition(s.T(), hg)

	sub, mapping := phg.Extract(0, true)
	require.NotNil(s.T(), sub)
	require.Equal(s.T(), 3, sub.NumberOfVertices())
	require.Equal(s.T(), 2, sub.NumberOfHyperedges())
	require.Equal(s.T(), 4, sub.NumberOfPins())
	require.Equal(s.T(), 2, sub.EdgeSize(0))
	require.Equal(s.T(), 2, sub.EdgeSize(1))

	for v := 0; v < 3; v++ {
		require.NotEqual(s.T(), datastructure.InvalidIndex, mapping[v])
	}
	for v := 3; v < 7; v++ {
		require.Equal(s.T(), datastructure.InvalidIndex, mapping[v])
	}

	// the projected nets are exactly {0,2} and {0,1} under the id mapping
	pinsOf := func(e datastructure.Index) map[datastructure.Index]bool {
		set := make(map[datastructure.Index]bool)
		for _, p := range sub.Pins(e) {
			set[p] = true
		}
		return set
	}
	require.Equal(s.T(), map[datastructure.Index]bool{mapping[0]: true, mapping[2]: true}, pinsOf(0))
	require.Equal(s.T(), map[datastructure.Index]bool{mapping[0]: true, mapping[1]: true}, pinsOf(1))
}

func (s *PartitionedHypergraphSuite) TestExtractWithNetRemoval() {
	hg := sevenVertexFixture(s.T())
	phg := initialPartition(s.T(), hg)

	sub, _ := phg.Extract(0, false)
	require.NotNil(s.T(), sub)
	require.Equal(s.T(), 3, sub.NumberOfVertices())
	require.Equal(s.T(), 1, sub.NumberOfHyperedges())
	require.Equal(s.T(), 2, sub.NumberOfPins())
	require.Equal(s.T(), 2, sub.EdgeSize(0))
}

func (s *PartitionedHypergraphSuite) TestResetPartition() {
	hg := sevenVertexFixture(s.T())
	phg := initialPartition(s.T(), hg)

	phg.ResetPartition()
	for p := 0; p < 3; p++ {
		require.Equal(s.T(), int64(0), phg.PartWeight(p))
	}
	for e := 0; e < 4; e++ {
		require.Equal(s.T(), 0, phg.Connectivity(datastructure.Index(e)))
	}
}

func TestPartitionedHypergraphSuite(t *testing.T) {
	suite.Run(t, new(PartitionedHypergraphSuite))
}

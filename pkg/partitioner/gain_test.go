package partitioner_test

import (
	"math"
	"testing"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/config"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/metrics"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/partitioner"
	"github.com/stretchr/testify/require"
)

func sevenVertexFixture(t *testing.T) *datastructure.Hypergraph {
	t.Helper()
	hg, err := datastructure.NewHypergraph(7, 4,
		[]int{0, 2, 6, 9, 12},
		[]datastructure.Index{0, 2, 0, 1, 3, 4, 3, 4, 6, 2, 5, 6},
		nil, nil)
	require.NoError(t, err)
	return hg
}

func fixturePartition(t *testing.T, hg *datastructure.Hypergraph, k int, assignment []int) *datastructure.PartitionedHypergraph {
	t.Helper()
	phg := datastructure.NewPartitionedHypergraph(hg, k)
	for v, p := range assignment {
		phg.SetOnlyNodePart(datastructure.Index(v), p)
	}
	phg.InitializePartition(1)
	return phg
}

func testContext(k int, obj pkg.Objective) *config.Context {
	ctx := config.NewContext()
	ctx.NumBlocks = k
	ctx.Epsilon = 0.5
	ctx.Objective = obj
	ctx.Seed = 42
	ctx.NumThreads = 2
	return ctx
}

// TestAttributedGainMatchesObjectiveDelta verifies that the delta hook observations
// sum to the true objective change for every possible single move.
func TestAttributedGainMatchesObjectiveDelta(t *testing.T) {
	for _, obj := range []pkg.Objective{pkg.CUT_OBJECTIVE, pkg.KM1_OBJECTIVE} {
		hg := sevenVertexFixture(t)
		phg := fixturePartition(t, hg, 3, []int{0, 0, 0, 1, 1, 2, 2})

		for v := 0; v < 7; v++ {
			for to := 0; to < 3; to++ {
				from := phg.PartID(datastructure.Index(v))
				if to == from {
					continue
				}
				before := metrics.Objective(phg, obj)

				delta := int64(0)
				require.True(t, phg.ChangeNodePart(datastructure.Index(v), from, to, math.MaxInt64,
					func(e datastructure.Index, w int32, size int, pFrom, pTo int32) {
						delta += partitioner.AttributedGain(obj, w, size, pFrom, pTo)
					}))
				after := metrics.Objective(phg, obj)
				require.Equal(t, after-before, delta, "objective %s, move %d -> %d", obj, v, to)

				// move back for the next case
				require.True(t, phg.ChangeNodePart(datastructure.Index(v), to, from, math.MaxInt64, nil))
			}
		}
	}
}

func TestComputeGainAgainstObjective(t *testing.T) {
	for _, obj := range []pkg.Objective{pkg.CUT_OBJECTIVE, pkg.KM1_OBJECTIVE} {
		hg := sevenVertexFixture(t)
		phg := fixturePartition(t, hg, 3, []int{0, 0, 0, 1, 1, 2, 2})

		for v := 0; v < 7; v++ {
			from := phg.PartID(datastructure.Index(v))
			for to := 0; to < 3; to++ {
				if to == from {
					continue
				}
				gain := partitioner.ComputeGain(phg, obj, datastructure.Index(v), to)

				before := metrics.Objective(phg, obj)
				require.True(t, phg.ChangeNodePart(datastructure.Index(v), from, to, math.MaxInt64, nil))
				after := metrics.Objective(phg, obj)
				require.True(t, phg.ChangeNodePart(datastructure.Index(v), to, from, math.MaxInt64, nil))

				require.Equal(t, before-after, gain, "objective %s, move %d -> %d", obj, v, to)
			}
		}
	}
}

func TestGainCacheStaysConsistentUnderMoves(t *testing.T) {
	for _, obj := range []pkg.Objective{pkg.CUT_OBJECTIVE, pkg.KM1_OBJECTIVE} {
		hg := sevenVertexFixture(t)
		phg := fixturePartition(t, hg, 3, []int{0, 0, 0, 1, 1, 2, 2})
		gc := partitioner.NewGainCache(7, 3, obj)
		gc.Initialize(phg, 1)

		moves := [][3]int{{0, 0, 1}, {6, 2, 0}, {3, 1, 2}, {0, 1, 2}, {5, 2, 1}}
		for _, m := range moves {
			v, from, to := datastructure.Index(m[0]), m[1], m[2]
			var deltas []partitioner.EdgeDelta
			require.True(t, phg.ChangeNodePart(v, from, to, math.MaxInt64,
				func(e datastructure.Index, w int32, size int, pFrom, pTo int32) {
					deltas = append(deltas, partitioner.EdgeDelta{E: e, PFromAfter: pFrom, PToAfter: pTo})
				}))
			gc.ApplyMove(phg, v, from, to, deltas)

			// after every committed move the cache must equal the exact gains
			for u := 0; u < 7; u++ {
				for p := 0; p < 3; p++ {
					if p == phg.PartID(datastructure.Index(u)) {
						continue
					}
					expected := partitioner.ComputeGain(phg, obj, datastructure.Index(u), p)
					require.Equal(t, expected, gc.Gain(datastructure.Index(u), p),
						"objective %s: stale cache for vertex %d target %d after move %v", obj, u, p, m)
				}
				require.Equal(t, gc.RecomputePenalty(phg, datastructure.Index(u)), gc.Penalty(datastructure.Index(u)))
			}
		}
	}
}

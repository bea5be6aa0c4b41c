package community_test

import (
	"testing"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/community"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/logger"
	"github.com/stretchr/testify/require"
)

// twoClusterHypergraph has two dense groups {0..4} and {5..9} joined by a
// single bridge net.
func twoClusterHypergraph(t *testing.T) *datastructure.Hypergraph {
	t.Helper()
	offsets := []int{0}
	pins := make([]datastructure.Index, 0)
	addNet := func(vs ...datastructure.Index) {
		pins = append(pins, vs...)
		offsets = append(offsets, len(pins))
	}
	for _, base := range []datastructure.Index{0, 5} {
		for i := datastructure.Index(0); i < 5; i++ {
			for j := i + 1; j < 5; j++ {
				addNet(base+i, base+j)
			}
		}
	}
	addNet(4, 5)
	hg, err := datastructure.NewHypergraph(10, len(offsets)-1, offsets, pins, nil, nil)
	require.NoError(t, err)
	return hg
}

func TestDetectSeparatesDenseClusters(t *testing.T) {
	hg := twoClusterHypergraph(t)
	for _, deterministic := range []bool{false, true} {
		communities := community.Detect(hg, community.Config{
			MaxPasses:     5,
			MinGain:       1e-4,
			Seed:          7,
			Workers:       2,
			Deterministic: deterministic,
		}, logger.NewNop())

		require.Len(t, communities, 10)
		for v := 1; v < 5; v++ {
			require.Equal(t, communities[0], communities[v],
				"deterministic=%v: vertex %d left its cluster", deterministic, v)
		}
		for v := 6; v < 10; v++ {
			require.Equal(t, communities[5], communities[v])
		}
		require.NotEqual(t, communities[0], communities[5],
			"the bridge must not merge the two clusters")
	}
}

func TestDetectDeterministicModeIsReproducible(t *testing.T) {
	hg := twoClusterHypergraph(t)
	run := func() []datastructure.Index {
		return community.Detect(hg, community.Config{
			MaxPasses:     5,
			MinGain:       1e-4,
			Seed:          99,
			Workers:       4,
			Deterministic: true,
		}, logger.NewNop())
	}
	require.Equal(t, run(), run())
}

func TestDetectSingleNetIsOneCommunity(t *testing.T) {
	// one 3-pin net of weight 6 becomes a triangle with edge weight 3
	hg, err := datastructure.NewHypergraph(3, 1,
		[]int{0, 3}, []datastructure.Index{0, 1, 2}, []int32{6}, nil)
	require.NoError(t, err)

	communities := community.Detect(hg, community.Config{
		MaxPasses: 3, MinGain: 1e-4, Seed: 1, Workers: 1,
	}, logger.NewNop())
	// a single net is one community
	require.Equal(t, communities[0], communities[1])
	require.Equal(t, communities[1], communities[2])
}

package partitioner_test

import (
	"testing"
	"time"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/logger"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/metrics"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/partitioner"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

// randomHypergraph builds a connected random test instance with unit
// weights.
func randomHypergraph(t *testing.T, n, m, maxEdgeSize int, seed uint64) *datastructure.Hypergraph {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	offsets := []int{0}
	pins := make([]datastructure.Index, 0, m*maxEdgeSize)
	// a ring keeps the instance connected
	for v := 0; v < n; v++ {
		pins = append(pins, datastructure.Index(v), datastructure.Index((v+1)%n))
		offsets = append(offsets, len(pins))
	}
	for e := 0; e < m; e++ {
		size := 2 + rng.Intn(maxEdgeSize-1)
		seen := make(map[int]bool, size)
		for len(seen) < size {
			seen[rng.Intn(n)] = true
		}
		for v := range seen {
			pins = append(pins, datastructure.Index(v))
		}
		offsets = append(offsets, len(pins))
	}
	hg, err := datastructure.NewHypergraph(n, n+m, offsets, pins, nil, nil)
	require.NoError(t, err)
	return hg
}

func randomAssignment(n, k int, seed uint64) []int {
	rng := rand.New(rand.NewSource(seed))
	assignment := make([]int, n)
	// balanced round-robin over a shuffled order
	for i, v := range rng.Perm(n) {
		assignment[v] = i % k
	}
	return assignment
}

func TestLabelPropagationNeverWorsensObjective(t *testing.T) {
	for _, obj := range []pkg.Objective{pkg.CUT_OBJECTIVE, pkg.KM1_OBJECTIVE} {
		for seed := uint64(1); seed <= 5; seed++ {
			hg := randomHypergraph(t, 40, 60, 4, seed)
			ctx := testContext(3, obj)
			ctx.Seed = seed
			ctx.NumThreads = 1
			phg := fixturePartition(t, hg, 3, randomAssignment(40, 3, seed))

			before := metrics.Objective(phg, obj)
			lp := partitioner.NewLabelPropagationRefiner(ctx, nil, logger.NewNop())
			improvement := lp.Refine(phg, time.Now().Add(5*time.Second))
			after := metrics.Objective(phg, obj)

			require.LessOrEqual(t, after, before, "label propagation must never worsen %s", obj)
			require.Equal(t, before-after, improvement)
		}
	}
}

func TestLabelPropagationRespectsBalance(t *testing.T) {
	hg := randomHypergraph(t, 40, 60, 4, 7)
	ctx := testContext(4, pkg.KM1_OBJECTIVE)
	ctx.Epsilon = 0.1
	phg := fixturePartition(t, hg, 4, randomAssignment(40, 4, 7))
	require.True(t, metrics.IsBalanced(phg, ctx.Epsilon))

	lp := partitioner.NewLabelPropagationRefiner(ctx, nil, logger.NewNop())
	lp.Refine(phg, time.Now().Add(5*time.Second))
	require.True(t, metrics.IsBalanced(phg, ctx.Epsilon))
}

func TestFMImprovesOrKeepsObjectiveAndBalance(t *testing.T) {
	for _, obj := range []pkg.Objective{pkg.CUT_OBJECTIVE, pkg.KM1_OBJECTIVE} {
		for seed := uint64(1); seed <= 3; seed++ {
			hg := randomHypergraph(t, 40, 60, 4, 100+seed)
			ctx := testContext(3, obj)
			ctx.Epsilon = 0.2
			ctx.Seed = seed
			ctx.NumThreads = 1
			phg := fixturePartition(t, hg, 3, randomAssignment(40, 3, seed))
			require.True(t, metrics.IsBalanced(phg, ctx.Epsilon))

			gc := partitioner.NewGainCache(40, 3, obj)
			fm := partitioner.NewFMRefiner(ctx, gc, logger.NewNop())
			fm.Initialize(phg)

			before := metrics.Objective(phg, obj)
			fm.Refine(phg, time.Now().Add(10*time.Second))
			after := metrics.Objective(phg, obj)

			require.LessOrEqual(t, after, before)
			require.True(t, metrics.IsBalanced(phg, ctx.Epsilon),
				"fm must roll back to a balanced prefix")

			// the cache must still be exact after searches and rollbacks
			for v := 0; v < 40; v++ {
				for p := 0; p < 3; p++ {
					if p == phg.PartID(datastructure.Index(v)) {
						continue
					}
					require.Equal(t, partitioner.ComputeGain(phg, obj, datastructure.Index(v), p),
						gc.Gain(datastructure.Index(v), p))
				}
			}
		}
	}
}

func TestFMRollbackKeepsOptimalPartitionUntouched(t *testing.T) {
	// two disjoint dense groups joined by nothing: the bisection is optimal
	// and FM must leave it exactly as is
	hg, err := datastructure.NewHypergraph(6, 2,
		[]int{0, 3, 6},
		[]datastructure.Index{0, 1, 2, 3, 4, 5},
		nil, nil)
	require.NoError(t, err)
	ctx := testContext(2, pkg.KM1_OBJECTIVE)
	ctx.NumThreads = 1
	assignment := []int{0, 0, 0, 1, 1, 1}
	phg := fixturePartition(t, hg, 2, assignment)

	gc := partitioner.NewGainCache(6, 2, pkg.KM1_OBJECTIVE)
	fm := partitioner.NewFMRefiner(ctx, gc, logger.NewNop())
	fm.Initialize(phg)
	improvement := fm.Refine(phg, time.Now().Add(5*time.Second))

	require.Equal(t, int64(0), improvement)
	for v, p := range assignment {
		require.Equal(t, p, phg.PartID(datastructure.Index(v)))
	}
	require.Equal(t, int64(0), metrics.Km1(phg))
}

func TestFlowRefinerReducesCutOnChainInstance(t *testing.T) {
	// a path hypergraph split badly in the middle: flow refinement can slide
	// the boundary to a single edge
	n := 16
	offsets := []int{0}
	pins := make([]datastructure.Index, 0)
	for v := 0; v < n-1; v++ {
		pins = append(pins, datastructure.Index(v), datastructure.Index(v+1))
		offsets = append(offsets, len(pins))
	}
	hg, err := datastructure.NewHypergraph(n, n-1, offsets, pins, nil, nil)
	require.NoError(t, err)

	ctx := testContext(2, pkg.CUT_OBJECTIVE)
	ctx.Epsilon = 0.5
	// vertex 3 placed in block 1 adds two cut edges to the one at the middle
	assignment := make([]int, n)
	for v := n / 2; v < n; v++ {
		assignment[v] = 1
	}
	assignment[3] = 1
	phg := fixturePartition(t, hg, 2, assignment)

	before := metrics.Cut(phg)
	fr := partitioner.NewFlowRefiner(ctx, nil, logger.NewNop())
	improvement := fr.Refine(phg, time.Now().Add(10*time.Second))
	after := metrics.Cut(phg)

	require.Equal(t, before-after, improvement)
	require.Less(t, after, before, "flow refinement should reduce the cut")
	require.True(t, metrics.IsBalanced(phg, ctx.Epsilon))
}

func TestInitialPartitionerProducesFeasiblePartition(t *testing.T) {
	for _, k := range []int{2, 3, 4} {
		hg := randomHypergraph(t, 50, 80, 4, uint64(k)*13)
		ctx := testContext(k, pkg.KM1_OBJECTIVE)
		ctx.Epsilon = 0.1

		phg := datastructure.NewPartitionedHypergraph(hg, k)
		ip := partitioner.NewInitialPartitioner(ctx, logger.NewNop())
		require.NoError(t, ip.Partition(phg))

		require.True(t, metrics.IsBalanced(phg, ctx.Epsilon))
		total := int64(0)
		for p := 0; p < k; p++ {
			total += phg.PartWeight(p)
		}
		require.Equal(t, hg.TotalWeight(), total)
		for v := 0; v < 50; v++ {
			p := phg.PartID(datastructure.Index(v))
			require.GreaterOrEqual(t, p, 0)
			require.Less(t, p, k)
		}
	}
}

func TestDinicMaxFlowOnKnownNetwork(t *testing.T) {
	// source=0, sink=1, inner nodes a=2, b=3
	fn := partitioner.NewFlowNetwork(4)
	fn.AddArc(0, 2, 3)
	fn.AddArc(0, 3, 2)
	fn.AddArc(2, 3, 1)
	fn.AddArc(2, 1, 2)
	fn.AddArc(3, 1, 3)

	require.Equal(t, int64(5), fn.MaxFlow())

	reachable := fn.SourceSideCut()
	require.True(t, reachable[0])
	require.False(t, reachable[1], "sink must be separated after max flow")
}

func TestDinicOnDisconnectedSink(t *testing.T) {
	fn := partitioner.NewFlowNetwork(3)
	fn.AddArc(0, 2, 5)
	require.Equal(t, int64(0), fn.MaxFlow())
	reachable := fn.SourceSideCut()
	require.True(t, reachable[2])
	require.False(t, reachable[1])
}

package concurrent_test

import (
	"sync/atomic"
	"testing"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/concurrent"
	"github.com/stretchr/testify/require"
)

func TestParallelForCoversRangeExactlyOnce(t *testing.T) {
	for _, n := range []int{0, 1, 7, 100, 1001} {
		for _, workers := range []int{1, 2, 8} {
			hits := make([]int32, n)
			concurrent.ParallelFor(n, workers, func(_, lo, hi int) {
				for i := lo; i < hi; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
			})
			for i, h := range hits {
				require.Equal(t, int32(1), h, "n=%d workers=%d index %d", n, workers, i)
			}
		}
	}
}

func TestParallelReduceSums(t *testing.T) {
	n := 1000
	got := concurrent.ParallelReduce(n, 4, int64(0),
		func(_, lo, hi int) int64 {
			sum := int64(0)
			for i := lo; i < hi; i++ {
				sum += int64(i)
			}
			return sum
		},
		func(a, b int64) int64 { return a + b })
	require.Equal(t, int64(n*(n-1)/2), got)
}

func TestInvokeRunsAllTasks(t *testing.T) {
	var counter int32
	concurrent.Invoke(
		func() { atomic.AddInt32(&counter, 1) },
		func() { atomic.AddInt32(&counter, 1) },
		func() { atomic.AddInt32(&counter, 1) },
	)
	require.Equal(t, int32(3), counter)
}

func TestWorkerPoolProcessesAllJobs(t *testing.T) {
	pool := concurrent.NewWorkerPool[int, int](4, 16)
	pool.Start(func(job int) int { return job * job })
	for i := 1; i <= 16; i++ {
		pool.Submit(i)
	}

	results := pool.Drain()
	require.Len(t, results, 16)
	sum := 0
	for _, res := range results {
		sum += res
	}
	require.Equal(t, 1496, sum) // sum of squares 1..16
}

func TestForEachBucketAppliesBucketsInOrder(t *testing.T) {
	n := 100
	computed := make([]int, n)
	applied := make([]int, 0, n)
	concurrent.ForEachBucket(n, 8, 4,
		func(_, lo, hi int) {
			for i := lo; i < hi; i++ {
				computed[i] = i * 2
			}
		},
		func(lo, hi int) {
			for i := lo; i < hi; i++ {
				applied = append(applied, computed[i])
			}
		})

	require.Len(t, applied, n)
	for i, v := range applied {
		require.Equal(t, i*2, v, "apply must consume buckets in index order")
	}
}

func TestNumWorkersClamps(t *testing.T) {
	require.GreaterOrEqual(t, concurrent.NumWorkers(0), 1)
	require.Equal(t, 1, concurrent.NumWorkers(1))
	require.GreaterOrEqual(t, concurrent.NumWorkers(1_000_000), 1)
}

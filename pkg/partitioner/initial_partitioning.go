package partitioner

import (
	"container/list"
	"errors"
	"math"
	"time"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/concurrent"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/config"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
)

// ErrInfeasibleBalance is returned when no seed partitioner produced a
// balanced partition of the coarsest hypergraph within the retry budget.
var ErrInfeasibleBalance = errors.New("initial partitioning could not satisfy the balance constraint")

type ipAlgorithm uint8

const (
	IP_RANDOM ipAlgorithm = iota
	IP_BFS
	IP_GREEDY_KM1
	IP_GREEDY_CUT
	IP_LABEL_PROPAGATION
	IP_RECURSIVE_BISECTION
)

func (a ipAlgorithm) String() string {
	switch a {
	case IP_RANDOM:
		return "random"
	case IP_BFS:
		return "bfs"
	case IP_GREEDY_KM1:
		return "greedy_km1"
	case IP_GREEDY_CUT:
		return "greedy_cut"
	case IP_LABEL_PROPAGATION:
		return "label_propagation"
	case IP_RECURSIVE_BISECTION:
		return "recursive_bisection"
	}
	return "unknown"
}

var poolAlgorithms = []ipAlgorithm{
	IP_RANDOM, IP_BFS, IP_GREEDY_KM1, IP_GREEDY_CUT, IP_LABEL_PROPAGATION, IP_RECURSIVE_BISECTION,
}

type ipCandidate struct {
	algo      ipAlgorithm
	partition []int
	feasible  bool
	objective int64
	imbalance float64
}

// InitialPartitioner runs a portfolio of seed algorithms on the coarsest
// hypergraph in parallel and keeps the best candidate: feasibility first,
// objective second, imbalance as the tie-break.
type InitialPartitioner struct {
	ctx    *config.Context
	logger *zap.Logger
}

func NewInitialPartitioner(ctx *config.Context, logger *zap.Logger) *InitialPartitioner {
	return &InitialPartitioner{ctx: ctx, logger: logger}
}

// Partition assigns every vertex of phg's hypergraph and initializes the
// derived state. When the balance constraint cannot be met it reruns the
// pool with derived seeds; after the deterministic retry cap it returns
// ErrInfeasibleBalance without touching phg.
func (ip *InitialPartitioner) Partition(phg *datastructure.PartitionedHypergraph) error {
	var best *ipCandidate
	for attempt := 0; attempt < pkg.IP_MAX_REPETITIONS; attempt++ {
		seed := ip.ctx.Seed + uint64(attempt)*0x2545f4914f6cdd1d
		cand := ip.runPool(phg.Hypergraph(), seed)
		if best == nil || betterCandidate(cand, best) {
			best = cand
		}
		if best.feasible {
			break
		}
		ip.logger.Sugar().Warnf("initial partitioning attempt %d infeasible (imbalance %.4f), retrying with stricter seed", attempt, best.imbalance)
	}
	if best == nil || !best.feasible {
		return ErrInfeasibleBalance
	}

	for v, p := range best.partition {
		phg.SetOnlyNodePart(datastructure.Index(v), p)
	}
	phg.InitializePartition(ip.ctx.NumThreads)
	ip.logger.Sugar().Infof("initial partitioning: %s won with %s=%d, imbalance %.4f",
		best.algo, ip.ctx.Objective, best.objective, best.imbalance)
	return nil
}

// runPool evaluates all seed algorithms concurrently and picks the winner.
func (ip *InitialPartitioner) runPool(hg *datastructure.Hypergraph, seed uint64) *ipCandidate {
	pool := concurrent.NewWorkerPool[ipAlgorithm, *ipCandidate](
		concurrent.NumWorkers(ip.ctx.NumThreads), len(poolAlgorithms))
	pool.Start(func(algo ipAlgorithm) *ipCandidate {
		partition := ip.compute(hg, algo, seed^uint64(algo+1)*0x9e3779b97f4a7c15)
		return ip.evaluate(hg, algo, partition)
	})
	for _, algo := range poolAlgorithms {
		pool.Submit(algo)
	}

	// betterCandidate is a total order, so the winner does not depend on the
	// drain order
	var best *ipCandidate
	for _, cand := range pool.Drain() {
		if best == nil || betterCandidate(cand, best) {
			best = cand
		}
	}
	return best
}

func betterCandidate(a, b *ipCandidate) bool {
	if a.feasible != b.feasible {
		return a.feasible
	}
	if a.objective != b.objective {
		return a.objective < b.objective
	}
	if a.imbalance != b.imbalance {
		return a.imbalance < b.imbalance
	}
	return a.algo < b.algo
}

func (ip *InitialPartitioner) evaluate(hg *datastructure.Hypergraph, algo ipAlgorithm, partition []int) *ipCandidate {
	phg := datastructure.NewPartitionedHypergraph(hg, ip.ctx.NumBlocks)
	for v, p := range partition {
		phg.SetOnlyNodePart(datastructure.Index(v), p)
	}
	phg.InitializePartition(1)
	return &ipCandidate{
		algo:      algo,
		partition: partition,
		feasible:  metrics.IsBalanced(phg, ip.ctx.Epsilon),
		objective: metrics.Objective(phg, ip.ctx.Objective),
		imbalance: metrics.Imbalance(phg),
	}
}

func (ip *InitialPartitioner) compute(hg *datastructure.Hypergraph, algo ipAlgorithm, seed uint64) []int {
	switch algo {
	case IP_RANDOM:
		return ip.randomPartition(hg, seed)
	case IP_BFS:
		return ip.bfsPartition(hg, seed)
	case IP_GREEDY_KM1:
		return ip.greedyPartition(hg, seed, pkg.KM1_OBJECTIVE)
	case IP_GREEDY_CUT:
		return ip.greedyPartition(hg, seed, pkg.CUT_OBJECTIVE)
	case IP_LABEL_PROPAGATION:
		return ip.lpPartition(hg, seed)
	case IP_RECURSIVE_BISECTION:
		return ip.recursiveBisection(hg, ip.ctx.NumBlocks, seed)
	}
	return make([]int, hg.NumberOfVertices())
}

// randomPartition shuffles the vertices and always fills the lightest
// block, so block weights never differ by more than the heaviest vertex.
func (ip *InitialPartitioner) randomPartition(hg *datastructure.Hypergraph, seed uint64) []int {
	k := ip.ctx.NumBlocks
	n := hg.NumberOfVertices()

	order := rand.New(rand.NewSource(seed)).Perm(n)
	partition := make([]int, n)
	weights := make([]int64, k)
	for _, v := range order {
		partition[v] = lightestFittingBlock(weights)
		weights[partition[v]] += int64(hg.NodeWeight(datastructure.Index(v)))
	}
	return partition
}

// bfsPartition grows k fronts from random roots in round-robin order.
func (ip *InitialPartitioner) bfsPartition(hg *datastructure.Hypergraph, seed uint64) []int {
	k := ip.ctx.NumBlocks
	lmax := metrics.LMax(hg.TotalWeight(), k, ip.ctx.Epsilon)
	n := hg.NumberOfVertices()
	rng := rand.New(rand.NewSource(seed))

	partition := make([]int, n)
	for v := range partition {
		partition[v] = pkg.INVALID_PARTITION_ID
	}
	weights := make([]int64, k)
	queues := make([]*list.List, k)
	for p := 0; p < k; p++ {
		queues[p] = list.New()
		queues[p].PushBack(datastructure.Index(rng.Intn(n)))
	}

	assigned := 0
	for assigned < n {
		progress := false
		for p := 0; p < k && assigned < n; p++ {
			for queues[p].Len() > 0 {
				v := queues[p].Remove(queues[p].Front()).(datastructure.Index)
				if partition[v] != pkg.INVALID_PARTITION_ID {
					continue
				}
				if weights[p]+int64(hg.NodeWeight(v)) > lmax {
					continue
				}
				partition[v] = p
				weights[p] += int64(hg.NodeWeight(v))
				assigned++
				progress = true
				for _, e := range hg.IncidentNets(v) {
					for _, u := range hg.Pins(e) {
						if partition[u] == pkg.INVALID_PARTITION_ID {
							queues[p].PushBack(u)
						}
					}
				}
				break
			}
		}
		if !progress {
			// disconnected remainder: place into the lightest fitting block
			for v := 0; v < n; v++ {
				if partition[v] == pkg.INVALID_PARTITION_ID {
					p := lightestFittingBlock(weights)
					partition[v] = p
					weights[p] += int64(hg.NodeWeight(datastructure.Index(v)))
					assigned++
				}
			}
		}
	}
	return partition
}

// greedyPartition assigns vertices in random order, each to the feasible
// block scoring best under the objective given the already placed pins.
func (ip *InitialPartitioner) greedyPartition(hg *datastructure.Hypergraph, seed uint64, obj pkg.Objective) []int {
	k := ip.ctx.NumBlocks
	lmax := metrics.LMax(hg.TotalWeight(), k, ip.ctx.Epsilon)
	n := hg.NumberOfVertices()
	m := hg.NumberOfHyperedges()

	order := rand.New(rand.NewSource(seed)).Perm(n)
	partition := make([]int, n)
	for v := range partition {
		partition[v] = pkg.INVALID_PARTITION_ID
	}
	weights := make([]int64, k)
	placedPins := make([]int32, m)
	pinCount := make([]int32, m*k)

	for _, v := range order {
		w := int64(hg.NodeWeight(datastructure.Index(v)))
		bestBlock := -1
		bestScore := int64(math.MinInt64)
		for p := 0; p < k; p++ {
			if weights[p]+w > lmax {
				continue
			}
			score := int64(0)
			for _, e := range hg.IncidentNets(datastructure.Index(v)) {
				ew := int64(hg.EdgeWeight(e))
				cnt := pinCount[int(e)*k+p]
				if obj == pkg.KM1_OBJECTIVE {
					if cnt > 0 {
						score += ew
					}
				} else if cnt == placedPins[e] && cnt > 0 {
					// net still uncut and entirely in p
					score += ew
				}
			}
			// prefer lighter blocks on equal score
			if score > bestScore || (score == bestScore && bestBlock >= 0 && weights[p] < weights[bestBlock]) {
				bestBlock = p
				bestScore = score
			}
		}
		if bestBlock < 0 {
			bestBlock = lightestFittingBlock(weights)
		}
		partition[v] = bestBlock
		weights[bestBlock] += w
		for _, e := range hg.IncidentNets(datastructure.Index(v)) {
			placedPins[e]++
			pinCount[int(e)*k+bestBlock]++
		}
	}
	return partition
}

// lpPartition starts from a random assignment and polishes it with a few
// label propagation rounds.
func (ip *InitialPartitioner) lpPartition(hg *datastructure.Hypergraph, seed uint64) []int {
	partition := ip.randomPartition(hg, seed)
	phg := datastructure.NewPartitionedHypergraph(hg, ip.ctx.NumBlocks)
	for v, p := range partition {
		phg.SetOnlyNodePart(datastructure.Index(v), p)
	}
	phg.InitializePartition(1)

	lpCtx := *ip.ctx
	lpCtx.Seed = seed
	lpCtx.NumThreads = 1
	lp := NewLabelPropagationRefiner(&lpCtx, nil, ip.logger)
	lp.Refine(phg, time.Now().Add(5*time.Second))

	for v := range partition {
		partition[v] = phg.PartID(datastructure.Index(v))
	}
	return partition
}

// recursiveBisection splits the hypergraph into two sides sized k1:k2 by
// BFS growing, then recurses on the extracted sides.
func (ip *InitialPartitioner) recursiveBisection(hg *datastructure.Hypergraph, k int, seed uint64) []int {
	n := hg.NumberOfVertices()
	partition := make([]int, n)
	if k <= 1 {
		return partition
	}

	k1 := k / 2
	k2 := k - k1
	targetA := hg.TotalWeight() * int64(k1) / int64(k)
	rng := rand.New(rand.NewSource(seed))

	// grow side A from a random root until it holds its share of the weight
	sideA := make([]bool, n)
	weightA := int64(0)
	queue := list.New()
	queue.PushBack(datastructure.Index(rng.Intn(n)))
	for weightA < targetA {
		if queue.Len() == 0 {
			// disconnected: restart from any unassigned vertex
			restarted := false
			for v := 0; v < n; v++ {
				if !sideA[v] {
					queue.PushBack(datastructure.Index(v))
					restarted = true
					break
				}
			}
			if !restarted {
				break
			}
		}
		v := queue.Remove(queue.Front()).(datastructure.Index)
		if sideA[v] {
			continue
		}
		sideA[v] = true
		weightA += int64(hg.NodeWeight(v))
		for _, e := range hg.IncidentNets(v) {
			for _, u := range hg.Pins(e) {
				if !sideA[u] {
					queue.PushBack(u)
				}
			}
		}
	}

	bisection := datastructure.NewPartitionedHypergraph(hg, 2)
	for v := 0; v < n; v++ {
		if sideA[v] {
			bisection.SetOnlyNodePart(datastructure.Index(v), 0)
		} else {
			bisection.SetOnlyNodePart(datastructure.Index(v), 1)
		}
	}
	bisection.InitializePartition(1)

	assignSide := func(block, blockOffset, subK int, subSeed uint64) {
		sub, mapping := bisection.Extract(block, true)
		if sub == nil {
			return
		}
		subPartition := ip.recursiveBisection(sub, subK, subSeed)
		for v := 0; v < n; v++ {
			if mapping[v] != datastructure.InvalidIndex && bisection.PartID(datastructure.Index(v)) == block {
				partition[v] = blockOffset + subPartition[mapping[v]]
			}
		}
	}
	assignSide(0, 0, k1, seed*31+1)
	assignSide(1, k1, k2, seed*31+2)
	return partition
}

// lightestFittingBlock returns the block with the smallest weight. It may
// still exceed L_max; the pool's evaluation marks such candidates
// infeasible.
func lightestFittingBlock(weights []int64) int {
	best := 0
	for p := 1; p < len(weights); p++ {
		if weights[p] < weights[best] {
			best = p
		}
	}
	return best
}

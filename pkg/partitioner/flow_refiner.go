package partitioner

import (
	"container/list"
	"math"
	"sort"
	"time"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/concurrent"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/config"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/metrics"
	"go.uber.org/zap"
)

// FlowRefiner improves the boundary between pairs of adjacent blocks. For a
// pair (i,j) it grows a region around the shared boundary, builds a flow
// network whose minimum cut is the best (i,j) split of that region, solves
// it with Dinic and commits the induced moves atomically.
type FlowRefiner struct {
	ctx       *config.Context
	gainCache *GainCache
	logger    *zap.Logger
}

func NewFlowRefiner(ctx *config.Context, gainCache *GainCache, logger *zap.Logger) *FlowRefiner {
	return &FlowRefiner{ctx: ctx, gainCache: gainCache, logger: logger}
}

func (fr *FlowRefiner) Name() string { return "flows" }

func (fr *FlowRefiner) Initialize(*datastructure.PartitionedHypergraph) {}

type blockPair struct{ i, j int }

func (fr *FlowRefiner) Refine(phg *datastructure.PartitionedHypergraph, deadline time.Time) int64 {
	totalImprovement := int64(0)
	for round := 0; ; round++ {
		if time.Now().After(deadline) {
			break
		}
		pairs := fr.adjacentBlockPairs(phg)
		if len(pairs) == 0 {
			break
		}

		roundImprovement := int64(0)
		// pairs of one round touch disjoint blocks, so they may run
		// concurrently without contending on block weights
		for _, schedule := range matchPairs(pairs, phg.K()) {
			pool := concurrent.NewWorkerPool[blockPair, int64](
				concurrent.NumWorkers(fr.ctx.NumThreads), len(schedule))
			pool.Start(func(pair blockPair) int64 {
				return fr.refinePair(phg, pair.i, pair.j, deadline)
			})
			for _, pair := range schedule {
				pool.Submit(pair)
			}
			for _, improvement := range pool.Drain() {
				roundImprovement += improvement
			}
		}

		totalImprovement += roundImprovement
		fr.logger.Sugar().Debugf("flow round %d: improvement %d", round, roundImprovement)
		if roundImprovement == 0 {
			break
		}
	}
	return totalImprovement
}

// adjacentBlockPairs lists block pairs that share at least one cut
// hyperedge.
func (fr *FlowRefiner) adjacentBlockPairs(phg *datastructure.PartitionedHypergraph) []blockPair {
	hg := phg.Hypergraph()
	seen := make(map[blockPair]struct{})
	for e := 0; e < hg.NumberOfHyperedges(); e++ {
		blocks := phg.ConnectivitySet(datastructure.Index(e))
		for a := 0; a < len(blocks); a++ {
			for b := a + 1; b < len(blocks); b++ {
				seen[blockPair{blocks[a], blocks[b]}] = struct{}{}
			}
		}
	}
	pairs := make([]blockPair, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].i != pairs[b].i {
			return pairs[a].i < pairs[b].i
		}
		return pairs[a].j < pairs[b].j
	})
	return pairs
}

// matchPairs greedily packs pairs into schedules where no block occurs
// twice.
func matchPairs(pairs []blockPair, k int) [][]blockPair {
	var schedules [][]blockPair
	remaining := append([]blockPair(nil), pairs...)
	for len(remaining) > 0 {
		used := make([]bool, k)
		schedule := make([]blockPair, 0)
		rest := remaining[:0]
		for _, p := range remaining {
			if !used[p.i] && !used[p.j] {
				used[p.i] = true
				used[p.j] = true
				schedule = append(schedule, p)
			} else {
				rest = append(rest, p)
			}
		}
		remaining = rest
		schedules = append(schedules, schedule)
	}
	return schedules
}

// refinePair runs one flow problem on the (i,j) boundary and commits the
// move sequence if it improves the objective without breaking balance.
func (fr *FlowRefiner) refinePair(phg *datastructure.PartitionedHypergraph, i, j int, deadline time.Time) int64 {
	if time.Now().After(deadline) {
		return 0
	}
	hg := phg.Hypergraph()
	lmax := metrics.LMax(hg.TotalWeight(), phg.K(), fr.ctx.Epsilon)

	region := fr.growRegion(phg, i, j)
	if len(region) == 0 {
		return 0
	}

	network, nodeOf := fr.buildFlowNetwork(phg, region, i, j)
	network.MaxFlow()

	sourceSide := network.SourceSideCut()
	sinkSide := network.SinkSideCut()

	// two extreme minimum cuts; pick the assignment with the better balance
	assignA := fr.sideAssignment(region, nodeOf, sourceSide, true)
	assignB := fr.sideAssignment(region, nodeOf, sinkSide, false)
	best := fr.moreBalanced(phg, region, i, j, assignA, assignB)

	return fr.commit(phg, region, i, j, best, lmax)
}

// growRegion BFS-grows both sides of the (i,j) boundary until the per-side
// weight bound proportional to epsilon * W / k is hit.
func (fr *FlowRefiner) growRegion(phg *datastructure.PartitionedHypergraph, i, j int) []datastructure.Index {
	hg := phg.Hypergraph()
	bound := int64(fr.ctx.FlowRegionScale * fr.ctx.Epsilon *
		float64(hg.TotalWeight()) / float64(phg.K()))
	if bound < 1 {
		bound = 1
	}
	// part of each block must stay outside the region: those vertices anchor
	// their nets to the source and sink
	sideBound := [2]int64{minInt64(bound, phg.PartWeight(i)/2), minInt64(bound, phg.PartWeight(j)/2)}
	for side := range sideBound {
		if sideBound[side] < 1 {
			sideBound[side] = 1
		}
	}

	inRegion := make(map[datastructure.Index]bool)
	sideWeight := [2]int64{}
	queue := list.New()

	// seed with the boundary vertices of both blocks
	for v := 0; v < hg.NumberOfVertices(); v++ {
		p := phg.PartID(datastructure.Index(v))
		if (p != i && p != j) || !phg.IsBorderNode(datastructure.Index(v)) {
			continue
		}
		onBoundary := false
		for _, e := range hg.IncidentNets(datastructure.Index(v)) {
			if phg.PinCountInPart(e, i) > 0 && phg.PinCountInPart(e, j) > 0 {
				onBoundary = true
				break
			}
		}
		if onBoundary {
			queue.PushBack(datastructure.Index(v))
		}
	}

	for queue.Len() > 0 {
		v := queue.Remove(queue.Front()).(datastructure.Index)
		if inRegion[v] {
			continue
		}
		p := phg.PartID(v)
		side := 0
		if p == j {
			side = 1
		} else if p != i {
			continue
		}
		if sideWeight[side]+int64(hg.NodeWeight(v)) > sideBound[side] {
			continue
		}
		inRegion[v] = true
		sideWeight[side] += int64(hg.NodeWeight(v))
		for _, e := range hg.IncidentNets(v) {
			for _, u := range hg.Pins(e) {
				if !inRegion[u] {
					pu := phg.PartID(u)
					if pu == i || pu == j {
						queue.PushBack(u)
					}
				}
			}
		}
	}

	region := make([]datastructure.Index, 0, len(inRegion))
	for v := range inRegion {
		region = append(region, v)
	}
	sort.Slice(region, func(a, b int) bool { return region[a] < region[b] })
	return region
}

// buildFlowNetwork lawler-expands every hyperedge touching the region:
// edge-in and edge-out nodes joined by a capacity-w(e) arc, with infinite
// arcs to and from its region pins. Nets anchored outside the region hook
// onto the source (block i) or sink (block j). Identical nets are detected
// by hashing their expanded pin footprint and merged.
func (fr *FlowRefiner) buildFlowNetwork(phg *datastructure.PartitionedHypergraph,
	region []datastructure.Index, i, j int) (*FlowNetwork, map[datastructure.Index]int) {
	hg := phg.Hypergraph()

	nodeOf := make(map[datastructure.Index]int, len(region))
	for idx, v := range region {
		nodeOf[v] = 2 + idx
	}

	type netShape struct {
		pins             []datastructure.Index
		anchorI, anchorJ bool
		weight           int64
	}
	type netKey struct {
		hash    uint64
		size    int
		anchorI bool
		anchorJ bool
	}
	merged := make(map[netKey]*netShape)
	order := make([]netKey, 0)

	seenEdges := make(map[datastructure.Index]bool)
	for _, v := range region {
		for _, e := range hg.IncidentNets(v) {
			if seenEdges[e] {
				continue
			}
			seenEdges[e] = true

			shape := &netShape{weight: int64(hg.EdgeWeight(e))}
			for _, u := range hg.Pins(e) {
				if _, ok := nodeOf[u]; ok {
					shape.pins = append(shape.pins, u)
					continue
				}
				switch phg.PartID(u) {
				case i:
					shape.anchorI = true
				case j:
					shape.anchorJ = true
				}
			}
			if len(shape.pins) == 0 {
				continue
			}
			if shape.anchorI && shape.anchorJ {
				// the net stays cut no matter how the region splits
				continue
			}
			sort.Slice(shape.pins, func(a, b int) bool { return shape.pins[a] < shape.pins[b] })
			key := netKey{hash: hashRegionPins(shape.pins), size: len(shape.pins),
				anchorI: shape.anchorI, anchorJ: shape.anchorJ}
			if prev, ok := merged[key]; ok && equalRegionPins(prev.pins, shape.pins) {
				prev.weight += shape.weight
				continue
			}
			merged[key] = shape
			order = append(order, key)
		}
	}

	numNodes := 2 + len(region) + 2*len(order)
	network := NewFlowNetwork(numNodes)
	edgeNodeBase := 2 + len(region)
	for idx, key := range order {
		shape := merged[key]
		in := edgeNodeBase + 2*idx
		out := in + 1
		network.AddArc(in, out, shape.weight)
		for _, v := range shape.pins {
			network.AddArc(nodeOf[v], in, pkg.MAX_FLOW_CAP)
			network.AddArc(out, nodeOf[v], pkg.MAX_FLOW_CAP)
		}
		if shape.anchorI {
			network.AddArc(network.source, in, pkg.MAX_FLOW_CAP)
			network.AddArc(out, network.source, pkg.MAX_FLOW_CAP)
		}
		if shape.anchorJ {
			network.AddArc(network.sink, in, pkg.MAX_FLOW_CAP)
			network.AddArc(out, network.sink, pkg.MAX_FLOW_CAP)
		}
	}
	return network, nodeOf
}

// sideAssignment converts a residual reachability labeling into a per-region
// side choice (true = block i).
func (fr *FlowRefiner) sideAssignment(region []datastructure.Index, nodeOf map[datastructure.Index]int,
	labeling []bool, labelMeansSource bool) []bool {
	assign := make([]bool, len(region))
	for idx, v := range region {
		if labelMeansSource {
			assign[idx] = labeling[nodeOf[v]]
		} else {
			// labeling marks the sink side; everything else is source side
			assign[idx] = !labeling[nodeOf[v]]
		}
	}
	return assign
}

// moreBalanced picks the assignment whose resulting (i,j) weights are
// closer together.
func (fr *FlowRefiner) moreBalanced(phg *datastructure.PartitionedHypergraph,
	region []datastructure.Index, i, j int, a, b []bool) []bool {
	diff := func(assign []bool) int64 {
		hg := phg.Hypergraph()
		wi, wj := phg.PartWeight(i), phg.PartWeight(j)
		for idx, v := range region {
			w := int64(hg.NodeWeight(v))
			cur := phg.PartID(v)
			if assign[idx] && cur == j {
				wj -= w
				wi += w
			} else if !assign[idx] && cur == i {
				wi -= w
				wj += w
			}
		}
		d := wi - wj
		if d < 0 {
			d = -d
		}
		return d
	}
	if diff(a) <= diff(b) {
		return a
	}
	return b
}

// commit applies the side assignment. All moves must fit under L_max and
// the sequence must not worsen the objective, otherwise everything rolls
// back; a zero-delta sequence is kept only if the partition is balanced
// afterwards.
func (fr *FlowRefiner) commit(phg *datastructure.PartitionedHypergraph,
	region []datastructure.Index, i, j int, assign []bool, lmax int64) int64 {
	committed := make([]Move, 0)
	totalDelta := int64(0)

	rollback := func() {
		for idx := len(committed) - 1; idx >= 0; idx-- {
			m := committed[idx]
			var edgeDeltas []EdgeDelta
			phg.ChangeNodePart(m.V, m.To, m.From, math.MaxInt64,
				func(e datastructure.Index, w int32, size int, pFrom, pTo int32) {
					edgeDeltas = append(edgeDeltas, EdgeDelta{E: e, PFromAfter: pFrom, PToAfter: pTo})
				})
			if fr.gainCache != nil {
				fr.gainCache.ApplyMove(phg, m.V, m.To, m.From, edgeDeltas)
			}
		}
	}

	for idx, v := range region {
		cur := phg.PartID(v)
		target := j
		if assign[idx] {
			target = i
		}
		if cur == target {
			continue
		}
		moveDelta := int64(0)
		var edgeDeltas []EdgeDelta
		ok := phg.ChangeNodePart(v, cur, target, lmax,
			func(e datastructure.Index, w int32, size int, pFrom, pTo int32) {
				moveDelta += AttributedGain(fr.ctx.Objective, w, size, pFrom, pTo)
				edgeDeltas = append(edgeDeltas, EdgeDelta{E: e, PFromAfter: pFrom, PToAfter: pTo})
			})
		if !ok {
			rollback()
			return 0
		}
		if fr.gainCache != nil {
			fr.gainCache.ApplyMove(phg, v, cur, target, edgeDeltas)
		}
		committed = append(committed, Move{V: v, From: cur, To: target, Gain: -moveDelta})
		totalDelta += moveDelta
	}

	if totalDelta >= 0 && len(committed) > 0 {
		if totalDelta > 0 {
			rollback()
			return 0
		}
		// zero-delta sequences are kept only if the partition is balanced
		if !metrics.IsBalanced(phg, fr.ctx.Epsilon) {
			rollback()
			return 0
		}
		return 0
	}
	return -totalDelta
}

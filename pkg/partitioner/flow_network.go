package partitioner

import (
	"container/list"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg"
)

// FlowArc is one directed arc of the flow network; arcs are stored in
// forward/reverse pairs so arc i^1 is the residual partner of arc i.
type FlowArc struct {
	to       int
	capacity int64
	flow     int64
}

func (a *FlowArc) Residual() int64 { return a.capacity - a.flow }

func (a *FlowArc) AddFlow(f int64) { a.flow += f }

// FlowNetwork is a directed network with a dedicated source and sink,
// solved by Dinic's algorithm: BFS builds the level graph, a DFS with a
// current-arc pointer pushes blocking flows.
type FlowNetwork struct {
	adjacency [][]int
	arcs      []*FlowArc
	level     []int
	last      []int

	source, sink int
}

func NewFlowNetwork(numNodes int) *FlowNetwork {
	return &FlowNetwork{
		adjacency: make([][]int, numNodes),
		level:     make([]int, numNodes),
		last:      make([]int, numNodes),
		source:    0,
		sink:      1,
	}
}

func (fn *FlowNetwork) NumberOfNodes() int { return len(fn.adjacency) }

// AddArc inserts u->v with the given capacity and its zero-capacity
// reverse.
func (fn *FlowNetwork) AddArc(u, v int, capacity int64) {
	fn.adjacency[u] = append(fn.adjacency[u], len(fn.arcs))
	fn.arcs = append(fn.arcs, &FlowArc{to: v, capacity: capacity})
	fn.adjacency[v] = append(fn.adjacency[v], len(fn.arcs))
	fn.arcs = append(fn.arcs, &FlowArc{to: u})
}

// bfsComputeLevelGraph labels every node with its BFS distance from the
// source in the residual network.
func (fn *FlowNetwork) bfsComputeLevelGraph() bool {
	for v := range fn.level {
		fn.level[v] = pkg.INVALID_LEVEL
	}
	fn.level[fn.source] = 0

	queue := list.New()
	queue.PushBack(fn.source)
	for queue.Len() > 0 {
		u := queue.Remove(queue.Front()).(int)
		for _, arcIdx := range fn.adjacency[u] {
			arc := fn.arcs[arcIdx]
			if arc.Residual() > 0 && fn.level[arc.to] == pkg.INVALID_LEVEL {
				fn.level[arc.to] = fn.level[u] + 1
				queue.PushBack(arc.to)
			}
		}
	}
	return fn.level[fn.sink] != pkg.INVALID_LEVEL
}

// dfsAugmentingPath pushes flow along level-increasing arcs, advancing the
// per-node current-arc pointer past saturated arcs.
func (fn *FlowNetwork) dfsAugmentingPath(u int, limit int64) int64 {
	if u == fn.sink || limit == 0 {
		return limit
	}
	for ; fn.last[u] < len(fn.adjacency[u]); fn.last[u]++ {
		arcIdx := fn.adjacency[u][fn.last[u]]
		arc := fn.arcs[arcIdx]
		if arc.Residual() <= 0 || fn.level[arc.to] != fn.level[u]+1 {
			continue
		}
		pushed := fn.dfsAugmentingPath(arc.to, minInt64(limit, arc.Residual()))
		if pushed > 0 {
			arc.AddFlow(pushed)
			fn.arcs[arcIdx^1].AddFlow(-pushed)
			return pushed
		}
	}
	fn.level[u] = pkg.INVALID_LEVEL
	return 0
}

// MaxFlow computes the maximum source-sink flow.
func (fn *FlowNetwork) MaxFlow() int64 {
	total := int64(0)
	for fn.bfsComputeLevelGraph() {
		for v := range fn.last {
			fn.last[v] = 0
		}
		for {
			pushed := fn.dfsAugmentingPath(fn.source, pkg.MAX_FLOW_CAP)
			if pushed == 0 {
				break
			}
			total += pushed
		}
	}
	return total
}

// SourceSideCut returns, after MaxFlow, the nodes reachable from the source
// in the residual network: the source side of a minimum cut.
func (fn *FlowNetwork) SourceSideCut() []bool {
	reachable := make([]bool, len(fn.adjacency))
	reachable[fn.source] = true
	queue := list.New()
	queue.PushBack(fn.source)
	for queue.Len() > 0 {
		u := queue.Remove(queue.Front()).(int)
		for _, arcIdx := range fn.adjacency[u] {
			arc := fn.arcs[arcIdx]
			if arc.Residual() > 0 && !reachable[arc.to] {
				reachable[arc.to] = true
				queue.PushBack(arc.to)
			}
		}
	}
	return reachable
}

// SinkSideCut returns the complement view: nodes that can still reach the
// sink in the residual network. Its complement is the largest source side
// among all minimum cuts, so the two cuts bracket the most-balanced choice.
func (fn *FlowNetwork) SinkSideCut() []bool {
	canReach := make([]bool, len(fn.adjacency))
	canReach[fn.sink] = true
	queue := list.New()
	queue.PushBack(fn.sink)
	for queue.Len() > 0 {
		u := queue.Remove(queue.Front()).(int)
		// walk reverse residual arcs: x -> u with residual left
		for _, arcIdx := range fn.adjacency[u] {
			rev := fn.arcs[arcIdx^1]
			from := fn.arcs[arcIdx].to
			if rev.Residual() > 0 && !canReach[from] {
				canReach[from] = true
				queue.PushBack(from)
			}
		}
	}
	return canReach
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

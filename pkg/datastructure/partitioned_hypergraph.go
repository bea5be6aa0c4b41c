package datastructure

import (
	"sync/atomic"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/concurrent"
)

// DeltaFunc lets a mover observe, per incident hyperedge, the pin counts in
// the source and target block right after its move committed on that edge.
// Callers accumulate the objective delta (cut or km1) from these values.
type DeltaFunc func(e Index, edgeWeight int32, edgeSize int, pinCountInFromAfter, pinCountInToAfter int32)

// PartitionedHypergraph overlays a block assignment over a static hypergraph
// and maintains all derived state - block weights, pin counts per
// (edge,block), connectivity sets and border-node counters - under
// concurrent moves. Any interleaving of accepted ChangeNodePart calls leaves
// the same derived state as some serial order of those calls.
type PartitionedHypergraph struct {
	hg *Hypergraph
	k  int

	partIDs     []int32
	partWeights []int64
	pinCounts   []int32 // numEdges * k
	connSets    *ConnectivitySets

	numIncidentCutHyperedges []int32
}

func NewPartitionedHypergraph(hg *Hypergraph, k int) *PartitionedHypergraph {
	n, m := hg.NumberOfVertices(), hg.NumberOfHyperedges()
	phg := &PartitionedHypergraph{
		hg:                       hg,
		k:                        k,
		partIDs:                  make([]int32, n),
		partWeights:              make([]int64, k),
		pinCounts:                make([]int32, m*k),
		connSets:                 NewConnectivitySets(m, k),
		numIncidentCutHyperedges: make([]int32, n),
	}
	for v := range phg.partIDs {
		phg.partIDs[v] = pkg.INVALID_PARTITION_ID
	}
	return phg
}

func (phg *PartitionedHypergraph) Hypergraph() *Hypergraph { return phg.hg }

func (phg *PartitionedHypergraph) K() int { return phg.k }

func (phg *PartitionedHypergraph) PartID(v Index) int {
	return int(atomic.LoadInt32(&phg.partIDs[v]))
}

func (phg *PartitionedHypergraph) PartWeight(p int) int64 {
	return atomic.LoadInt64(&phg.partWeights[p])
}

func (phg *PartitionedHypergraph) PinCountInPart(e Index, p int) int32 {
	return atomic.LoadInt32(&phg.pinCounts[int(e)*phg.k+p])
}

func (phg *PartitionedHypergraph) Connectivity(e Index) int {
	return phg.connSets.Connectivity(e)
}

func (phg *PartitionedHypergraph) ConnectivitySet(e Index) []int {
	return phg.connSets.Blocks(e)
}

func (phg *PartitionedHypergraph) ForEachBlockOf(e Index, fn func(p int)) {
	phg.connSets.ForEach(e, fn)
}

func (phg *PartitionedHypergraph) NumIncidentCutHyperedges(v Index) int {
	return int(atomic.LoadInt32(&phg.numIncidentCutHyperedges[v]))
}

func (phg *PartitionedHypergraph) IsBorderNode(v Index) bool {
	return atomic.LoadInt32(&phg.numIncidentCutHyperedges[v]) > 0
}

// SetOnlyNodePart assigns v to block p without touching derived state. Used
// for bulk pre-initialization; InitializePartition must run before any
// derived-state reader.
func (phg *PartitionedHypergraph) SetOnlyNodePart(v Index, p int) {
	pkg.Assert(p >= 0 && p < phg.k, "block %d out of range [0,%d)", p, phg.k)
	atomic.StoreInt32(&phg.partIDs[v], int32(p))
}

// InitializePartition recomputes all derived state from the current block
// assignment in parallel: block weights, pin counts, connectivity sets and
// border counters.
func (phg *PartitionedHypergraph) InitializePartition(workers int) {
	n, m, k := phg.hg.NumberOfVertices(), phg.hg.NumberOfHyperedges(), phg.k

	for p := 0; p < k; p++ {
		atomic.StoreInt64(&phg.partWeights[p], 0)
	}
	// block weights: per-worker partials folded at the end
	type weightVec = []int64
	totals := concurrent.ParallelReduce(n, workers, make(weightVec, k),
		func(_, lo, hi int) weightVec {
			local := make(weightVec, k)
			for v := lo; v < hi; v++ {
				local[phg.partIDs[v]] += int64(phg.hg.NodeWeight(Index(v)))
			}
			return local
		},
		func(a, b weightVec) weightVec {
			for p := range a {
				a[p] += b[p]
			}
			return a
		})
	for p := 0; p < k; p++ {
		atomic.StoreInt64(&phg.partWeights[p], totals[p])
	}

	// pin counts and connectivity sets: each edge owns its own row
	concurrent.ParallelFor(m, workers, func(_, lo, hi int) {
		for e := lo; e < hi; e++ {
			base := e * k
			for p := 0; p < k; p++ {
				phg.pinCounts[base+p] = 0
			}
			phg.connSets.Clear(Index(e))
			for _, v := range phg.hg.Pins(Index(e)) {
				p := int(phg.partIDs[v])
				if phg.pinCounts[base+p] == 0 {
					phg.connSets.Add(Index(e), p)
				}
				phg.pinCounts[base+p]++
			}
		}
	})

	// border counters: each vertex owns its own counter
	concurrent.ParallelFor(n, workers, func(_, lo, hi int) {
		for v := lo; v < hi; v++ {
			cnt := int32(0)
			for _, e := range phg.hg.IncidentNets(Index(v)) {
				if phg.connSets.Connectivity(e) >= 2 {
					cnt++
				}
			}
			phg.numIncidentCutHyperedges[v] = cnt
		}
	})
}

// ResetPartition clears the assignment and all derived state.
func (phg *PartitionedHypergraph) ResetPartition() {
	for v := range phg.partIDs {
		phg.partIDs[v] = pkg.INVALID_PARTITION_ID
		phg.numIncidentCutHyperedges[v] = 0
	}
	for p := 0; p < phg.k; p++ {
		atomic.StoreInt64(&phg.partWeights[p], 0)
	}
	for i := range phg.pinCounts {
		phg.pinCounts[i] = 0
	}
	for e := 0; e < phg.hg.NumberOfHyperedges(); e++ {
		phg.connSets.Clear(Index(e))
	}
}

// ChangeNodePart moves v from block `from` to block `to` if the target block
// weight stays within maxWeight and v is still in `from`. The weight
// admission is decided by a compare-and-swap on the target block weight, so
// of two contested movers into a nearly full block exactly one wins; a second
// compare-and-swap on v's block id lets exactly one of two movers racing the
// same vertex win. A rejected move leaves no trace. On success every piece of derived
// state is updated atomically per edge and delta (if non-nil) observes the
// post-move pin counts of each incident edge.
func (phg *PartitionedHypergraph) ChangeNodePart(v Index, from, to int, maxWeight int64, delta DeltaFunc) bool {
	pkg.Assert(from != to, "move of vertex %d to its own block %d", v, from)
	w := int64(phg.hg.NodeWeight(v))

	for {
		cur := atomic.LoadInt64(&phg.partWeights[to])
		if cur+w > maxWeight {
			return false
		}
		if atomic.CompareAndSwapInt64(&phg.partWeights[to], cur, cur+w) {
			break
		}
	}
	if !atomic.CompareAndSwapInt32(&phg.partIDs[v], int32(from), int32(to)) {
		atomic.AddInt64(&phg.partWeights[to], -w)
		return false
	}
	atomic.AddInt64(&phg.partWeights[from], -w)

	k := phg.k
	for _, e := range phg.hg.IncidentNets(v) {
		size := phg.hg.EdgeSize(e)
		base := int(e) * k

		pFrom := atomic.AddInt32(&phg.pinCounts[base+from], -1)
		if pFrom == 0 {
			phg.connSets.Remove(e, from)
		}
		pTo := atomic.AddInt32(&phg.pinCounts[base+to], 1)
		if pTo == 1 {
			phg.connSets.Add(e, to)
		}

		// border transitions: the edge leaves or enters the cut exactly when
		// the pin counts cross the |e| -> |e|-1 and 0 -> 1 thresholds.
		if pTo == int32(size) {
			for _, u := range phg.hg.Pins(e) {
				atomic.AddInt32(&phg.numIncidentCutHyperedges[u], -1)
			}
		}
		if pFrom == int32(size-1) && pTo == 1 {
			for _, u := range phg.hg.Pins(e) {
				atomic.AddInt32(&phg.numIncidentCutHyperedges[u], 1)
			}
		}

		if delta != nil {
			delta(e, phg.hg.EdgeWeight(e), size, pFrom, pTo)
		}
	}
	return true
}

// Extract builds the sub-hypergraph induced by block p. With splitCutNets,
// every incident net is projected onto the block and kept if the projection
// has at least two pins; otherwise only nets fully inside the block survive.
// The returned mapping translates original vertex ids to sub-hypergraph ids
// (InvalidIndex outside the block).
func (phg *PartitionedHypergraph) Extract(p int, splitCutNets bool) (*Hypergraph, []Index) {
	n := phg.hg.NumberOfVertices()
	mapping := make([]Index, n)
	subWeights := make([]int32, 0)
	for v := 0; v < n; v++ {
		if phg.PartID(Index(v)) == p {
			mapping[v] = Index(len(subWeights))
			subWeights = append(subWeights, phg.hg.NodeWeight(Index(v)))
		} else {
			mapping[v] = InvalidIndex
		}
	}

	offsets := []int{0}
	pins := make([]Index, 0)
	weights := make([]int32, 0)
	for e := 0; e < phg.hg.NumberOfHyperedges(); e++ {
		inBlock := phg.PinCountInPart(Index(e), p)
		size := phg.hg.EdgeSize(Index(e))
		keep := false
		if splitCutNets {
			keep = inBlock >= 2
		} else {
			keep = int(inBlock) == size && size >= 2
		}
		if !keep {
			continue
		}
		for _, v := range phg.hg.Pins(Index(e)) {
			if mapping[v] != InvalidIndex {
				pins = append(pins, mapping[v])
			}
		}
		offsets = append(offsets, len(pins))
		weights = append(weights, phg.hg.EdgeWeight(Index(e)))
	}

	if len(subWeights) == 0 {
		return nil, mapping
	}
	sub, err := NewHypergraph(len(subWeights), len(weights), offsets, pins, weights, subWeights)
	if err != nil {
		panic(err)
	}
	return sub, mapping
}

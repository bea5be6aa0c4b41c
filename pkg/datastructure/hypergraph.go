package datastructure

import (
	"fmt"
	"sort"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/concurrent"
	"go.uber.org/multierr"
)

type Index uint32

const InvalidIndex = ^Index(0)

// Hypergraph is the static variant: incidence is fixed after construction
// and stored as two CSR arrays, pins per hyperedge and incident nets per
// vertex.
type Hypergraph struct {
	numNodes int
	numEdges int

	totalWeight int64

	nodeWeights []int32
	edgeWeights []int32

	edgeOffsets []int // len numEdges+1
	pins        []Index

	nodeOffsets  []int // len numNodes+1
	incidentNets []Index
}

// NewHypergraph builds a hypergraph from CSR arrays. edgeOffsets must be
// monotone nondecreasing with edgeOffsets[0] == 0; all weights must be
// strictly positive. nodeWeights or edgeWeights may be nil for unit weights.
func NewHypergraph(numNodes, numEdges int, edgeOffsets []int, pins []Index,
	edgeWeights, nodeWeights []int32) (*Hypergraph, error) {
	if numNodes <= 0 {
		return nil, fmt.Errorf("hypergraph must have at least one vertex, got %d", numNodes)
	}
	if numEdges < 0 {
		return nil, fmt.Errorf("negative hyperedge count %d", numEdges)
	}
	if len(edgeOffsets) != numEdges+1 || edgeOffsets[0] != 0 {
		return nil, fmt.Errorf("edge offsets must have length m+1 with offsets[0]=0")
	}

	var err error
	for e := 0; e < numEdges; e++ {
		if edgeOffsets[e+1] < edgeOffsets[e] {
			err = multierr.Append(err, fmt.Errorf("edge offsets not monotone at hyperedge %d", e))
		}
	}
	if err != nil {
		return nil, err
	}
	if edgeOffsets[numEdges] != len(pins) {
		return nil, fmt.Errorf("pin array length %d does not match offsets[m]=%d", len(pins), edgeOffsets[numEdges])
	}
	for _, v := range pins {
		if int(v) >= numNodes {
			return nil, fmt.Errorf("pin %d out of range [0,%d)", v, numNodes)
		}
	}

	if nodeWeights == nil {
		nodeWeights = make([]int32, numNodes)
		for i := range nodeWeights {
			nodeWeights[i] = 1
		}
	}
	if edgeWeights == nil {
		edgeWeights = make([]int32, numEdges)
		for i := range edgeWeights {
			edgeWeights[i] = 1
		}
	}
	for v, w := range nodeWeights {
		if w <= 0 {
			err = multierr.Append(err, fmt.Errorf("vertex %d has nonpositive weight %d", v, w))
		}
	}
	for e, w := range edgeWeights {
		if w <= 0 {
			err = multierr.Append(err, fmt.Errorf("hyperedge %d has nonpositive weight %d", e, w))
		}
	}
	if err != nil {
		return nil, err
	}

	hg := &Hypergraph{
		numNodes:    numNodes,
		numEdges:    numEdges,
		nodeWeights: append([]int32(nil), nodeWeights...),
		edgeWeights: append([]int32(nil), edgeWeights...),
		edgeOffsets: append([]int(nil), edgeOffsets...),
		pins:        append([]Index(nil), pins...),
	}
	for _, w := range nodeWeights {
		hg.totalWeight += int64(w)
	}
	hg.buildIncidentNets()
	return hg, nil
}

// buildIncidentNets transposes the pin CSR into the incident-net CSR.
func (hg *Hypergraph) buildIncidentNets() {
	degree := make([]int, hg.numNodes)
	for _, v := range hg.pins {
		degree[v]++
	}
	hg.nodeOffsets = make([]int, hg.numNodes+1)
	for v := 0; v < hg.numNodes; v++ {
		hg.nodeOffsets[v+1] = hg.nodeOffsets[v] + degree[v]
	}
	hg.incidentNets = make([]Index, len(hg.pins))
	cursor := append([]int(nil), hg.nodeOffsets[:hg.numNodes]...)
	for e := 0; e < hg.numEdges; e++ {
		for _, v := range hg.Pins(Index(e)) {
			hg.incidentNets[cursor[v]] = Index(e)
			cursor[v]++
		}
	}
}

func (hg *Hypergraph) NumberOfVertices() int { return hg.numNodes }

func (hg *Hypergraph) NumberOfHyperedges() int { return hg.numEdges }

func (hg *Hypergraph) NumberOfPins() int { return len(hg.pins) }

func (hg *Hypergraph) TotalWeight() int64 { return hg.totalWeight }

func (hg *Hypergraph) NodeWeight(v Index) int32 { return hg.nodeWeights[v] }

func (hg *Hypergraph) EdgeWeight(e Index) int32 { return hg.edgeWeights[e] }

func (hg *Hypergraph) EdgeSize(e Index) int {
	return hg.edgeOffsets[e+1] - hg.edgeOffsets[e]
}

func (hg *Hypergraph) NodeDegree(v Index) int {
	return hg.nodeOffsets[v+1] - hg.nodeOffsets[v]
}

// Pins returns the pin list of hyperedge e as a shared slice view.
func (hg *Hypergraph) Pins(e Index) []Index {
	return hg.pins[hg.edgeOffsets[e]:hg.edgeOffsets[e+1]]
}

// IncidentNets returns the hyperedges incident to vertex v as a shared
// slice view.
func (hg *Hypergraph) IncidentNets(v Index) []Index {
	return hg.incidentNets[hg.nodeOffsets[v]:hg.nodeOffsets[v+1]]
}

// ForEachVertexParallel runs fn over all vertex ids on the given number of
// workers.
func (hg *Hypergraph) ForEachVertexParallel(workers int, fn func(v Index)) {
	concurrent.ParallelFor(hg.numNodes, workers, func(_, lo, hi int) {
		for v := lo; v < hi; v++ {
			fn(Index(v))
		}
	})
}

// ForEachHyperedgeParallel runs fn over all hyperedge ids on the given
// number of workers.
func (hg *Hypergraph) ForEachHyperedgeParallel(workers int, fn func(e Index)) {
	concurrent.ParallelFor(hg.numEdges, workers, func(_, lo, hi int) {
		for e := lo; e < hi; e++ {
			fn(Index(e))
		}
	})
}

// RemoveDegenerateNets returns a copy without single-pin hyperedges and with
// parallel hyperedges merged into one net carrying the summed weight.
// Neither removal changes the cut or km1 value of any partition.
func (hg *Hypergraph) RemoveDegenerateNets() *Hypergraph {
	type netKey struct {
		hash uint64
		size int
	}
	seen := make(map[netKey][]Index, hg.numEdges)

	keepOffsets := make([]int, 0, hg.numEdges+1)
	keepOffsets = append(keepOffsets, 0)
	keepPins := make([]Index, 0, len(hg.pins))
	keepWeights := make([]int32, 0, hg.numEdges)
	// representative net index by key, for weight accumulation
	repOf := make(map[netKey]int, hg.numEdges)

	sorted := make([]Index, 0, 64)
	for e := 0; e < hg.numEdges; e++ {
		ps := hg.Pins(Index(e))
		if len(ps) <= 1 {
			continue
		}
		sorted = sorted[:0]
		sorted = append(sorted, ps...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		key := netKey{hash: hashPinList(sorted), size: len(sorted)}
		if cands, ok := seen[key]; ok && equalPins(cands, sorted) {
			keepWeights[repOf[key]] += hg.edgeWeights[e]
			continue
		}
		seen[key] = append([]Index(nil), sorted...)
		repOf[key] = len(keepWeights)
		keepPins = append(keepPins, ps...)
		keepOffsets = append(keepOffsets, len(keepPins))
		keepWeights = append(keepWeights, hg.edgeWeights[e])
	}

	clean, err := NewHypergraph(hg.numNodes, len(keepWeights), keepOffsets, keepPins, keepWeights, hg.nodeWeights)
	if err != nil {
		// inputs came from a validated hypergraph
		panic(err)
	}
	return clean
}

// Contract merges every vertex into the cluster given by clusters[v] and
// returns the coarse hypergraph together with the mapping from fine vertex
// to coarse vertex. Pins are deduplicated per net, single-pin nets dropped
// and parallel nets merged with summed weight.
func (hg *Hypergraph) Contract(clusters []Index) (*Hypergraph, []Index) {
	// compact cluster ids
	mapping := make([]Index, hg.numNodes)
	compact := make(map[Index]Index, hg.numNodes)
	for v := 0; v < hg.numNodes; v++ {
		root := clusters[v]
		id, ok := compact[root]
		if !ok {
			id = Index(len(compact))
			compact[root] = id
		}
		mapping[v] = id
	}
	coarseN := len(compact)

	coarseNodeWeights := make([]int32, coarseN)
	for v := 0; v < hg.numNodes; v++ {
		coarseNodeWeights[mapping[v]] += hg.nodeWeights[v]
	}

	type netKey struct {
		hash uint64
		size int
	}
	seen := make(map[netKey][]Index, hg.numEdges)
	repOf := make(map[netKey]int, hg.numEdges)

	offsets := []int{0}
	pins := make([]Index, 0, len(hg.pins))
	weights := make([]int32, 0, hg.numEdges)

	coarsePins := make([]Index, 0, 64)
	for e := 0; e < hg.numEdges; e++ {
		coarsePins = coarsePins[:0]
		for _, v := range hg.Pins(Index(e)) {
			coarsePins = append(coarsePins, mapping[v])
		}
		sort.Slice(coarsePins, func(i, j int) bool { return coarsePins[i] < coarsePins[j] })
		coarsePins = dedupSorted(coarsePins)
		if len(coarsePins) <= 1 {
			continue
		}
		key := netKey{hash: hashPinList(coarsePins), size: len(coarsePins)}
		if cands, ok := seen[key]; ok && equalPins(cands, coarsePins) {
			weights[repOf[key]] += hg.edgeWeights[e]
			continue
		}
		seen[key] = append([]Index(nil), coarsePins...)
		repOf[key] = len(weights)
		pins = append(pins, coarsePins...)
		offsets = append(offsets, len(pins))
		weights = append(weights, hg.edgeWeights[e])
	}

	coarse, err := NewHypergraph(coarseN, len(weights), offsets, pins, weights, coarseNodeWeights)
	if err != nil {
		panic(err)
	}
	return coarse, mapping
}

func dedupSorted(pins []Index) []Index {
	out := pins[:0]
	for i, p := range pins {
		if i == 0 || p != pins[i-1] {
			out = append(out, p)
		}
	}
	return out
}

func equalPins(a, b []Index) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// hashPinList hashes a sorted pin list (FNV-1a over the ids).
func hashPinList(pins []Index) uint64 {
	h := uint64(14695981039346656037)
	for _, p := range pins {
		x := uint32(p)
		for i := 0; i < 4; i++ {
			h ^= uint64(byte(x))
			h *= 1099511628211
			x >>= 8
		}
	}
	return h
}

package datastructure

import (
	"sort"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg"
)

// DynamicHypergraph supports contracting a vertex pair and reversing that
// contraction exactly. Pins and incident nets are kept as per-object slices
// with an active prefix, so a contraction touches only the incident nets of
// the removed vertex and every mutation is recorded for reversal.
type DynamicHypergraph struct {
	numNodes int
	numEdges int

	nodeWeights []int32
	edgeWeights []int32

	enabledNode []bool
	enabledEdge []bool

	pins     [][]Index
	edgeSize []int

	incidentNets []([]Index)
	incidentSize []int
}

// pinAction records one pin-array mutation of a contraction.
type pinAction struct {
	e       Index
	pos     int
	swapPos int  // only meaningful when removed
	removed bool // v removed from e (u already a pin) vs. v replaced by u
}

// Memento allows Uncontract to reverse a Contract exactly.
type Memento struct {
	u, v          Index
	uIncidentSize int
	actions       []pinAction
}

func (m Memento) Contracted() (u, v Index) { return m.u, m.v }

// RemovedNet records a net disabled by RemoveSinglePinAndParallelNets.
type RemovedNet struct {
	e           Index
	rep         Index // representative net that absorbed the weight (parallel case)
	addedWeight int32
	parallel    bool
}

// NewDynamicHypergraph copies a static hypergraph into the dynamic
// representation.
func NewDynamicHypergraph(hg *Hypergraph) *DynamicHypergraph {
	n, m := hg.NumberOfVertices(), hg.NumberOfHyperedges()
	dhg := &DynamicHypergraph{
		numNodes:     n,
		numEdges:     m,
		nodeWeights:  append([]int32(nil), hg.nodeWeights...),
		edgeWeights:  append([]int32(nil), hg.edgeWeights...),
		enabledNode:  make([]bool, n),
		enabledEdge:  make([]bool, m),
		pins:         make([][]Index, m),
		edgeSize:     make([]int, m),
		incidentNets: make([][]Index, n),
		incidentSize: make([]int, n),
	}
	for v := 0; v < n; v++ {
		dhg.enabledNode[v] = true
		nets := hg.IncidentNets(Index(v))
		dhg.incidentNets[v] = append([]Index(nil), nets...)
		dhg.incidentSize[v] = len(nets)
	}
	for e := 0; e < m; e++ {
		dhg.enabledEdge[e] = true
		ps := hg.Pins(Index(e))
		dhg.pins[e] = append([]Index(nil), ps...)
		dhg.edgeSize[e] = len(ps)
	}
	return dhg
}

func (dhg *DynamicHypergraph) NumberOfVertices() int { return dhg.numNodes }

func (dhg *DynamicHypergraph) NumberOfHyperedges() int { return dhg.numEdges }

// NumberOfEnabledVertices counts vertices not swallowed by a contraction.
func (dhg *DynamicHypergraph) NumberOfEnabledVertices() int {
	cnt := 0
	for _, en := range dhg.enabledNode {
		if en {
			cnt++
		}
	}
	return cnt
}

func (dhg *DynamicHypergraph) IsEnabled(v Index) bool { return dhg.enabledNode[v] }

func (dhg *DynamicHypergraph) IsEdgeEnabled(e Index) bool { return dhg.enabledEdge[e] }

func (dhg *DynamicHypergraph) NodeWeight(v Index) int32 { return dhg.nodeWeights[v] }

func (dhg *DynamicHypergraph) EdgeWeight(e Index) int32 { return dhg.edgeWeights[e] }

func (dhg *DynamicHypergraph) EdgeSize(e Index) int { return dhg.edgeSize[e] }

// Pins returns the active pins of e as a shared slice view.
func (dhg *DynamicHypergraph) Pins(e Index) []Index {
	return dhg.pins[e][:dhg.edgeSize[e]]
}

// IncidentNets returns the active incident nets of v as a shared slice view.
func (dhg *DynamicHypergraph) IncidentNets(v Index) []Index {
	return dhg.incidentNets[v][:dhg.incidentSize[v]]
}

// Contract merges v into u: every net of v either already contains u (v is
// dropped from the pin list) or has its v pin relabeled to u (and joins u's
// incident nets). The returned memento reverses the contraction.
func (dhg *DynamicHypergraph) Contract(u, v Index) Memento {
	pkg.Assert(dhg.enabledNode[u] && dhg.enabledNode[v], "contract of disabled vertex (%d,%d)", u, v)

	memento := Memento{u: u, v: v, uIncidentSize: dhg.incidentSize[u]}

	for _, e := range dhg.IncidentNets(v) {
		active := dhg.pins[e][:dhg.edgeSize[e]]
		posV, hasU := -1, false
		for i, p := range active {
			if p == v {
				posV = i
			} else if p == u {
				hasU = true
			}
		}
		pkg.Assert(posV >= 0, "vertex %d missing from pins of its incident net %d", v, e)

		if hasU {
			last := dhg.edgeSize[e] - 1
			dhg.pins[e][posV], dhg.pins[e][last] = dhg.pins[e][last], dhg.pins[e][posV]
			dhg.edgeSize[e] = last
			memento.actions = append(memento.actions, pinAction{e: e, pos: posV, swapPos: last, removed: true})
		} else {
			dhg.pins[e][posV] = u
			dhg.incidentNets[u] = append(dhg.incidentNets[u][:dhg.incidentSize[u]], e)
			dhg.incidentSize[u]++
			memento.actions = append(memento.actions, pinAction{e: e, pos: posV})
		}
	}

	dhg.nodeWeights[u] += dhg.nodeWeights[v]
	dhg.enabledNode[v] = false
	return memento
}

// Uncontract reverses a contraction. Mementos must be replayed in reverse
// order of their contractions; incident-net lists and pin arrays are
// restored exactly.
func (dhg *DynamicHypergraph) Uncontract(m Memento) {
	dhg.nodeWeights[m.u] -= dhg.nodeWeights[m.v]
	dhg.enabledNode[m.v] = true
	dhg.incidentSize[m.u] = m.uIncidentSize

	for i := len(m.actions) - 1; i >= 0; i-- {
		a := m.actions[i]
		if a.removed {
			dhg.edgeSize[a.e]++
			dhg.pins[a.e][a.pos], dhg.pins[a.e][a.swapPos] = dhg.pins[a.e][a.swapPos], dhg.pins[a.e][a.pos]
		} else {
			dhg.pins[a.e][a.pos] = m.v
		}
	}
}

// RemoveSinglePinAndParallelNets disables nets that cannot affect any
// partitioning objective: nets with at most one active pin and duplicates of
// an identical net, whose weight moves to the surviving representative.
// Restore order is the reverse of the returned slice.
func (dhg *DynamicHypergraph) RemoveSinglePinAndParallelNets() []RemovedNet {
	removed := make([]RemovedNet, 0)

	type netKey struct {
		hash uint64
		size int
	}
	rep := make(map[netKey]Index)
	repPins := make(map[netKey][]Index)

	sorted := make([]Index, 0, 64)
	for e := 0; e < dhg.numEdges; e++ {
		if !dhg.enabledEdge[e] {
			continue
		}
		if dhg.edgeSize[e] <= 1 {
			dhg.enabledEdge[e] = false
			removed = append(removed, RemovedNet{e: Index(e)})
			continue
		}
		sorted = sorted[:0]
		sorted = append(sorted, dhg.Pins(Index(e))...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		key := netKey{hash: hashPinList(sorted), size: len(sorted)}
		if r, ok := rep[key]; ok && equalPins(repPins[key], sorted) {
			dhg.enabledEdge[e] = false
			dhg.edgeWeights[r] += dhg.edgeWeights[e]
			removed = append(removed, RemovedNet{e: Index(e), rep: r, addedWeight: dhg.edgeWeights[e], parallel: true})
			continue
		}
		rep[key] = Index(e)
		repPins[key] = append([]Index(nil), sorted...)
	}
	return removed
}

// RestoreRemovedNets re-enables nets removed by
// RemoveSinglePinAndParallelNets, newest first.
func (dhg *DynamicHypergraph) RestoreRemovedNets(removed []RemovedNet) {
	for i := len(removed) - 1; i >= 0; i-- {
		r := removed[i]
		dhg.enabledEdge[r.e] = true
		if r.parallel {
			dhg.edgeWeights[r.rep] -= r.addedWeight
		}
	}
}

// ToStatic compacts the enabled part of the hypergraph into a static
// hypergraph. The second return value maps dynamic vertex ids to static ones
// (InvalidIndex for disabled vertices), the third maps static back to
// dynamic.
func (dhg *DynamicHypergraph) ToStatic() (*Hypergraph, []Index, []Index) {
	toStatic := make([]Index, dhg.numNodes)
	toDynamic := make([]Index, 0, dhg.numNodes)
	for v := 0; v < dhg.numNodes; v++ {
		if dhg.enabledNode[v] {
			toStatic[v] = Index(len(toDynamic))
			toDynamic = append(toDynamic, Index(v))
		} else {
			toStatic[v] = InvalidIndex
		}
	}

	offsets := []int{0}
	pins := make([]Index, 0)
	weights := make([]int32, 0)
	for e := 0; e < dhg.numEdges; e++ {
		if !dhg.enabledEdge[e] || dhg.edgeSize[e] <= 1 {
			continue
		}
		for _, p := range dhg.Pins(Index(e)) {
			pins = append(pins, toStatic[p])
		}
		offsets = append(offsets, len(pins))
		weights = append(weights, dhg.edgeWeights[e])
	}

	nodeWeights := make([]int32, len(toDynamic))
	for i, v := range toDynamic {
		nodeWeights[i] = dhg.nodeWeights[v]
	}

	hg, err := NewHypergraph(len(toDynamic), len(weights), offsets, pins, weights, nodeWeights)
	if err != nil {
		panic(err)
	}
	return hg, toStatic, toDynamic
}

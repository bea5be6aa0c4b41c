package community

import (
	"math"
	"sort"
	"sync/atomic"
	"unsafe"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/concurrent"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
)

// edges larger than this contribute nothing to the clique expansion; their
// quadratic pair count would dominate the build without improving the
// clustering signal.
const MAX_CLIQUE_EDGE_SIZE = 512

type Config struct {
	MaxPasses     int
	MinGain       float64
	Seed          uint64
	Workers       int
	Deterministic bool
}

// CliqueGraph is the weighted graph representation of a hypergraph: every
// hyperedge e becomes a clique among its pins with edge weight
// w(e) / (|e| - 1).
type CliqueGraph struct {
	n           int
	offsets     []int
	neighbors   []datastructure.Index
	weights     []float64
	degree      []float64 // weighted degree per vertex
	totalVolume float64   // sum of all degrees (2m)
}

// BuildCliqueGraph expands the hypergraph. Each vertex row is built
// independently, so the expansion parallelizes over vertices.
func BuildCliqueGraph(hg *datastructure.Hypergraph, workers int) *CliqueGraph {
	n := hg.NumberOfVertices()
	rows := make([][]datastructure.Index, n)
	rowWeights := make([][]float64, n)

	concurrent.ParallelFor(n, workers, func(_, lo, hi int) {
		acc := make(map[datastructure.Index]float64)
		for u := lo; u < hi; u++ {
			for k := range acc {
				delete(acc, k)
			}
			for _, e := range hg.IncidentNets(datastructure.Index(u)) {
				size := hg.EdgeSize(e)
				if size < 2 || size > MAX_CLIQUE_EDGE_SIZE {
					continue
				}
				w := float64(hg.EdgeWeight(e)) / float64(size-1)
				for _, v := range hg.Pins(e) {
					if int(v) != u {
						acc[v] += w
					}
				}
			}
			nbrs := make([]datastructure.Index, 0, len(acc))
			for v := range acc {
				nbrs = append(nbrs, v)
			}
			sort.Slice(nbrs, func(i, j int) bool { return nbrs[i] < nbrs[j] })
			ws := make([]float64, len(nbrs))
			for i, v := range nbrs {
				ws[i] = acc[v]
			}
			rows[u] = nbrs
			rowWeights[u] = ws
		}
	})

	g := &CliqueGraph{n: n, offsets: make([]int, n+1), degree: make([]float64, n)}
	for u := 0; u < n; u++ {
		g.offsets[u+1] = g.offsets[u] + len(rows[u])
	}
	g.neighbors = make([]datastructure.Index, g.offsets[n])
	g.weights = make([]float64, g.offsets[n])
	for u := 0; u < n; u++ {
		copy(g.neighbors[g.offsets[u]:], rows[u])
		copy(g.weights[g.offsets[u]:], rowWeights[u])
		for _, w := range rowWeights[u] {
			g.degree[u] += w
		}
		g.totalVolume += g.degree[u]
	}
	return g
}

// Detect runs Louvain modularity maximization and returns a community id per
// vertex of the input hypergraph.
func Detect(hg *datastructure.Hypergraph, cfg Config, log *zap.Logger) []datastructure.Index {
	g := BuildCliqueGraph(hg, cfg.Workers)
	n := g.n

	// flattened community assignment across aggregation levels
	assignment := make([]datastructure.Index, n)
	for v := range assignment {
		assignment[v] = datastructure.Index(v)
	}

	cur := g
	pass := 0
	for {
		pass++
		communities, moved := cur.localMoving(cfg, pass)
		if !moved || pass >= cfg.MaxPasses {
			compact := compactIDs(communities)
			for v := 0; v < n; v++ {
				assignment[v] = compact[assignment[v]]
			}
			break
		}

		compact := compactIDs(communities)
		for v := 0; v < n; v++ {
			assignment[v] = compact[assignment[v]]
		}
		next := cur.aggregate(compact)
		log.Sugar().Debugf("louvain pass %d: %d -> %d communities", pass, cur.n, next.n)
		if next.n == cur.n {
			break
		}
		cur = next
	}

	numCommunities := 0
	for _, c := range assignment {
		if int(c)+1 > numCommunities {
			numCommunities = int(c) + 1
		}
	}
	log.Sugar().Infof("community detection found %d communities in %d passes", numCommunities, pass)
	return assignment
}

// localMoving performs up to 16 move rounds, stopping early after a round in
// which no vertex moved.
// Returns the community per vertex and whether anything moved at all.
func (g *CliqueGraph) localMoving(cfg Config, pass int) ([]datastructure.Index, bool) {
	community := make([]datastructure.Index, g.n)
	volume := make([]float64, g.n) // community volume, as atomic float bits
	for v := 0; v < g.n; v++ {
		community[v] = datastructure.Index(v)
		volume[v] = g.degree[v]
	}

	order := make([]int, g.n)
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewSource(cfg.Seed + uint64(pass)*2654435761))
	if !cfg.Deterministic {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	anyMoved := false
	for round := 0; round < 16; round++ {
		movedThisRound := int64(0)
		if cfg.Deterministic {
			g.synchronousRound(order, community, volume, cfg.Workers, &movedThisRound)
		} else {
			g.asynchronousRound(order, community, volume, cfg.Workers, &movedThisRound)
		}
		if movedThisRound == 0 {
			break
		}
		anyMoved = true
	}
	return community, anyMoved
}

// asynchronousRound applies each best move immediately; community volumes
// are updated with CAS on the float bits.
func (g *CliqueGraph) asynchronousRound(order []int, community []datastructure.Index, volume []float64, workers int, moved *int64) {
	concurrent.ParallelFor(len(order), workers, func(_, lo, hi int) {
		acc := make(map[datastructure.Index]float64)
		for i := lo; i < hi; i++ {
			u := order[i]
			target, ok := g.bestCommunity(u, community, volume, acc)
			if !ok {
				continue
			}
			from := loadCommunity(community, datastructure.Index(u))
			if target == from {
				continue
			}
			atomicAddFloat64(&volume[from], -g.degree[u])
			atomicAddFloat64(&volume[target], g.degree[u])
			atomic.StoreUint32((*uint32)(&community[u]), uint32(target))
			atomic.AddInt64(moved, 1)
		}
	})
}

// sub-rounds of a synchronous round; fixed so the bucket layout does not
// depend on the machine's core count.
const synchronousSubRounds = 8

// synchronousRound runs bucketed sub-rounds: all moves of a sub-round are
// computed in parallel against the state at sub-round start, then applied
// in vertex order, so the outcome is independent of scheduling.
func (g *CliqueGraph) synchronousRound(order []int, community []datastructure.Index, volume []float64, workers int, moved *int64) {
	targets := make([]datastructure.Index, len(order))
	concurrent.ForEachBucket(len(order), synchronousSubRounds, workers,
		func(_, lo, hi int) {
			acc := make(map[datastructure.Index]float64)
			for i := lo; i < hi; i++ {
				u := order[i]
				if target, ok := g.bestCommunity(u, community, volume, acc); ok {
					targets[i] = target
				} else {
					targets[i] = loadCommunity(community, datastructure.Index(u))
				}
			}
		},
		func(lo, hi int) {
			for i := lo; i < hi; i++ {
				u := order[i]
				from := community[u]
				to := targets[i]
				if to != from {
					volume[from] -= g.degree[u]
					volume[to] += g.degree[u]
					community[u] = to
					*moved++
				}
			}
		})
}

// loadCommunity and loadVolume read shared state atomically so the
// asynchronous rounds stay clean under the race detector; the synchronous
// sub-rounds pay only an uncontended load.
func loadCommunity(community []datastructure.Index, v datastructure.Index) datastructure.Index {
	return datastructure.Index(atomic.LoadUint32((*uint32)(&community[v])))
}

func loadVolume(volume []float64, c datastructure.Index) float64 {
	return math.Float64frombits(atomic.LoadUint64((*uint64)(unsafe.Pointer(&volume[c]))))
}

// bestCommunity scans u's neighborhood and returns the community with the
// highest modularity gain, if it beats staying put.
func (g *CliqueGraph) bestCommunity(u int, community []datastructure.Index, volume []float64, acc map[datastructure.Index]float64) (datastructure.Index, bool) {
	if g.totalVolume == 0 {
		return 0, false
	}
	for k := range acc {
		delete(acc, k)
	}
	own := loadCommunity(community, datastructure.Index(u))
	for i := g.offsets[u]; i < g.offsets[u+1]; i++ {
		acc[loadCommunity(community, g.neighbors[i])] += g.weights[i]
	}

	resolution := 1.0 / g.totalVolume
	best := own
	// gain of staying, with u's own volume contribution removed
	bestGain := acc[own] - g.degree[u]*(loadVolume(volume, own)-g.degree[u])*resolution
	for c, w := range acc {
		if c == own {
			continue
		}
		gain := w - g.degree[u]*loadVolume(volume, c)*resolution
		if gain > bestGain || (gain == bestGain && c < best) {
			best = c
			bestGain = gain
		}
	}
	return best, best != own
}

// aggregate builds the community super-graph for the next pass.
func (g *CliqueGraph) aggregate(compact []datastructure.Index) *CliqueGraph {
	numC := 0
	for _, c := range compact {
		if int(c)+1 > numC {
			numC = int(c) + 1
		}
	}
	rows := make([]map[datastructure.Index]float64, numC)
	for u := 0; u < g.n; u++ {
		cu := compact[u]
		if rows[cu] == nil {
			rows[cu] = make(map[datastructure.Index]float64)
		}
		for i := g.offsets[u]; i < g.offsets[u+1]; i++ {
			cv := compact[g.neighbors[i]]
			if cv != cu {
				rows[cu][cv] += g.weights[i]
			}
		}
	}

	next := &CliqueGraph{n: numC, offsets: make([]int, numC+1), degree: make([]float64, numC)}
	// a community's degree is its members' total degree, so the weight of
	// edges inside the community stays part of its volume
	for u := 0; u < g.n; u++ {
		next.degree[compact[u]] += g.degree[u]
	}
	for c := 0; c < numC; c++ {
		next.offsets[c+1] = next.offsets[c] + len(rows[c])
	}
	next.neighbors = make([]datastructure.Index, next.offsets[numC])
	next.weights = make([]float64, next.offsets[numC])
	for c := 0; c < numC; c++ {
		nbrs := make([]datastructure.Index, 0, len(rows[c]))
		for v := range rows[c] {
			nbrs = append(nbrs, v)
		}
		sort.Slice(nbrs, func(i, j int) bool { return nbrs[i] < nbrs[j] })
		for i, v := range nbrs {
			next.neighbors[next.offsets[c]+i] = v
			next.weights[next.offsets[c]+i] = rows[c][v]
		}
		next.totalVolume += next.degree[c]
	}
	return next
}

// compactIDs renumbers arbitrary community ids to 0..C-1 preserving first
// occurrence order.
func compactIDs(communities []datastructure.Index) []datastructure.Index {
	remap := make(map[datastructure.Index]datastructure.Index, len(communities))
	out := make([]datastructure.Index, len(communities))
	for v, c := range communities {
		id, ok := remap[c]
		if !ok {
			id = datastructure.Index(len(remap))
			remap[c] = id
		}
		out[v] = id
	}
	return out
}

func atomicAddFloat64(addr *float64, delta float64) {
	bits := (*uint64)(unsafe.Pointer(addr))
	for {
		oldBits := atomic.LoadUint64(bits)
		newBits := math.Float64bits(math.Float64frombits(oldBits) + delta)
		if atomic.CompareAndSwapUint64(bits, oldBits, newBits) {
			return
		}
	}
}

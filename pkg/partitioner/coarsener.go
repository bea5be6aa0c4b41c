package partitioner

import (
	"math"
	"time"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/concurrent"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/config"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/datastructure"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
)

// Level is one step of the contraction hierarchy: the coarse hypergraph and
// the mapping from the finer hypergraph's vertices onto it.
type Level struct {
	coarse  *datastructure.Hypergraph
	mapping []datastructure.Index
}

// UncoarseningData is the level stack handed from the coarsener to the
// uncoarsener.
type UncoarseningData struct {
	original     *datastructure.Hypergraph
	levels       []Level
	CoarsenTime  time.Duration
	NumLevels    int
	coarsestSize int
}

func (ud *UncoarseningData) Coarsest() *datastructure.Hypergraph {
	if len(ud.levels) == 0 {
		return ud.original
	}
	return ud.levels[len(ud.levels)-1].coarse
}

// MultilevelCoarsener contracts matched vertex pairs level by level, driven
// by heavy-edge ratings and optionally restricted to community-internal
// matches.
type MultilevelCoarsener struct {
	ctx         *config.Context
	communities []datastructure.Index // nil disables the restriction
	logger      *zap.Logger
}

func NewMultilevelCoarsener(ctx *config.Context, communities []datastructure.Index, logger *zap.Logger) *MultilevelCoarsener {
	return &MultilevelCoarsener{ctx: ctx, communities: communities, logger: logger}
}

// Coarsen builds the contraction hierarchy down to roughly
// ContractionLimitMultiplier * k vertices.
func (c *MultilevelCoarsener) Coarsen(hg *datastructure.Hypergraph) *UncoarseningData {
	start := time.Now()
	ud := &UncoarseningData{original: hg}

	contractionLimit := c.ctx.ContractionLimitMultiplier * c.ctx.NumBlocks
	maxAllowedWeight := int64(math.Ceil(
		c.ctx.MaxAllowedWeightFraction * float64(hg.TotalWeight()) / float64(contractionLimit)))
	if maxAllowedWeight < 1 {
		maxAllowedWeight = 1
	}

	communities := c.communities
	cur := hg
	level := 0
	for cur.NumberOfVertices() > contractionLimit {
		clusters := c.match(cur, communities, maxAllowedWeight, level)
		coarse, mapping := cur.Contract(clusters)

		shrink := float64(cur.NumberOfVertices()) / float64(coarse.NumberOfVertices())
		c.logger.Sugar().Infof("coarsening level %d: %d -> %d vertices (%d nets), shrink %.3f",
			level, cur.NumberOfVertices(), coarse.NumberOfVertices(), coarse.NumberOfHyperedges(), shrink)

		if shrink < c.ctx.MinimumShrinkFactor {
			break
		}
		ud.levels = append(ud.levels, Level{coarse: coarse, mapping: mapping})

		if communities != nil {
			coarseComm := make([]datastructure.Index, coarse.NumberOfVertices())
			for v := 0; v < cur.NumberOfVertices(); v++ {
				coarseComm[mapping[v]] = communities[v]
			}
			communities = coarseComm
		}
		cur = coarse
		level++
	}

	ud.CoarsenTime = time.Since(start)
	ud.NumLevels = len(ud.levels)
	ud.coarsestSize = cur.NumberOfVertices()
	c.logger.Sugar().Infof("coarsening done: %d levels, coarsest has %d vertices (%.2fs)",
		ud.NumLevels, ud.coarsestSize, ud.CoarsenTime.Seconds())
	return ud
}

// match proposes a partner for every vertex in parallel via heavy-edge
// ratings, then commits disjoint pairs in a fixed seeded order so the
// matching is a pure function of (input, seed).
func (c *MultilevelCoarsener) match(hg *datastructure.Hypergraph, communities []datastructure.Index,
	maxAllowedWeight int64, level int) []datastructure.Index {
	n := hg.NumberOfVertices()

	proposal := make([]datastructure.Index, n)
	concurrent.ParallelFor(n, c.ctx.NumThreads, func(_, lo, hi int) {
		scores := make(map[datastructure.Index]float64)
		for u := lo; u < hi; u++ {
			proposal[u] = c.bestPartner(hg, communities, datastructure.Index(u), maxAllowedWeight, scores)
		}
	})

	order := make([]datastructure.Index, n)
	for i := range order {
		order[i] = datastructure.Index(i)
	}
	rng := rand.New(rand.NewSource(c.ctx.Seed + uint64(level)*0x9e3779b97f4a7c15))
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

	clusters := make([]datastructure.Index, n)
	matched := make([]bool, n)
	for v := range clusters {
		clusters[v] = datastructure.Index(v)
	}
	for _, u := range order {
		if matched[u] {
			continue
		}
		partner := proposal[u]
		if partner == datastructure.InvalidIndex || matched[partner] {
			continue
		}
		if int64(hg.NodeWeight(u))+int64(hg.NodeWeight(partner)) > maxAllowedWeight {
			continue
		}
		clusters[partner] = u
		matched[u] = true
		matched[partner] = true
	}
	return clusters
}

// bestPartner rates all neighbors of u by the heavy-edge score
// w(e) / (|e|-1), skipping partners in other communities or whose combined
// weight would exceed the cap. Ties break on a seeded hash of the pair.
func (c *MultilevelCoarsener) bestPartner(hg *datastructure.Hypergraph, communities []datastructure.Index,
	u datastructure.Index, maxAllowedWeight int64, scores map[datastructure.Index]float64) datastructure.Index {
	for k := range scores {
		delete(scores, k)
	}
	for _, e := range hg.IncidentNets(u) {
		size := hg.EdgeSize(e)
		if size < 2 {
			continue
		}
		w := float64(hg.EdgeWeight(e)) / float64(size-1)
		for _, v := range hg.Pins(e) {
			if v == u {
				continue
			}
			if communities != nil && communities[u] != communities[v] {
				continue
			}
			if int64(hg.NodeWeight(u))+int64(hg.NodeWeight(v)) > maxAllowedWeight {
				continue
			}
			scores[v] += w
		}
	}

	best := datastructure.InvalidIndex
	bestScore := 0.0
	var bestHash uint64
	for v, score := range scores {
		h := pairHash(c.ctx.Seed, u, v)
		if score > bestScore || (score == bestScore && best != datastructure.InvalidIndex && h < bestHash) {
			best = v
			bestScore = score
			bestHash = h
		}
	}
	return best
}

// pairHash is the deterministic tie-breaker for equal ratings.
func pairHash(seed uint64, u, v datastructure.Index) uint64 {
	x := seed ^ (uint64(u) << 32) ^ uint64(v)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

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

// ContractionBatch groups the single contractions of one n-level pass plus
// the degenerate nets removed after them. Batches are reversed newest first
// during uncoarsening.
type ContractionBatch struct {
	mementos []datastructure.Memento
	removed  []datastructure.RemovedNet
}

// NLevelHierarchy records a reversible sequence of single contractions.
type NLevelHierarchy struct {
	Dynamic     *datastructure.DynamicHypergraph
	batches     []ContractionBatch
	CoarsenTime time.Duration
}

func (h *NLevelHierarchy) NumBatches() int { return len(h.batches) }

// UncontractBatch reverses the newest batch, assigning every re-enabled
// vertex the block of its representative. Returns false when the hierarchy
// is exhausted.
func (h *NLevelHierarchy) UncontractBatch(partition []int) bool {
	if len(h.batches) == 0 {
		return false
	}
	batch := h.batches[len(h.batches)-1]
	h.batches = h.batches[:len(h.batches)-1]

	h.Dynamic.RestoreRemovedNets(batch.removed)
	for i := len(batch.mementos) - 1; i >= 0; i-- {
		m := batch.mementos[i]
		h.Dynamic.Uncontract(m)
		u, v := m.Contracted()
		partition[v] = partition[u]
	}
	return true
}

// NLevelCoarsener applies single contractions in a globally chosen order,
// each recorded for exact reversal.
type NLevelCoarsener struct {
	ctx         *config.Context
	communities []datastructure.Index
	logger      *zap.Logger
}

func NewNLevelCoarsener(ctx *config.Context, communities []datastructure.Index, logger *zap.Logger) *NLevelCoarsener {
	return &NLevelCoarsener{ctx: ctx, communities: communities, logger: logger}
}

// Coarsen contracts down to ContractionLimitMultiplier * k enabled vertices.
func (c *NLevelCoarsener) Coarsen(hg *datastructure.Hypergraph) *NLevelHierarchy {
	start := time.Now()
	dhg := datastructure.NewDynamicHypergraph(hg)
	hierarchy := &NLevelHierarchy{Dynamic: dhg}

	contractionLimit := c.ctx.ContractionLimitMultiplier * c.ctx.NumBlocks
	maxAllowedWeight := int64(math.Ceil(
		c.ctx.MaxAllowedWeightFraction * float64(hg.TotalWeight()) / float64(contractionLimit)))
	if maxAllowedWeight < 1 {
		maxAllowedWeight = 1
	}

	pass := 0
	enabled := dhg.NumberOfEnabledVertices()
	for enabled > contractionLimit {
		batch := c.contractionPass(dhg, maxAllowedWeight, pass, enabled-contractionLimit)
		if len(batch.mementos) == 0 {
			break
		}
		batch.removed = dhg.RemoveSinglePinAndParallelNets()
		hierarchy.batches = append(hierarchy.batches, batch)

		remaining := dhg.NumberOfEnabledVertices()
		c.logger.Sugar().Infof("n-level pass %d: %d contractions, %d vertices remain", pass, len(batch.mementos), remaining)
		if float64(enabled)/float64(remaining) < c.ctx.MinimumShrinkFactor {
			break
		}
		enabled = remaining
		pass++
	}

	hierarchy.CoarsenTime = time.Since(start)
	return hierarchy
}

// contractionPass rates every enabled vertex in parallel and then applies
// disjoint contractions in a seeded order, stopping once budget contractions
// happened.
func (c *NLevelCoarsener) contractionPass(dhg *datastructure.DynamicHypergraph,
	maxAllowedWeight int64, pass, budget int) ContractionBatch {
	n := dhg.NumberOfVertices()

	proposal := make([]datastructure.Index, n)
	concurrent.ParallelFor(n, c.ctx.NumThreads, func(_, lo, hi int) {
		scores := make(map[datastructure.Index]float64)
		for u := lo; u < hi; u++ {
			if !dhg.IsEnabled(datastructure.Index(u)) {
				proposal[u] = datastructure.InvalidIndex
				continue
			}
			proposal[u] = c.bestPartner(dhg, datastructure.Index(u), maxAllowedWeight, scores)
		}
	})

	order := make([]datastructure.Index, 0, n)
	for v := 0; v < n; v++ {
		if dhg.IsEnabled(datastructure.Index(v)) {
			order = append(order, datastructure.Index(v))
		}
	}
	rng := rand.New(rand.NewSource(c.ctx.Seed ^ (uint64(pass+1) * 0x9e3779b97f4a7c15)))
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	batch := ContractionBatch{}
	touched := make([]bool, n)
	for _, u := range order {
		if budget >= 0 && len(batch.mementos) >= budget {
			break
		}
		if touched[u] {
			continue
		}
		v := proposal[u]
		if v == datastructure.InvalidIndex || touched[v] || !dhg.IsEnabled(v) {
			continue
		}
		if int64(dhg.NodeWeight(u))+int64(dhg.NodeWeight(v)) > maxAllowedWeight {
			continue
		}
		m := dhg.Contract(u, v)
		batch.mementos = append(batch.mementos, m)
		touched[u] = true
		touched[v] = true
	}
	return batch
}

func (c *NLevelCoarsener) bestPartner(dhg *datastructure.DynamicHypergraph,
	u datastructure.Index, maxAllowedWeight int64, scores map[datastructure.Index]float64) datastructure.Index {
	for k := range scores {
		delete(scores, k)
	}
	for _, e := range dhg.IncidentNets(u) {
		if !dhg.IsEdgeEnabled(e) {
			continue
		}
		size := dhg.EdgeSize(e)
		if size < 2 {
			continue
		}
		w := float64(dhg.EdgeWeight(e)) / float64(size-1)
		for _, v := range dhg.Pins(e) {
			if v == u || !dhg.IsEnabled(v) {
				continue
			}
			if c.communities != nil && c.communities[u] != c.communities[v] {
				continue
			}
			if int64(dhg.NodeWeight(u))+int64(dhg.NodeWeight(v)) > maxAllowedWeight {
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

package datastructure

import (
	"math/bits"
	"sync/atomic"
)

// ConnectivitySets stores, for every hyperedge, the set of blocks it touches
// as a fixed-capacity bitset of k bits. Mutation is atomic OR/AND on the
// containing 64-bit word, so concurrent movers may update disjoint blocks of
// the same net without locking.
type ConnectivitySets struct {
	k           int
	wordsPerSet int
	words       []uint64
}

func NewConnectivitySets(numEdges, k int) *ConnectivitySets {
	wordsPerSet := (k + 63) / 64
	return &ConnectivitySets{
		k:           k,
		wordsPerSet: wordsPerSet,
		words:       make([]uint64, numEdges*wordsPerSet),
	}
}

func (cs *ConnectivitySets) word(e Index, p int) (idx int, bit uint64) {
	return int(e)*cs.wordsPerSet + p/64, uint64(1) << (uint(p) % 64)
}

// Add inserts block p into the set of hyperedge e.
func (cs *ConnectivitySets) Add(e Index, p int) {
	idx, bit := cs.word(e, p)
	atomic.OrUint64(&cs.words[idx], bit)
}

// Remove deletes block p from the set of hyperedge e.
func (cs *ConnectivitySets) Remove(e Index, p int) {
	idx, bit := cs.word(e, p)
	atomic.AndUint64(&cs.words[idx], ^bit)
}

func (cs *ConnectivitySets) Contains(e Index, p int) bool {
	idx, bit := cs.word(e, p)
	return atomic.LoadUint64(&cs.words[idx])&bit != 0
}

// Connectivity returns the number of distinct blocks hyperedge e touches.
func (cs *ConnectivitySets) Connectivity(e Index) int {
	base := int(e) * cs.wordsPerSet
	cnt := 0
	for w := 0; w < cs.wordsPerSet; w++ {
		cnt += bits.OnesCount64(atomic.LoadUint64(&cs.words[base+w]))
	}
	return cnt
}

// ForEach enumerates the blocks of hyperedge e in ascending order via a
// next-set-bit scan.
func (cs *ConnectivitySets) ForEach(e Index, fn func(p int)) {
	base := int(e) * cs.wordsPerSet
	for w := 0; w < cs.wordsPerSet; w++ {
		word := atomic.LoadUint64(&cs.words[base+w])
		for word != 0 {
			p := w*64 + bits.TrailingZeros64(word)
			fn(p)
			word &= word - 1
		}
	}
}

// Blocks collects the connectivity set of e into a fresh slice.
func (cs *ConnectivitySets) Blocks(e Index) []int {
	out := make([]int, 0, 4)
	cs.ForEach(e, func(p int) { out = append(out, p) })
	return out
}

// Clear empties the set of hyperedge e. Not safe against concurrent movers.
func (cs *ConnectivitySets) Clear(e Index) {
	base := int(e) * cs.wordsPerSet
	for w := 0; w < cs.wordsPerSet; w++ {
		atomic.StoreUint64(&cs.words[base+w], 0)
	}
}

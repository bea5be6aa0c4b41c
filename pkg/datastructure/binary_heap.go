package datastructure

import (
	"errors"
	"math"
)

type PriorityQueueNode[T comparable] struct {
	rank int64
	item T
}

func (p *PriorityQueueNode[T]) GetItem() T {
	return p.item
}

func (p *PriorityQueueNode[T]) GetRank() int64 {
	return p.rank
}

func NewPriorityQueueNode[T comparable](rank int64, item T) PriorityQueueNode[T] {
	return PriorityQueueNode[T]{rank: rank, item: item}
}

// MaxHeap is an addressable binary max-heap. The FM refiner keys it by move
// gain; the position map makes UpdateKey and Delete O(log N).
type MaxHeap[T comparable] struct {
	heap []PriorityQueueNode[T]
	pos  map[T]int
}

func NewMaxHeap[T comparable]() *MaxHeap[T] {
	return &MaxHeap[T]{
		heap: make([]PriorityQueueNode[T], 0),
		pos:  make(map[T]int),
	}
}

func (h *MaxHeap[T]) parent(index int) int {
	return (index - 1) / 2
}

func (h *MaxHeap[T]) leftChild(index int) int {
	return 2*index + 1
}

func (h *MaxHeap[T]) rightChild(index int) int {
	return 2*index + 2
}

func (h *MaxHeap[T]) heapifyUp(index int) {
	for index != 0 && h.heap[index].rank > h.heap[h.parent(index)].rank {
		h.heap[index], h.heap[h.parent(index)] = h.heap[h.parent(index)], h.heap[index]

		h.pos[h.heap[index].item] = index
		h.pos[h.heap[h.parent(index)].item] = h.parent(index)
		index = h.parent(index)
	}
}

func (h *MaxHeap[T]) heapifyDown(index int) {
	largest := index
	left := h.leftChild(index)
	right := h.rightChild(index)

	if left < len(h.heap) && h.heap[left].rank > h.heap[largest].rank {
		largest = left
	}
	if right < len(h.heap) && h.heap[right].rank > h.heap[largest].rank {
		largest = right
	}
	if largest != index {
		h.heap[index], h.heap[largest] = h.heap[largest], h.heap[index]
		h.pos[h.heap[index].item] = index
		h.pos[h.heap[largest].item] = largest

		h.heapifyDown(largest)
	}
}

func (h *MaxHeap[T]) IsEmpty() bool {
	return len(h.heap) == 0
}

func (h *MaxHeap[T]) Size() int {
	return len(h.heap)
}

func (h *MaxHeap[T]) Clear() {
	h.heap = h.heap[:0]
	h.pos = make(map[T]int)
}

func (h *MaxHeap[T]) GetMax() (PriorityQueueNode[T], error) {
	if h.IsEmpty() {
		return PriorityQueueNode[T]{}, errors.New("heap is empty")
	}
	return h.heap[0], nil
}

// GetMaxRank peeks the top key without popping; math.MinInt64 on empty.
func (h *MaxHeap[T]) GetMaxRank() int64 {
	if h.IsEmpty() {
		return math.MinInt64
	}
	return h.heap[0].rank
}

func (h *MaxHeap[T]) Insert(key PriorityQueueNode[T]) {
	h.heap = append(h.heap, key)
	index := h.Size() - 1
	h.pos[key.item] = index
	h.heapifyUp(index)
}

func (h *MaxHeap[T]) ExtractMax() (PriorityQueueNode[T], error) {
	if h.IsEmpty() {
		return PriorityQueueNode[T]{}, errors.New("heap is empty")
	}
	top := h.heap[0]
	last := h.Size() - 1
	h.heap[0] = h.heap[last]
	h.pos[h.heap[0].item] = 0
	h.heap = h.heap[:last]
	delete(h.pos, top.item)
	if !h.IsEmpty() {
		h.heapifyDown(0)
	}
	return top, nil
}

func (h *MaxHeap[T]) Contains(item T) bool {
	_, ok := h.pos[item]
	return ok
}

// UpdateKey re-keys item if present, otherwise inserts it.
func (h *MaxHeap[T]) UpdateKey(item T, rank int64) {
	index, ok := h.pos[item]
	if !ok {
		h.Insert(NewPriorityQueueNode(rank, item))
		return
	}
	old := h.heap[index].rank
	h.heap[index].rank = rank
	if rank > old {
		h.heapifyUp(index)
	} else if rank < old {
		h.heapifyDown(index)
	}
}

func (h *MaxHeap[T]) Delete(item T) {
	index, ok := h.pos[item]
	if !ok {
		return
	}
	last := h.Size() - 1
	h.heap[index] = h.heap[last]
	h.pos[h.heap[index].item] = index
	h.heap = h.heap[:last]
	delete(h.pos, item)
	if index < h.Size() {
		h.heapifyDown(index)
		h.heapifyUp(index)
	}
}

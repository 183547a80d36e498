// internal/heap/heap.go

// Package heap provides a fixed-capacity binary max-heap keyed by integer
// priority. It knows nothing about scheduling; payloads are opaque.
package heap

import (
	"errors"
	"math"
)

// EmptyKey is what PeekKey reports for an empty heap. It compares lower than
// any key a caller can store in practice.
const EmptyKey = math.MinInt

var (
	ErrInvalidCapacity  = errors.New("heap: capacity must be positive")
	ErrCapacityExceeded = errors.New("heap: capacity exceeded")
	ErrEmpty            = errors.New("heap: empty")
	ErrNotFound         = errors.New("heap: not found")
)

// Node is one (key, payload) pair stored in the heap.
type Node[T any] struct {
	Key   int
	Value T
}

// Heap is an array-backed max-heap. The zero value is not usable; use New.
// A Heap is not safe for concurrent use.
type Heap[T any] struct {
	nodes []Node[T] // len(nodes) is the fixed capacity
	n     int       // live count
}

// New allocates a heap able to hold capacity nodes.
func New[T any](capacity int) (*Heap[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Heap[T]{nodes: make([]Node[T], capacity)}, nil
}

func (h *Heap[T]) Len() int { return h.n }

func (h *Heap[T]) Cap() int { return len(h.nodes) }

// Insert adds value under key in O(log n).
func (h *Heap[T]) Insert(key int, value T) error {
	if h.n == len(h.nodes) {
		return ErrCapacityExceeded
	}
	h.nodes[h.n] = Node[T]{Key: key, Value: value}
	h.n++
	h.up(h.n - 1)
	return nil
}

// Peek returns the maximum node without removing it.
func (h *Heap[T]) Peek() (Node[T], bool) {
	if h.n == 0 {
		return Node[T]{Key: EmptyKey}, false
	}
	return h.nodes[0], true
}

// PeekKey returns the maximum key, or EmptyKey when the heap is empty.
func (h *Heap[T]) PeekKey() int {
	if h.n == 0 {
		return EmptyKey
	}
	return h.nodes[0].Key
}

// RemoveMax pops the maximum node in O(log n).
func (h *Heap[T]) RemoveMax() (Node[T], error) {
	if h.n == 0 {
		return Node[T]{Key: EmptyKey}, ErrEmpty
	}
	return h.removeAt(0), nil
}

// RemoveKey removes one node stored under key. Which one is unspecified when
// several share the key.
func (h *Heap[T]) RemoveKey(key int) (Node[T], error) {
	for i := 0; i < h.n; i++ {
		if h.nodes[i].Key == key {
			return h.removeAt(i), nil
		}
	}
	return Node[T]{Key: EmptyKey}, ErrNotFound
}

// RemoveFunc removes the first node, in array order, whose payload satisfies
// match. Callers use it to find a payload without knowing its key.
func (h *Heap[T]) RemoveFunc(match func(T) bool) (Node[T], error) {
	for i := 0; i < h.n; i++ {
		if match(h.nodes[i].Value) {
			return h.removeAt(i), nil
		}
	}
	return Node[T]{Key: EmptyKey}, ErrNotFound
}

// Each calls fn for every live node in array order until fn returns false.
// fn must not mutate the heap.
func (h *Heap[T]) Each(fn func(Node[T]) bool) {
	for i := 0; i < h.n; i++ {
		if !fn(h.nodes[i]) {
			return
		}
	}
}

func (h *Heap[T]) removeAt(i int) Node[T] {
	out := h.nodes[i]
	last := h.n - 1
	h.nodes[i] = h.nodes[last]
	h.nodes[last] = Node[T]{} // drop the payload reference
	h.n--
	if i < h.n {
		// the moved node may belong above or below its new slot
		if !h.down(i) {
			h.up(i)
		}
	}
	return out
}

func (h *Heap[T]) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.nodes[parent].Key >= h.nodes[i].Key {
			return
		}
		h.nodes[parent], h.nodes[i] = h.nodes[i], h.nodes[parent]
		i = parent
	}
}

// down sifts i toward the leaves and reports whether it moved.
func (h *Heap[T]) down(i int) bool {
	start := i
	for {
		largest := i
		l, r := 2*i+1, 2*i+2
		if l < h.n && h.nodes[l].Key > h.nodes[largest].Key {
			largest = l
		}
		if r < h.n && h.nodes[r].Key > h.nodes[largest].Key {
			largest = r
		}
		if largest == i {
			return i > start
		}
		h.nodes[i], h.nodes[largest] = h.nodes[largest], h.nodes[i]
		i = largest
	}
}

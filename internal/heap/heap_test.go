package heap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkInvariant asserts key[parent] >= key[child] for every live node.
func checkInvariant[T any](t *testing.T, h *Heap[T]) {
	t.Helper()
	for i := 1; i < h.n; i++ {
		parent := (i - 1) / 2
		require.GreaterOrEqualf(t, h.nodes[parent].Key, h.nodes[i].Key,
			"node %d (key %d) above node %d (key %d)", parent, h.nodes[parent].Key, i, h.nodes[i].Key)
	}
}

func trueMax[T any](h *Heap[T]) int {
	m := EmptyKey
	h.Each(func(n Node[T]) bool {
		if n.Key > m {
			m = n.Key
		}
		return true
	})
	return m
}

func TestNew_InvalidCapacity(t *testing.T) {
	_, err := New[int](0)
	require.ErrorIs(t, err, ErrInvalidCapacity)
	_, err = New[int](-3)
	require.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestEmpty(t *testing.T) {
	h, err := New[string](4)
	require.NoError(t, err)

	_, ok := h.Peek()
	assert.False(t, ok)
	assert.Equal(t, EmptyKey, h.PeekKey())

	_, err = h.RemoveMax()
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = h.RemoveKey(1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.RemoveFunc(func(string) bool { return true })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsert_CapacityExceeded(t *testing.T) {
	h, err := New[int](2)
	require.NoError(t, err)
	require.NoError(t, h.Insert(1, 10))
	require.NoError(t, h.Insert(2, 20))
	require.ErrorIs(t, h.Insert(3, 30), ErrCapacityExceeded)
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 2, h.Cap())
	assert.Equal(t, 2, h.PeekKey())
}

func TestRemoveMax_Order(t *testing.T) {
	h, err := New[string](8)
	require.NoError(t, err)
	for _, k := range []int{3, -2, 9, 0, 7, 7, -5} {
		require.NoError(t, h.Insert(k, "x"))
	}

	var got []int
	for h.Len() > 0 {
		n, err := h.RemoveMax()
		require.NoError(t, err)
		got = append(got, n.Key)
	}
	assert.Equal(t, []int{9, 7, 7, 3, 0, -2, -5}, got)
}

func TestRemoveKey(t *testing.T) {
	h, err := New[string](8)
	require.NoError(t, err)
	require.NoError(t, h.Insert(5, "a"))
	require.NoError(t, h.Insert(1, "b"))
	require.NoError(t, h.Insert(8, "c"))

	n, err := h.RemoveKey(1)
	require.NoError(t, err)
	assert.Equal(t, "b", n.Value)
	checkInvariant(t, h)

	_, err = h.RemoveKey(1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 8, h.PeekKey())
}

func TestRemoveFunc(t *testing.T) {
	type payload struct{ pid int }
	h, err := New[*payload](8)
	require.NoError(t, err)
	want := &payload{pid: 42}
	require.NoError(t, h.Insert(4, &payload{pid: 1}))
	require.NoError(t, h.Insert(2, want))
	require.NoError(t, h.Insert(6, &payload{pid: 3}))

	n, err := h.RemoveFunc(func(p *payload) bool { return p == want })
	require.NoError(t, err)
	assert.Same(t, want, n.Value)
	assert.Equal(t, 2, n.Key)
	assert.Equal(t, 2, h.Len())

	h.Each(func(n Node[*payload]) bool {
		assert.NotSame(t, want, n.Value)
		return true
	})
}

// A node moved into a removed slot can need to sift up rather than down.
func TestRemoveAt_SiftsUp(t *testing.T) {
	h, err := New[int](16)
	require.NoError(t, err)
	for _, k := range []int{100, 50, 90, 10, 20, 80, 85} {
		require.NoError(t, h.Insert(k, k))
	}
	// 85 replaces 10 directly beneath 50
	_, err = h.RemoveKey(10)
	require.NoError(t, err)
	checkInvariant(t, h)
}

func TestRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		h, err := New[int](64)
		require.NoError(t, err)
		live := map[int]int{} // payload -> key
		next := 0

		for op := 0; op < 400; op++ {
			switch rng.Intn(4) {
			case 0, 1:
				key := rng.Intn(41) - 20
				err := h.Insert(key, next)
				if h.Len() == h.Cap() && err != nil {
					require.ErrorIs(t, err, ErrCapacityExceeded)
				} else {
					require.NoError(t, err)
					live[next] = key
					next++
				}
			case 2:
				if h.Len() == 0 {
					continue
				}
				want := trueMax(h)
				n, err := h.RemoveMax()
				require.NoError(t, err)
				require.Equal(t, want, n.Key)
				delete(live, n.Value)
			case 3:
				if len(live) == 0 {
					continue
				}
				var victim int
				for v := range live {
					victim = v
					break
				}
				n, err := h.RemoveFunc(func(v int) bool { return v == victim })
				require.NoError(t, err)
				require.Equal(t, live[victim], n.Key)
				delete(live, victim)
			}
			checkInvariant(t, h)
			require.Equal(t, len(live), h.Len())
			require.Equal(t, trueMax(h), h.PeekKey())
		}
	}
}

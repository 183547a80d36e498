// internal/sched/arena.go

package sched

// EntityID addresses an entity slot in the arena. A freed slot gets a new
// generation, so IDs held past a free never resolve to the slot's next owner.
type EntityID struct {
	index uint32
	gen   uint32
}

// arena is a fixed pool of entities. Slots never move, so a resolved *entity
// stays valid until freed; callers serialize alloc and free with the global
// scheduler lock.
type arena struct {
	slots []entity
	gens  []uint32
	live  []bool
	free  []uint32 // stack of free slot indices
}

func newArena(capacity int) *arena {
	a := &arena{
		slots: make([]entity, capacity),
		gens:  make([]uint32, capacity),
		live:  make([]bool, capacity),
		free:  make([]uint32, capacity),
	}
	for i := range a.free {
		// pop order hands out low indices first
		a.free[i] = uint32(capacity - 1 - i)
		a.gens[i] = 1
	}
	return a
}

func (a *arena) alloc(t *Task) (*entity, error) {
	if len(a.free) == 0 {
		return nil, ErrOutOfMemory
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.live[idx] = true

	e := &a.slots[idx]
	*e = entity{id: EntityID{index: idx, gen: a.gens[idx]}, task: t}
	return e, nil
}

// get resolves id, returning nil for stale or foreign IDs.
func (a *arena) get(id EntityID) *entity {
	if int(id.index) >= len(a.slots) || !a.live[id.index] || a.gens[id.index] != id.gen {
		return nil
	}
	return &a.slots[id.index]
}

func (a *arena) release(id EntityID) bool {
	if a.get(id) == nil {
		return false
	}
	a.live[id.index] = false
	a.gens[id.index]++
	a.slots[id.index] = entity{}
	a.free = append(a.free, id.index)
	return true
}

func (a *arena) inUse() int { return len(a.slots) - len(a.free) }

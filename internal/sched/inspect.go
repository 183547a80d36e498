package sched

import (
	"fmt"

	"dynsched/internal/heap"
)

// Location says which container holds a task's entity.
type Location int

const (
	LocationNone Location = iota
	LocationReady
	LocationActive
	LocationWaiting
)

func (l Location) String() string {
	switch l {
	case LocationReady:
		return "Ready"
	case LocationActive:
		return "Active"
	case LocationWaiting:
		return "Waiting"
	default:
		return "None"
	}
}

// visit calls fn for every live entity of t, one queue lock at a time under
// s.mu. An unscheduled entity still parked in an active slot is skipped.
func (s *Scheduler) visit(t *Task, fn func(*entity, Location)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queues {
		rq := s.queues[i].Load()
		if rq == nil {
			continue
		}
		rq.mu.Lock()
		if a := rq.active; a != nil && a.task == t && a.runnable() {
			fn(a, LocationActive)
		}
		rq.ready.Each(func(n heap.Node[EntityID]) bool {
			if e := s.arena.get(n.Value); e != nil && e.task == t {
				fn(e, LocationReady)
			}
			return true
		})
		it := rq.waiting.Iterator()
		for it.Next() {
			if e := s.arena.get(it.Value().(EntityID)); e != nil && e.task == t {
				fn(e, LocationWaiting)
			}
		}
		rq.mu.Unlock()
	}
}

// Locate reports where t's entity currently sits.
func (s *Scheduler) Locate(t *Task) Location {
	loc := LocationNone
	s.visit(t, func(_ *entity, l Location) {
		if loc == LocationNone {
			loc = l
		}
	})
	return loc
}

// Snapshot copies the scheduling state of t's entity.
func (s *Scheduler) Snapshot(t *Task) (EntitySnapshot, error) {
	var (
		snap  EntitySnapshot
		found bool
	)
	s.visit(t, func(e *entity, _ Location) {
		if !found {
			snap, found = e.snapshot(), true
		}
	})
	if !found {
		return EntitySnapshot{}, fmt.Errorf("snapshot task %d: %w", t.ID, ErrNotFound)
	}
	return snap, nil
}

// internal/sched/runqueue.go

package sched

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/lists/doublylinkedlist"

	"dynsched/internal/heap"
)

// runQueue is one processor's share of the scheduler. Everything below mu is
// only touched with mu held; the counters are atomic so placement can compare
// queues without locking them.
type runQueue struct {
	cpu  int
	idle *Task

	mu      sync.Mutex
	ready   *heap.Heap[EntityID] // keyed by schedPriority
	waiting *doublylinkedlist.List
	active  *entity
	resched bool // active entity blocked; pick another on the next dispatch

	tick               int64
	totalReadyPriority int64 // sum of priority over ready and active entities
	lowest             int   // lowest schedPriority handed out on this queue

	ntasks atomic.Int64 // entities owned: ready, active or waiting
	nready atomic.Int64
}

func newRunQueue(cpu int, idle *Task, capacity int) (*runQueue, error) {
	ready, err := heap.New[EntityID](capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: run queue heap: %v", ErrOutOfMemory, err)
	}
	return &runQueue{
		cpu:     cpu,
		idle:    idle,
		ready:   ready,
		waiting: doublylinkedlist.New(),
		lowest:  TierIdle,
	}, nil
}

// blockQueue picks the processor whose wait list receives every blocked
// entity. Wakeups are scanned in one place and re-balance from there.
func blockQueue() int { return 0 }

// QueueStats is a point-in-time view of one run queue.
type QueueStats struct {
	CPU                 int
	Tick                int64
	NTasks              int64
	NReady              int64
	Waiting             int
	Active              TaskID
	Idle                bool // no entity in the active slot
	TotalReadyPriority  int64
	LowestSchedPriority int
}

func (rq *runQueue) stats() QueueStats {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	st := QueueStats{
		CPU:                 rq.cpu,
		Tick:                rq.tick,
		NTasks:              rq.ntasks.Load(),
		NReady:              rq.nready.Load(),
		Waiting:             rq.waiting.Size(),
		Idle:                rq.active == nil,
		TotalReadyPriority:  rq.totalReadyPriority,
		LowestSchedPriority: rq.lowest,
	}
	if rq.active != nil {
		st.Active = rq.active.task.ID
	}
	return st
}

// insertReady queues e under its scheduling priority.
func (s *Scheduler) insertReady(rq *runQueue, e *entity) error {
	if err := rq.ready.Insert(e.schedPriority, e.id); err != nil {
		return err
	}
	e.state = StateReady
	if e.schedPriority < rq.lowest {
		rq.lowest = e.schedPriority
	}
	rq.nready.Store(int64(rq.ready.Len()))
	return nil
}

func (s *Scheduler) popReady(rq *runQueue) *entity {
	node, err := rq.ready.RemoveMax()
	if err != nil {
		return nil
	}
	rq.nready.Store(int64(rq.ready.Len()))
	e := s.arena.get(node.Value)
	if e == nil {
		panic(fmt.Sprintf("sched: cpu %d: stale entity %v in ready heap", rq.cpu, node.Value))
	}
	return e
}

func (s *Scheduler) removeReady(rq *runQueue, t *Task) *entity {
	node, err := rq.ready.RemoveFunc(func(id EntityID) bool {
		e := s.arena.get(id)
		return e != nil && e.task == t
	})
	if err != nil {
		return nil
	}
	rq.nready.Store(int64(rq.ready.Len()))
	return s.arena.get(node.Value)
}

// takeRunnable detaches t's entity from the active slot or the ready heap.
func (s *Scheduler) takeRunnable(rq *runQueue, t *Task) *entity {
	if a := rq.active; a != nil && a.task == t && a.runnable() {
		rq.active = nil
		rq.resched = true
		return a
	}
	return s.removeReady(rq, t)
}

// removeWaiting unlinks t's entity from rq's wait list.
func (s *Scheduler) removeWaiting(rq *runQueue, t *Task) *entity {
	it := rq.waiting.Iterator()
	for it.Next() {
		id := it.Value().(EntityID)
		if e := s.arena.get(id); e != nil && e.task == t {
			rq.waiting.Remove(it.Index())
			return e
		}
	}
	return nil
}

func (rq *runQueue) withdraw(e *entity) {
	if e.accounted {
		rq.totalReadyPriority -= int64(e.priority)
		e.accounted = false
	}
}

// install makes e the running entity with a fresh timeslice.
func (s *Scheduler) install(rq *runQueue, e *entity) {
	e.state = StateActive
	e.consumed = 0
	e.h.ticksAllocated += e.timeslice
	e.h.dispatchCount++
	rq.active = e
	s.emitEntity(rq, EventDispatch, e)
}

// tick is the per-quantum accounting for rq.
func (s *Scheduler) tick(rq *runQueue) Status {
	a := rq.active
	if a == nil {
		if rq.resched || rq.ready.Len() > 0 {
			return StatusSwitch
		}
		return StatusOK
	}

	rq.tick++
	if a.state == StateUnscheduled {
		return StatusSwitch
	}
	a.consumed++
	a.h.ticksRunning++

	if a.consumed >= a.timeslice {
		a.state = StateNeedResched
		return StatusSwitch
	}
	if rq.ready.PeekKey() > a.schedPriority {
		return StatusSwitch
	}
	return StatusOK
}

// dispatch picks what rq runs next. It returns the task to switch to and the
// ID of an unscheduled entity the caller must free once rq.mu is released.
func (s *Scheduler) dispatch(rq *runQueue) (*Task, EntityID) {
	var dead EntityID
	rq.resched = false

	a := rq.active
	if a != nil && a.state == StateUnscheduled {
		dead = a.id
		rq.active = nil
		a = nil
	}

	adjusted := false
	if a != nil {
		if rq.ready.PeekKey() > a.schedPriority {
			a.state = StatePreempted
		}
		switch a.state {
		case StateActive:
			return a.task, dead

		case StateNeedResched:
			force := s.adjust(rq, a, false)
			adjusted = true
			if !force && a.schedPriority > rq.ready.PeekKey() {
				s.install(rq, a)
				return a.task, dead
			}

		case StatePreempted:
			// hand back the unused part of the slice so being outranked
			// does not read as low utilization
			if unused := a.timeslice - a.consumed; unused > 0 {
				a.h.ticksAllocated -= unused
			}
			s.emitEntity(rq, EventPreempt, a)
		}
	}

	next := s.popReady(rq)
	if a != nil {
		rq.active = nil
		if next == nil {
			// alone on the queue; a penalty cannot push it behind anyone
			s.install(rq, a)
			return a.task, dead
		}
		if !adjusted {
			s.adjust(rq, a, false)
		}
		// popReady freed a slot, so this cannot overflow
		if err := s.insertReady(rq, a); err != nil {
			panic(fmt.Sprintf("sched: cpu %d: requeue task %d: %v", rq.cpu, a.task.ID, err))
		}
	}

	if next == nil {
		rq.active = nil
		s.emit(Event{Tick: rq.tick, CPU: rq.cpu, Kind: EventIdle, TaskID: rq.idle.ID})
		return rq.idle, dead
	}
	s.install(rq, next)
	return next.task, dead
}

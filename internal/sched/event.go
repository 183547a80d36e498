// internal/sched/event.go

package sched

import (
	"time"
)

// EventKind represents the type of scheduler event
type EventKind int

const (
	EventIdle EventKind = iota
	EventEnqueue
	EventDispatch
	EventPreempt
	EventPenalize
	EventBlock
	EventUnblock
	EventUnschedule
)

// Event is emitted on every placement, dispatch and state change.
type Event struct {
	Time          time.Time
	Tick          int64 // owning queue's clock
	CPU           int
	Kind          EventKind
	TaskID        TaskID
	Priority      int
	SchedPriority int
}

func (k EventKind) String() string {
	switch k {
	case EventIdle:
		return "Idle"
	case EventEnqueue:
		return "Enqueued"
	case EventDispatch:
		return "Dispatch"
	case EventPreempt:
		return "Preempt"
	case EventPenalize:
		return "Penalize"
	case EventBlock:
		return "Block"
	case EventUnblock:
		return "Unblock"
	case EventUnschedule:
		return "Unschedule"
	default:
		return "Unknown"
	}
}

// emit never blocks. With no channel or a full one the event is dropped.
func (s *Scheduler) emit(ev Event) {
	if s.events == nil {
		return
	}
	ev.Time = time.Now()
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *Scheduler) emitEntity(rq *runQueue, kind EventKind, e *entity) {
	s.emit(Event{
		Tick:          rq.tick,
		CPU:           rq.cpu,
		Kind:          kind,
		TaskID:        e.task.ID,
		Priority:      e.priority,
		SchedPriority: e.schedPriority,
	})
}

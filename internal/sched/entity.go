// internal/sched/entity.go

package sched

// State is where a scheduling entity is in its lifecycle.
type State int

const (
	StateReady State = iota
	StateActive
	StateBlocked
	StateNeedResched // active, timeslice used up
	StatePreempted   // active, outranked by a ready entity
	StateUnscheduled // active, free on the next dispatch
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateActive:
		return "Active"
	case StateBlocked:
		return "Blocked"
	case StateNeedResched:
		return "NeedResched"
	case StatePreempted:
		return "Preempted"
	case StateUnscheduled:
		return "Unscheduled"
	default:
		return "Unknown"
	}
}

// Class is the workload classification the aging pass assigns.
type Class int

const (
	ClassBatch Class = iota
	ClassInteractive
)

func (c Class) String() string {
	if c == ClassInteractive {
		return "Interactive"
	}
	return "Batch"
}

// heuristics accumulate over an entity's whole life.
type heuristics struct {
	blockCount       int64
	ticksBlocked     int64
	ticksRunning     int64
	ticksAllocated   int64
	lastBlockOrBirth int64 // queue tick of the last block, or of birth
	unfairCount      int64 // times penalized for overusing its share
	dispatchCount    int64
}

// entity is the scheduler's private record for one task.
type entity struct {
	id    EntityID
	task  *Task
	state State
	class Class

	priority      int // fairness weight
	schedPriority int // heap key
	nice          int

	timeslice int64
	consumed  int64

	birth     int64 // queue tick at schedule time
	cpu       int   // owning run queue
	accounted bool  // priority is included in the owning queue's totalReadyPriority

	h heuristics
}

// runnable reports whether e still occupies the active slot on its own
// behalf, as opposed to waiting to be freed.
func (e *entity) runnable() bool {
	switch e.state {
	case StateActive, StateNeedResched, StatePreempted:
		return true
	}
	return false
}

// utilization is running ticks as a percentage of allocated ticks.
func (e *entity) utilization() float64 {
	if e.h.ticksAllocated <= 0 {
		return 0
	}
	return float64(e.h.ticksRunning) * 100 / float64(e.h.ticksAllocated)
}

// EntitySnapshot is a read-only copy of an entity's scheduling state.
type EntitySnapshot struct {
	TaskID        TaskID
	CPU           int
	State         State
	Class         Class
	Priority      int
	SchedPriority int
	Nice          int
	Timeslice     int64
	Consumed      int64
	BlockCount    int64
	TicksBlocked  int64
	TicksRunning  int64
	TicksAlloc    int64
	UnfairCount   int64
	DispatchCount int64
}

func (e *entity) snapshot() EntitySnapshot {
	return EntitySnapshot{
		TaskID:        e.task.ID,
		CPU:           e.cpu,
		State:         e.state,
		Class:         e.class,
		Priority:      e.priority,
		SchedPriority: e.schedPriority,
		Nice:          e.nice,
		Timeslice:     e.timeslice,
		Consumed:      e.consumed,
		BlockCount:    e.h.blockCount,
		TicksBlocked:  e.h.ticksBlocked,
		TicksRunning:  e.h.ticksRunning,
		TicksAlloc:    e.h.ticksAllocated,
		UnfairCount:   e.h.unfairCount,
		DispatchCount: e.h.dispatchCount,
	}
}

// internal/sched/scheduler.go

// Package sched is a dynamic-priority scheduler core for a multi-processor
// kernel. It decides which task each processor runs next; saving and
// restoring CPU state is left to the caller.
//
// A timer calls Tick once per quantum on each processor. When Tick returns
// StatusSwitch the caller invokes GetNext and switches to the task it returns.
package sched

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Scheduler coordinates the per-processor run queues.
//
// Locking: mu guards processor registration, the entity arena, placement and
// every move of an entity between queues. Each run queue has its own lock.
// mu may be held while taking one queue lock at a time; a queue lock is never
// held while taking mu or another queue lock.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	arena  *arena
	tasks  map[*Task]EntityID // live entities by task, for duplicate checks
	queues []atomic.Pointer[runQueue]

	events  chan<- Event
	dropped atomic.Int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l.With("component", "sched") }
}

// WithEvents streams scheduler events to ch. Sends never block; events that
// do not fit are counted by Dropped.
func WithEvents(ch chan<- Event) Option {
	return func(s *Scheduler) { s.events = ch }
}

// New creates a scheduler with no processors registered.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		arena:  newArena(cfg.MaxEntities),
		tasks:  make(map[*Task]EntityID),
		queues: make([]atomic.Pointer[runQueue], cfg.MaxCPUs),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the tunables the scheduler was built with.
func (s *Scheduler) Config() Config { return s.cfg }

// Dropped is the number of events lost to a full channel.
func (s *Scheduler) Dropped() int64 { return s.dropped.Load() }

// Init registers processor cpu with its idle task. Each processor calls it
// exactly once before any other call on that processor.
func (s *Scheduler) Init(cpu int, idle *Task) error {
	if idle == nil {
		return fmt.Errorf("%w: cpu %d: nil idle task", ErrInvalidArgument, cpu)
	}
	if cpu < 0 || cpu >= len(s.queues) {
		return fmt.Errorf("%w: cpu %d out of range [0,%d)", ErrInvalidArgument, cpu, len(s.queues))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queues[cpu].Load() != nil {
		return fmt.Errorf("%w: cpu %d already initialized", ErrInvalidArgument, cpu)
	}
	rq, err := newRunQueue(cpu, idle, s.cfg.HeapCapacity)
	if err != nil {
		return err
	}
	idle.SetProcessor(cpu)
	s.queues[cpu].Store(rq)
	s.logger.Debug("cpu online", "cpu", cpu, "idle", idle.ID)
	return nil
}

func (s *Scheduler) queue(cpu int) (*runQueue, error) {
	if cpu < 0 || cpu >= len(s.queues) {
		return nil, fmt.Errorf("%w: cpu %d out of range", ErrInvalidArgument, cpu)
	}
	rq := s.queues[cpu].Load()
	if rq == nil {
		return nil, fmt.Errorf("%w: cpu %d not initialized", ErrInvalidArgument, cpu)
	}
	return rq, nil
}

// mustQueue is for paths where a missing queue is a collaborator bug.
func (s *Scheduler) mustQueue(cpu int) *runQueue {
	rq, err := s.queue(cpu)
	if err != nil {
		panic(err)
	}
	return rq
}

// leastLoaded returns the registered queue owning the fewest entities, the
// lowest index winning ties. Caller holds s.mu.
func (s *Scheduler) leastLoaded() *runQueue {
	var best *runQueue
	for i := range s.queues {
		rq := s.queues[i].Load()
		if rq == nil {
			continue
		}
		if best == nil || rq.ntasks.Load() < best.ntasks.Load() {
			best = rq
		}
	}
	return best
}

// release returns an entity slot to the arena. Caller must not hold any
// queue lock.
func (s *Scheduler) release(id EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arena.release(id)
}

// forgetLocked drops t's registration if it still names id. Caller holds
// s.mu.
func (s *Scheduler) forgetLocked(t *Task, id EntityID) {
	if s.tasks[t] == id {
		delete(s.tasks, t)
	}
}

// Schedule gives t a scheduling entity on the least-loaded processor. caller
// is the processor making the call; StatusSwitch means t outranks what another
// processor is running and that processor should be told to reschedule.
func (s *Scheduler) Schedule(caller int, t *Task, nice int) (Status, error) {
	if t == nil {
		return StatusOK, fmt.Errorf("%w: nil task", ErrInvalidArgument)
	}
	if nice < MinNice || nice > MaxNice {
		return StatusOK, fmt.Errorf("%w: nice %d outside [%d,%d]", ErrInvalidArgument, nice, MinNice, MaxNice)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.tasks[t]; dup {
		return StatusOK, fmt.Errorf("%w: task %d already scheduled", ErrInvalidArgument, t.ID)
	}
	rq := s.leastLoaded()
	if rq == nil {
		return StatusOK, fmt.Errorf("%w: no processor initialized", ErrInvalidArgument)
	}
	e, err := s.arena.alloc(t)
	if err != nil {
		return StatusOK, fmt.Errorf("schedule task %d: %w", t.ID, err)
	}

	rq.mu.Lock()
	defer rq.mu.Unlock()

	e.class = ClassBatch
	e.nice = nice
	e.priority = TierBase + BonusBirth + nice
	e.schedPriority = e.priority
	e.timeslice = s.cfg.BaseTimeslice
	e.birth = rq.tick
	e.h.lastBlockOrBirth = rq.tick
	e.cpu = rq.cpu

	if err := s.insertReady(rq, e); err != nil {
		s.arena.release(e.id)
		return StatusOK, fmt.Errorf("schedule task %d on cpu %d: %w", t.ID, rq.cpu, err)
	}
	rq.totalReadyPriority += int64(e.priority)
	e.accounted = true
	rq.ntasks.Add(1)
	s.tasks[t] = e.id
	t.SetProcessor(rq.cpu)
	s.emitEntity(rq, EventEnqueue, e)

	if rq.cpu != caller && rq.active != nil && e.schedPriority > rq.active.schedPriority {
		return StatusSwitch, nil
	}
	return StatusOK, nil
}

// Unschedule removes t from the scheduler. If t is running it is only marked
// and StatusSwitch is returned; its entity is freed by the next GetNext on
// that processor.
func (s *Scheduler) Unschedule(t *Task) (Status, error) {
	if t == nil {
		return StatusOK, fmt.Errorf("%w: nil task", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rq, err := s.queue(t.Processor())
	if err != nil {
		return StatusOK, err
	}

	rq.mu.Lock()
	if a := rq.active; a != nil && a.task == t && a.runnable() {
		a.state = StateUnscheduled
		rq.withdraw(a)
		rq.ntasks.Add(-1)
		s.emitEntity(rq, EventUnschedule, a)
		id := a.id
		rq.mu.Unlock()
		s.forgetLocked(t, id)
		return StatusSwitch, nil
	}
	if e := s.removeReady(rq, t); e != nil {
		rq.withdraw(e)
		rq.ntasks.Add(-1)
		s.emitEntity(rq, EventUnschedule, e)
		id := e.id
		rq.mu.Unlock()
		s.forgetLocked(t, id)
		s.arena.release(id)
		return StatusOK, nil
	}
	rq.mu.Unlock()

	wq, err := s.queue(blockQueue())
	if err != nil {
		return StatusOK, fmt.Errorf("unschedule task %d: %w", t.ID, ErrNotFound)
	}
	wq.mu.Lock()
	e := s.removeWaiting(wq, t)
	if e == nil {
		wq.mu.Unlock()
		return StatusOK, fmt.Errorf("unschedule task %d: %w", t.ID, ErrNotFound)
	}
	wq.ntasks.Add(-1)
	s.emitEntity(wq, EventUnschedule, e)
	id := e.id
	wq.mu.Unlock()
	s.forgetLocked(t, id)
	s.arena.release(id)
	return StatusOK, nil
}

// Block moves t to the wait list. It fails with ErrNotFound if t has no
// runnable entity; blocking an already blocked task is a no-op.
func (s *Scheduler) Block(t *Task) error {
	if t == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidArgument)
	}

	// s.mu spans the hand-off so the entity is never seen outside a queue
	s.mu.Lock()
	defer s.mu.Unlock()

	rq, err := s.queue(t.Processor())
	if err != nil {
		return err
	}
	wq, err := s.queue(blockQueue())
	if err != nil {
		return err
	}

	rq.mu.Lock()
	e := s.takeRunnable(rq, t)
	if e == nil {
		rq.mu.Unlock()
		if s.waitingOn(wq, t) {
			return nil
		}
		return fmt.Errorf("block task %d: %w", t.ID, ErrNotFound)
	}
	rq.withdraw(e)
	e.state = StateBlocked
	e.h.blockCount++
	age := rq.tick - e.birth
	rq.ntasks.Add(-1)
	s.emitEntity(rq, EventBlock, e)
	if rq == wq {
		s.parkLocked(wq, e, age)
		rq.mu.Unlock()
		return nil
	}
	rq.mu.Unlock()

	wq.mu.Lock()
	s.parkLocked(wq, e, age)
	wq.mu.Unlock()
	return nil
}

// parkLocked appends a blocked entity to wq's wait list. age is the entity's
// age in ticks of whichever queue it came from. Caller holds wq.mu.
func (s *Scheduler) parkLocked(wq *runQueue, e *entity, age int64) {
	e.state = StateBlocked
	e.birth = wq.tick - age
	e.h.lastBlockOrBirth = wq.tick
	e.cpu = wq.cpu
	e.task.SetProcessor(wq.cpu)
	wq.waiting.Add(e.id)
	wq.ntasks.Add(1)
}

func (s *Scheduler) waitingOn(wq *runQueue, t *Task) bool {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	it := wq.waiting.Iterator()
	for it.Next() {
		if e := s.arena.get(it.Value().(EntityID)); e != nil && e.task == t {
			return true
		}
	}
	return false
}

// Unblock returns t from the wait list to its processor's ready heap.
// StatusSwitch means t now outranks what that processor is running.
func (s *Scheduler) Unblock(t *Task) (Status, error) {
	if t == nil {
		return StatusOK, fmt.Errorf("%w: nil task", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wq, err := s.queue(blockQueue())
	if err != nil {
		return StatusOK, err
	}

	wq.mu.Lock()
	e := s.removeWaiting(wq, t)
	if e == nil {
		wq.mu.Unlock()
		return StatusOK, fmt.Errorf("unblock task %d: %w", t.ID, ErrNotFound)
	}
	e.h.ticksBlocked += wq.tick - e.h.lastBlockOrBirth
	age := wq.tick - e.birth
	wq.ntasks.Add(-1)

	owner := s.mustQueue(t.Processor())
	if owner != wq {
		wq.mu.Unlock()
		owner.mu.Lock()
	}
	st, err := s.wake(owner, e, age)
	if err != nil && owner == wq {
		// no room: park it again rather than lose it
		s.parkLocked(wq, e, age)
	}
	owner.mu.Unlock()

	if err != nil {
		if owner != wq {
			wq.mu.Lock()
			s.parkLocked(wq, e, age)
			wq.mu.Unlock()
		}
		return StatusOK, fmt.Errorf("unblock task %d: %w", t.ID, err)
	}
	return st, nil
}

// wake readies a just-unparked entity on owner. Caller holds owner.mu.
func (s *Scheduler) wake(owner *runQueue, e *entity, age int64) (Status, error) {
	e.birth = owner.tick - age
	e.cpu = owner.cpu
	s.adjust(owner, e, true)
	if err := s.insertReady(owner, e); err != nil {
		owner.withdraw(e)
		return StatusOK, err
	}
	owner.ntasks.Add(1)
	s.emitEntity(owner, EventUnblock, e)

	if owner.active == nil || e.schedPriority > owner.active.schedPriority {
		return StatusSwitch, nil
	}
	return StatusOK, nil
}

// Tick accounts one quantum on cpu. StatusSwitch asks the caller to run
// GetNext now.
func (s *Scheduler) Tick(cpu int) (Status, error) {
	rq, err := s.queue(cpu)
	if err != nil {
		return StatusOK, err
	}
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return s.tick(rq), nil
}

// GetNext returns the task cpu should run now, or its idle task. Calling it
// on a processor that was never initialized panics.
func (s *Scheduler) GetNext(cpu int) *Task {
	rq := s.mustQueue(cpu)
	rq.mu.Lock()
	next, dead := s.dispatch(rq)
	rq.mu.Unlock()
	if dead != (EntityID{}) {
		s.release(dead)
	}
	return next
}

// GetActive returns the task occupying cpu's active slot, or its idle task.
func (s *Scheduler) GetActive(cpu int) *Task {
	rq := s.mustQueue(cpu)
	rq.mu.Lock()
	defer rq.mu.Unlock()
	if rq.active != nil {
		return rq.active.task
	}
	return rq.idle
}

// Stats reports counters for cpu.
func (s *Scheduler) Stats(cpu int) (QueueStats, error) {
	rq, err := s.queue(cpu)
	if err != nil {
		return QueueStats{}, err
	}
	return rq.stats(), nil
}

// Entities is the number of live entities, including unscheduled ones not
// freed yet.
func (s *Scheduler) Entities() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena.inUse()
}

// internal/sim/machine.go

// Package sim drives the scheduler core with synthetic workloads, standing in
// for the timer interrupt, the context switch and the tasks themselves.
package sim

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"

	"dynsched/internal/job"
	"dynsched/internal/logging"
	"dynsched/internal/sched"
)

// proc is a simulated task.
type proc struct {
	spec       TaskSpec
	task       *sched.Task
	work       job.Work
	ran        int64
	dispatches int64
	blocks     int64
	spawned    bool
	exited     bool
}

// Machine is a multi-processor box running one scheduler.
type Machine struct {
	cfg    Config
	sched  *sched.Scheduler
	logger *slog.Logger

	idle     []*sched.Task
	running  []*sched.Task // what each processor switched to last
	kicked   []bool        // processor told to reschedule before its next tick
	procs    map[sched.TaskID]*proc
	pending  []*proc            // not spawned yet, by start tick
	sleepers *redblacktree.Tree // nodeKey -> *proc

	now      int64
	switches int64
}

// Option configures a Machine.
type Option func(*options)

type options struct {
	logger *slog.Logger
	events chan<- sched.Event
}

// WithLogger sets the machine's logger; the scheduler gets the same one.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEvents streams scheduler events to ch.
func WithEvents(ch chan<- sched.Event) Option {
	return func(o *options) { o.events = ch }
}

// New brings up cfg.CPUs processors and queues the configured tasks.
func New(cfg Config, opts ...Option) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	schedOpts := []sched.Option{sched.WithLogger(o.logger)}
	if o.events != nil {
		schedOpts = append(schedOpts, sched.WithEvents(o.events))
	}
	s, err := sched.New(cfg.Sched, schedOpts...)
	if err != nil {
		return nil, err
	}

	m := &Machine{
		cfg:      cfg,
		sched:    s,
		logger:   o.logger.With("component", "sim"),
		idle:     make([]*sched.Task, cfg.CPUs),
		running:  make([]*sched.Task, cfg.CPUs),
		kicked:   make([]bool, cfg.CPUs),
		procs:    make(map[sched.TaskID]*proc, len(cfg.Tasks)),
		sleepers: redblacktree.NewWith(byWake),
	}
	for cpu := range m.idle {
		m.idle[cpu] = sched.NewTask(0)
		if err := s.Init(cpu, m.idle[cpu]); err != nil {
			return nil, err
		}
		m.running[cpu] = m.idle[cpu]
	}
	for _, ts := range cfg.Tasks {
		work, err := ts.Work.Build()
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", ts.ID, err)
		}
		p := &proc{spec: ts, task: sched.NewTask(ts.ID), work: work}
		m.procs[ts.ID] = p
		m.pending = append(m.pending, p)
	}
	slices.SortStableFunc(m.pending, func(a, b *proc) int {
		return cmp.Compare(a.spec.Start, b.spec.Start)
	})
	if err := m.spawn(); err != nil {
		return nil, err
	}
	return m, nil
}

// Scheduler exposes the core being driven.
func (m *Machine) Scheduler() *sched.Scheduler { return m.sched }

// Now is the number of completed steps.
func (m *Machine) Now() int64 { return m.now }

// Running returns what cpu last switched to.
func (m *Machine) Running(cpu int) *sched.Task { return m.running[cpu] }

func (m *Machine) spawn() error {
	for len(m.pending) > 0 && m.pending[0].spec.Start <= m.now {
		p := m.pending[0]
		m.pending = m.pending[1:]
		st, err := m.sched.Schedule(0, p.task, p.spec.Nice)
		if err != nil {
			return fmt.Errorf("spawn task %d: %w", p.spec.ID, err)
		}
		m.kick(st, p.task)
		p.spawned = true
		m.logger.Debug("spawned", "task", p.spec.ID, "cpu", p.task.Processor(), "tick", m.now)
	}
	return nil
}

func (m *Machine) wake() {
	for node := m.sleepers.Left(); node != nil; node = m.sleepers.Left() {
		key := node.Key.(nodeKey)
		if key.wake > m.now {
			return
		}
		m.sleepers.Remove(key)
		p := node.Value.(*proc)
		st, err := m.sched.Unblock(p.task)
		if err != nil {
			m.logger.Warn("unblock failed", "task", p.spec.ID, "error", err)
			continue
		}
		m.kick(st, p.task)
	}
}

// kick marks t's processor for a dispatch this step when st asks for one.
func (m *Machine) kick(st sched.Status, t *sched.Task) {
	if st != sched.StatusSwitch {
		return
	}
	if cpu := t.Processor(); cpu >= 0 && cpu < len(m.kicked) {
		m.kicked[cpu] = true
	}
}

// Step advances every processor by one tick: due sleepers wake, the task that
// held each processor does one tick of work, then the timer fires. A processor
// the scheduler signalled during spawn or wakeup dispatches even if its tick
// did not ask to.
func (m *Machine) Step() error {
	m.now++
	if err := m.spawn(); err != nil {
		return err
	}
	m.wake()

	for cpu := range m.running {
		if p := m.procs[m.running[cpu].ID]; p != nil && m.running[cpu] == p.task && !p.exited {
			m.work(p)
		}

		st, err := m.sched.Tick(cpu)
		if err != nil {
			return fmt.Errorf("tick cpu %d: %w", cpu, err)
		}
		if st != sched.StatusSwitch && !m.kicked[cpu] {
			continue
		}
		m.kicked[cpu] = false
		next := m.sched.GetNext(cpu)
		if next != m.running[cpu] {
			m.switches++
			if p := m.procs[next.ID]; p != nil && next == p.task {
				p.dispatches++
			}
		}
		m.running[cpu] = next
	}
	return nil
}

func (m *Machine) work(p *proc) {
	p.ran++
	step := p.work()
	switch step.Action {
	case job.Block:
		if err := m.sched.Block(p.task); err != nil {
			m.logger.Warn("block failed", "task", p.spec.ID, "error", err)
			return
		}
		p.blocks++
		m.sleepers.Put(nodeKey{wake: m.now + step.Sleep, id: p.spec.ID}, p)
	case job.Exit:
		if _, err := m.sched.Unschedule(p.task); err != nil {
			m.logger.Warn("unschedule failed", "task", p.spec.ID, "error", err)
			return
		}
		p.exited = true
		m.logger.Info("task finished", "task", p.spec.ID, "tick", m.now, "ran", p.ran)
	}
}

// Run steps the machine until cfg.Ticks steps have run or ctx is done. With a
// positive tick_ms each step waits for the tick clock.
func (m *Machine) Run(ctx context.Context) (Report, error) {
	m.logger.Info("simulation started", "cpus", m.cfg.CPUs, "ticks", m.cfg.Ticks, "tasks", len(m.procs))
	defer func() {
		m.logger.Info("simulation stopped", "tick", m.now, "switches", m.switches)
	}()

	if m.cfg.TickMS <= 0 {
		for m.now < m.cfg.Ticks {
			if err := ctx.Err(); err != nil {
				return m.Report(), err
			}
			if err := m.Step(); err != nil {
				return m.Report(), err
			}
		}
		return m.Report(), nil
	}

	clock := NewTickClock(16)
	clock.Start(time.Duration(m.cfg.TickMS) * time.Millisecond)
	defer clock.Stop()
	for m.now < m.cfg.Ticks {
		select {
		case <-ctx.Done():
			return m.Report(), ctx.Err()
		case _, ok := <-clock.Ch:
			if !ok {
				return m.Report(), nil
			}
			if err := m.Step(); err != nil {
				return m.Report(), err
			}
		}
	}
	return m.Report(), nil
}

// TaskReport summarizes one task after a run.
type TaskReport struct {
	ID            sched.TaskID
	Ran           int64
	Dispatches    int64
	Blocks        int64
	Exited        bool
	Class         sched.Class
	Priority      int
	SchedPriority int
	UnfairCount   int64
}

// Report summarizes a run.
type Report struct {
	Ticks    int64
	Switches int64
	Dropped  int64
	Tasks    []TaskReport
}

// Report snapshots the machine's per-task counters, ordered by task ID.
func (m *Machine) Report() Report {
	r := Report{Ticks: m.now, Switches: m.switches, Dropped: m.sched.Dropped()}
	for _, p := range m.procs {
		tr := TaskReport{
			ID:         p.spec.ID,
			Ran:        p.ran,
			Dispatches: p.dispatches,
			Blocks:     p.blocks,
			Exited:     p.exited,
		}
		if snap, err := m.sched.Snapshot(p.task); err == nil {
			tr.Class = snap.Class
			tr.Priority = snap.Priority
			tr.SchedPriority = snap.SchedPriority
			tr.UnfairCount = snap.UnfairCount
		}
		r.Tasks = append(r.Tasks, tr)
	}
	slices.SortFunc(r.Tasks, func(a, b TaskReport) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return r
}

// nodeKey orders sleepers by wake tick, then task ID.
type nodeKey struct {
	wake int64
	id   sched.TaskID
}

// byWake implements the Comparator for the sleeper tree.
func byWake(a, b any) int {
	ka, kb := a.(nodeKey), b.(nodeKey)
	if c := cmp.Compare(ka.wake, kb.wake); c != 0 {
		return c
	}
	return cmp.Compare(ka.id, kb.id)
}

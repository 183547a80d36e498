package sched

import (
	"fmt"
	"sync/atomic"
)

// TaskID identifies a task to the rest of the kernel.
type TaskID uint64

// Task is the handle the task-management layer hands to the scheduler. The
// scheduler only ever reads and rewrites its processor affinity; identity is
// the pointer itself.
type Task struct {
	ID  TaskID
	cpu atomic.Int32 // processor the task is placed on
}

// NewTask creates a handle placed on processor 0 until scheduled.
func NewTask(id TaskID) *Task {
	return &Task{ID: id}
}

// Processor returns the processor the task is currently bound to.
func (t *Task) Processor() int { return int(t.cpu.Load()) }

// SetProcessor rebinds the task. Normally only the scheduler calls this.
func (t *Task) SetProcessor(cpu int) { t.cpu.Store(int32(cpu)) }

func (t *Task) String() string {
	if t == nil {
		return "task(nil)"
	}
	return fmt.Sprintf("task(%d@cpu%d)", t.ID, t.Processor())
}

package sched

import (
	"errors"

	"dynsched/internal/heap"
)

// Status is the outcome of a scheduler operation that may call for a
// context switch.
type Status int

const (
	StatusOK Status = iota
	StatusSwitch
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusSwitch:
		return "Switch"
	default:
		return "Unknown"
	}
}

var (
	ErrInvalidArgument = errors.New("sched: invalid argument")
	ErrOutOfMemory     = errors.New("sched: out of memory")
	ErrNotFound        = errors.New("sched: task not found")

	// ErrCapacityExceeded is the heap's own error so errors.Is matches either.
	ErrCapacityExceeded = heap.ErrCapacityExceeded
)

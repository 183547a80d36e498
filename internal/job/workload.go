// Package job provides synthetic task behaviors for driving the scheduler.
package job

import (
	"fmt"
	"strings"
)

// Action is what a task asks for after running one tick.
type Action int

const (
	Continue Action = iota
	Block           // wait for Step.Sleep ticks, then wake
	Exit
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "Continue"
	case Block:
		return "Block"
	case Exit:
		return "Exit"
	default:
		return "Unknown"
	}
}

// Step is the outcome of one tick of work.
type Step struct {
	Action Action
	Sleep  int64
}

// Work is called once for every tick its task spends running.
type Work func() Step

// CPUBound never blocks and never finishes.
func CPUBound() Work {
	return func() Step { return Step{Action: Continue} }
}

// IOBound runs for run ticks, then blocks for sleep ticks, forever.
func IOBound(run, sleep int64) Work {
	if run < 1 {
		run = 1
	}
	var ran int64
	return func() Step {
		ran++
		if ran < run {
			return Step{Action: Continue}
		}
		ran = 0
		return Step{Action: Block, Sleep: sleep}
	}
}

// Burst runs for total ticks and exits.
func Burst(total int64) Work {
	var ran int64
	return func() Step {
		ran++
		if ran >= total {
			return Step{Action: Exit}
		}
		return Step{Action: Continue}
	}
}

// Spec is the configuration form of a workload.
type Spec struct {
	Kind  string `yaml:"kind"`            // cpu, io or burst
	Run   int64  `yaml:"run,omitempty"`   // io: ticks between blocks
	Sleep int64  `yaml:"sleep,omitempty"` // io: ticks spent blocked
	Total int64  `yaml:"total,omitempty"` // burst: ticks until exit
}

// Build turns a Spec into its Work.
func (s Spec) Build() (Work, error) {
	switch strings.ToLower(s.Kind) {
	case "", "cpu":
		return CPUBound(), nil
	case "io":
		if s.Sleep <= 0 {
			return nil, fmt.Errorf("io workload: sleep must be positive, got %d", s.Sleep)
		}
		return IOBound(s.Run, s.Sleep), nil
	case "burst":
		if s.Total <= 0 {
			return nil, fmt.Errorf("burst workload: total must be positive, got %d", s.Total)
		}
		return Burst(s.Total), nil
	default:
		return nil, fmt.Errorf("unknown workload kind %q", s.Kind)
	}
}

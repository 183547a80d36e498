package sched

import "fmt"

// Priority tiers. Every priority the aging pass hands out is a tier plus nice
// plus, sometimes, a bonus.
const (
	TierIdle        = 0
	TierBatch       = 5
	TierBase        = 7
	TierInteractive = 10
)

const (
	BonusBirth = 1 // newly scheduled tasks run soon
	BonusSleep = 2 // just woke from a block
	BonusBoost = 1 // batch task getting less than its fair share
)

const (
	MinNice = -4
	MaxNice = 4
)

// Utilization thresholds and fairness tolerance, in percent.
const (
	InteractiveUtilization = 40
	BatchUtilization       = 90
	FairTolerance          = 3
)

// Config holds the scheduler's tunables. The zero value is not valid; start
// from DefaultConfig.
type Config struct {
	MaxCPUs      int `yaml:"max_cpus"`      // run queues that may be registered
	MaxEntities  int `yaml:"max_entities"`  // arena size across all processors
	HeapCapacity int `yaml:"heap_capacity"` // ready entities per run queue

	GraceTicks      int64 `yaml:"grace_ticks"`      // age before a task is judged
	BaseTimeslice   int64 `yaml:"base_timeslice"`   // new and unclassified tasks
	NormalTimeslice int64 `yaml:"normal_timeslice"` // interactive tasks
	BatchTimeslice  int64 `yaml:"batch_timeslice"`  // floor for batch tasks
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		MaxCPUs:         8,
		MaxEntities:     1024,
		HeapCapacity:    256,
		GraceTicks:      20,
		BaseTimeslice:   10,
		NormalTimeslice: 5,
		BatchTimeslice:  20,
	}
}

// Validate reports the first tunable that cannot work.
func (c Config) Validate() error {
	switch {
	case c.MaxCPUs <= 0:
		return fmt.Errorf("%w: max_cpus must be positive, got %d", ErrInvalidArgument, c.MaxCPUs)
	case c.MaxEntities <= 0:
		return fmt.Errorf("%w: max_entities must be positive, got %d", ErrInvalidArgument, c.MaxEntities)
	case c.HeapCapacity <= 0:
		return fmt.Errorf("%w: heap_capacity must be positive, got %d", ErrInvalidArgument, c.HeapCapacity)
	case c.GraceTicks < 0:
		return fmt.Errorf("%w: grace_ticks must not be negative, got %d", ErrInvalidArgument, c.GraceTicks)
	case c.BaseTimeslice <= 0 || c.NormalTimeslice <= 0 || c.BatchTimeslice <= 0:
		return fmt.Errorf("%w: timeslices must be positive", ErrInvalidArgument)
	}
	return nil
}

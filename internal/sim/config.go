package sim

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	yaml "github.com/goccy/go-yaml"

	"dynsched/internal/job"
	"dynsched/internal/sched"
)

// TaskSpec is one simulated task.
type TaskSpec struct {
	ID    sched.TaskID `yaml:"id"`
	Nice  int          `yaml:"nice"`
	Start int64        `yaml:"start"` // tick the task is created on
	Work  job.Spec     `yaml:"work"`
}

// Config mirrors config.yml.
type Config struct {
	CPUs   int          `yaml:"cpus"`    // 2 (by default)
	TickMS int          `yaml:"tick_ms"` // 0 runs as fast as possible
	Ticks  int64        `yaml:"ticks"`   // 500 (by default)
	Sched  sched.Config `yaml:"sched"`
	Tasks  []TaskSpec   `yaml:"tasks"`
}

// DefaultConfig is a small mixed workload: two hogs, an interactive task and
// a late short job.
func DefaultConfig() Config {
	return Config{
		CPUs:  2,
		Ticks: 500,
		Sched: sched.DefaultConfig(),
		Tasks: []TaskSpec{
			{ID: 1, Work: job.Spec{Kind: "cpu"}},
			{ID: 2, Work: job.Spec{Kind: "cpu"}},
			{ID: 3, Work: job.Spec{Kind: "io", Run: 2, Sleep: 8}},
			{ID: 4, Nice: 2, Start: 100, Work: job.Spec{Kind: "burst", Total: 40}},
		},
	}
}

// Load reads YAML over the defaults. An empty path or a missing file yields
// the defaults; a file that does not parse is an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	// sanity clamps
	if cfg.CPUs <= 0 {
		cfg.CPUs = 1
	}
	if cfg.TickMS < 0 {
		cfg.TickMS = 0
	}
	if cfg.Ticks <= 0 {
		cfg.Ticks = 500
	}
	if cfg.Sched.MaxCPUs < cfg.CPUs {
		cfg.Sched.MaxCPUs = cfg.CPUs
	}
	return cfg, cfg.Validate()
}

// Validate checks the task table and the scheduler tunables.
func (c Config) Validate() error {
	if err := c.Sched.Validate(); err != nil {
		return err
	}
	if c.CPUs > c.Sched.MaxCPUs {
		return fmt.Errorf("cpus %d exceeds sched.max_cpus %d", c.CPUs, c.Sched.MaxCPUs)
	}
	seen := make(map[sched.TaskID]bool, len(c.Tasks))
	for _, ts := range c.Tasks {
		if ts.ID == 0 {
			return errors.New("task id 0 is reserved for idle tasks")
		}
		if seen[ts.ID] {
			return fmt.Errorf("duplicate task id %d", ts.ID)
		}
		seen[ts.ID] = true
		if ts.Nice < sched.MinNice || ts.Nice > sched.MaxNice {
			return fmt.Errorf("task %d: nice %d outside [%d,%d]", ts.ID, ts.Nice, sched.MinNice, sched.MaxNice)
		}
		if _, err := ts.Work.Build(); err != nil {
			return fmt.Errorf("task %d: %w", ts.ID, err)
		}
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

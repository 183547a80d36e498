package sim

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynsched/internal/job"
	"dynsched/internal/logging"
	"dynsched/internal/sched"
)

func taskReport(t *testing.T, r Report, id sched.TaskID) TaskReport {
	t.Helper()
	for _, tr := range r.Tasks {
		if tr.ID == id {
			return tr
		}
	}
	t.Fatalf("no report for task %d", id)
	return TaskReport{}
}

func TestMachine_DefaultWorkload(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)

	r, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(500), r.Ticks)
	require.Len(t, r.Tasks, 4)

	var total int64
	for _, tr := range r.Tasks {
		total += tr.Ran
		assert.Positive(t, tr.Ran, "task %d starved", tr.ID)
	}
	assert.LessOrEqual(t, total, int64(2*500))

	hogs := taskReport(t, r, 1).UnfairCount + taskReport(t, r, 2).UnfairCount
	assert.Positive(t, hogs, "a hog sharing its cpu with the late job is penalized")

	io := taskReport(t, r, 3)
	assert.Positive(t, io.Blocks)
	assert.Equal(t, sched.ClassInteractive, io.Class)

	burst := taskReport(t, r, 4)
	assert.True(t, burst.Exited)
	assert.Equal(t, int64(40), burst.Ran)
	assert.Equal(t, 3, m.Scheduler().Entities(), "finished task is freed")
}

func TestMachine_IdleWithoutTasks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tasks = nil
	cfg.Ticks = 10
	m, err := New(cfg)
	require.NoError(t, err)

	r, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.Tasks)
	assert.Equal(t, int64(0), r.Switches)
	for cpu := 0; cpu < cfg.CPUs; cpu++ {
		assert.Equal(t, sched.TaskID(0), m.Running(cpu).ID)
	}
}

func TestMachine_LateArrivalRuns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CPUs = 1
	cfg.Ticks = 100
	cfg.Tasks = []TaskSpec{
		{ID: 1, Work: job.Spec{Kind: "cpu"}},
		{ID: 2, Start: 40, Work: job.Spec{Kind: "cpu"}},
	}
	m, err := New(cfg)
	require.NoError(t, err)

	for m.Now() < 39 {
		require.NoError(t, m.Step())
	}
	assert.Equal(t, sched.TaskID(1), m.Running(0).ID)

	seen := false
	for m.Now() < cfg.Ticks && !seen {
		require.NoError(t, m.Step())
		seen = m.Running(0).ID == 2
	}
	assert.True(t, seen, "late task never ran")
}

func TestMachine_ContextCancelled(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), r.Ticks)
}

func TestMachine_ClockDriven(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickMS = 1
	cfg.Ticks = 5
	var logs bytes.Buffer
	m, err := New(cfg, WithLogger(logging.NewLoggerWithWriter(0, "text", &logs)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), r.Ticks)
	assert.Contains(t, logs.String(), "simulation started")
	assert.Contains(t, logs.String(), "component=sim")
}

func TestMachine_EventsReachTrace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ticks = 50
	ch := make(chan sched.Event, 4096)
	m, err := New(cfg, WithEvents(ch))
	require.NoError(t, err)
	_, err = m.Run(context.Background())
	require.NoError(t, err)
	close(ch)

	var out bytes.Buffer
	tr := NewTrace(&out)
	tr.Consume(ch)
	require.NoError(t, tr.Close())

	assert.Positive(t, tr.Count())
	assert.Contains(t, out.String(), "Enqueued")
	assert.Contains(t, out.String(), "Dispatch")
	assert.False(t, strings.Contains(out.String(), "[    Idle    ]"))
}

func TestMachine_WakeupKicksProcessor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CPUs = 1
	cfg.Tasks = []TaskSpec{{ID: 1, Work: job.Spec{Kind: "io", Run: 1, Sleep: 3}}}
	m, err := New(cfg)
	require.NoError(t, err)

	for m.sleepers.Size() == 0 {
		require.NoError(t, m.Step())
	}
	require.NoError(t, m.Step())
	assert.Equal(t, sched.TaskID(0), m.Running(0).ID, "processor idles while the task sleeps")

	m.now = m.sleepers.Left().Key.(nodeKey).wake
	m.wake()
	assert.True(t, m.kicked[0], "waking onto an idle processor asks it to dispatch")

	require.NoError(t, m.Step())
	assert.False(t, m.kicked[0])
	assert.Equal(t, sched.TaskID(1), m.Running(0).ID)
}

func TestByWake(t *testing.T) {
	assert.Equal(t, -1, byWake(nodeKey{wake: 1, id: 9}, nodeKey{wake: 2, id: 1}))
	assert.Equal(t, 1, byWake(nodeKey{wake: 2, id: 2}, nodeKey{wake: 2, id: 1}))
	assert.Equal(t, 0, byWake(nodeKey{wake: 3, id: 4}, nodeKey{wake: 3, id: 4}))
}

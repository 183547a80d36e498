package sim

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynsched/internal/sched"
)

func TestTrace_Console(t *testing.T) {
	var out bytes.Buffer
	tr := NewTrace(&out)
	at := time.Date(2024, time.March, 5, 10, 20, 30, 0, time.UTC)

	tr.Handle(sched.Event{Time: at, Tick: 42, CPU: 1, Kind: sched.EventDispatch, TaskID: 7, Priority: 9, SchedPriority: -3})
	tr.Handle(sched.Event{Time: at, Tick: 43, CPU: 1, Kind: sched.EventIdle})

	assert.Equal(t,
		"Mar 05 10:20:30.000 = Tick: 0000042 CPU 01 [  Dispatch  ] => Task: 0007, prio=  9 sched=  -3\n",
		out.String())
	assert.Equal(t, int64(2), tr.Count())
	assert.NoError(t, tr.Close())
}

func TestTrace_CSV(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTrace(nil)
	tr.attachCSV(&buf)

	ch := make(chan sched.Event, 2)
	ch <- sched.Event{Tick: 1, CPU: 0, Kind: sched.EventIdle}
	ch <- sched.Event{Tick: 2, CPU: 3, Kind: sched.EventPenalize, TaskID: 5, Priority: 5, SchedPriority: -1}
	close(ch)
	tr.Consume(ch)
	require.NoError(t, tr.Close())

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "sched_priority", rows[0][6])
	assert.Equal(t, "Idle", rows[1][3])
	assert.Equal(t, []string{"2", "3", "Penalize", "5", "5", "-1"}, rows[2][1:])
}

func TestTrace_EnableCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	tr := NewTrace(nil)
	require.NoError(t, tr.EnableCSV(path))
	tr.Handle(sched.Event{Kind: sched.EventBlock, TaskID: 3})
	require.NoError(t, tr.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "timestamp,tick,cpu,event"))
	assert.Contains(t, lines[1], ",Block,3,")

	assert.Error(t, NewTrace(nil).EnableCSV(filepath.Join(t.TempDir(), "missing", "x.csv")))
}

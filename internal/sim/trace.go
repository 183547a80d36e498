// internal/sim/trace.go

package sim

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"dynsched/internal/sched"
)

// Trace prints scheduler events and optionally records them as CSV.
type Trace struct {
	out       io.Writer
	quiet     map[sched.EventKind]bool
	csvFile   *os.File
	csvWriter *csv.Writer
	count     int64
}

// NewTrace writes one line per event to out. Idle events are skipped on the
// console for brevity; they still reach the CSV file.
func NewTrace(out io.Writer) *Trace {
	return &Trace{
		out:   out,
		quiet: map[sched.EventKind]bool{sched.EventIdle: true},
	}
}

// EnableCSV opens path for CSV logging of events.
// Must be called before Consume.
func (t *Trace) EnableCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	t.attachCSV(f)
	t.csvFile = f
	return nil
}

func (t *Trace) attachCSV(w io.Writer) {
	t.csvWriter = csv.NewWriter(w)
	// write header
	t.csvWriter.Write([]string{"timestamp", "tick", "cpu", "event", "task_id", "priority", "sched_priority"})
	t.csvWriter.Flush()
}

// Consume handles events until ch is closed.
func (t *Trace) Consume(ch <-chan sched.Event) {
	for ev := range ch {
		t.Handle(ev)
	}
}

// Count is the number of events handled.
func (t *Trace) Count() int64 { return t.count }

// Handle prints and records one event.
func (t *Trace) Handle(ev sched.Event) {
	t.count++

	if t.out != nil && !t.quiet[ev.Kind] {
		// an auxiliary function to center the event kind in the output
		center := func(str string, width int) string {
			spaces := (width - len(str)) / 2
			return strings.Repeat(" ", spaces) + str + strings.Repeat(" ", width-(spaces+len(str)))
		}
		fmt.Fprintf(t.out, "%s = Tick: %07d CPU %02d [%s] => Task: %04d, prio=%3d sched=%4d\n",
			ev.Time.Format("Jan 02 15:04:05.000"),
			ev.Tick,
			ev.CPU,
			center(ev.Kind.String(), 12),
			ev.TaskID,
			ev.Priority,
			ev.SchedPriority,
		)
	}

	if t.csvWriter != nil {
		rec := []string{
			ev.Time.Format(time.RFC3339Nano),
			strconv.FormatInt(ev.Tick, 10),
			strconv.Itoa(ev.CPU),
			ev.Kind.String(),
			strconv.FormatUint(uint64(ev.TaskID), 10),
			strconv.Itoa(ev.Priority),
			strconv.Itoa(ev.SchedPriority),
		}
		t.csvWriter.Write(rec)
	}
}

// Close flushes and closes the CSV file, if any.
func (t *Trace) Close() error {
	if t.csvWriter == nil {
		return nil
	}
	t.csvWriter.Flush()
	err := t.csvWriter.Error()
	if t.csvFile != nil {
		if cerr := t.csvFile.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

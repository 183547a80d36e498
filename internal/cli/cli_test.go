package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestConfigCmd_Defaults(t *testing.T) {
	out, _, err := execute(t, "config", "--config", filepath.Join(t.TempDir(), "none.yml"))
	require.NoError(t, err)
	assert.Contains(t, out, "cpus: 2")
	assert.Contains(t, out, "grace_ticks: 20")
	assert.Contains(t, out, "kind: burst")
}

func TestRunCmd_Quiet(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "events.csv")
	out, logs, err := execute(t, "run", "--config", filepath.Join(dir, "none.yml"),
		"--ticks", "30", "--cpus", "1", "--quiet", "--csv", csvPath)
	require.NoError(t, err)

	assert.Contains(t, out, "30 ticks")
	assert.Contains(t, out, "TASK")
	assert.NotContains(t, out, "Dispatch")
	assert.Contains(t, logs, "simulation started")

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "timestamp,tick,cpu,event"))
	assert.Contains(t, string(data), "Dispatch")
}

func TestRunCmd_Trace(t *testing.T) {
	out, _, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "none.yml"), "--ticks", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Dispatch")
	assert.Contains(t, out, "Task: 0001")
}

func TestRunCmd_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("tasks:\n  - id: 0\n"), 0o644))
	_, _, err := execute(t, "run", "--config", path)
	assert.ErrorContains(t, err, "load config")
}

package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestExecute_CapturesExitCodeAndStdout(t *testing.T) {
	r := New()
	res, err := r.Execute(context.Background(), Command{
		Argv:      []string{"sh", "-c", "echo hello"},
		Timeout:   5 * time.Second,
		StdoutCap: 4096,
		StderrCap: 4096,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, string(res.StdoutTail), "hello")
	assert.False(t, res.TimedOut)
}

func TestExecute_NonZeroExitIsBackendFailure(t *testing.T) {
	r := New()
	_, err := r.Execute(context.Background(), Command{
		Argv:      []string{"sh", "-c", "exit 3"},
		Timeout:   5 * time.Second,
		StdoutCap: 4096,
		StderrCap: 4096,
	}, nil)
	require.Error(t, err)
	var runErr *Error
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, ErrorKindBackendFailure, runErr.Kind)
	assert.Equal(t, 3, runErr.Result.ExitCode)
}

func TestExecute_TimeoutKillsProcessTree(t *testing.T) {
	r := New()
	start := time.Now()
	_, err := r.Execute(context.Background(), Command{
		Argv:      []string{"sh", "-c", "sleep 30"},
		Timeout:   200 * time.Millisecond,
		StdoutCap: 4096,
		StderrCap: 4096,
	}, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	var runErr *Error
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, ErrorKindPhaseTimeout, runErr.Kind)
	assert.True(t, runErr.Result.TimedOut)
	assert.Less(t, elapsed, killGrace+5*time.Second, "kill should not wait the full grace period on a cooperative process")
}

func TestExecute_StderrRedactionApplied(t *testing.T) {
	r := New()
	_, err := r.Execute(context.Background(), Command{
		Argv:      []string{"sh", "-c", "echo secret-value 1>&2; exit 1"},
		Timeout:   5 * time.Second,
		StdoutCap: 4096,
		StderrCap: 4096,
	}, func(s string) string { return "[REDACTED]" })
	require.Error(t, err)
	var runErr *Error
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "[REDACTED]", string(runErr.Result.StderrTail))
}

func TestParseLastFrame_ScansFromEndToleratingNoise(t *testing.T) {
	stdout := []byte("some log line\n{\"event\":\"start\"}\nnoise\n{\"event\":\"done\",\"ok\":true}\n\n")
	frame, ok := ParseLastFrame(stdout)
	require.True(t, ok)
	assert.Equal(t, "done", frame["event"])
	assert.Equal(t, true, frame["ok"])
}

func TestParseLastFrame_NoJSONReturnsFalse(t *testing.T) {
	_, ok := ParseLastFrame([]byte("just text\nmore text\n"))
	assert.False(t, ok)
}

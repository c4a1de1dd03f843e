package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_SucceedsOnFreshSpec(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, time.Hour)

	h, err := m.Acquire(false)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.FileExists(t, filepath.Join(dir, ".lock"))

	require.NoError(t, h.Release())
	assert.NoFileExists(t, filepath.Join(dir, ".lock"))
}

func TestAcquire_FailsWhenHeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, time.Hour)

	info := Info{PID: os.Getpid(), Host: hostname(), StartedAt: time.Now().UTC()}
	data, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lock"), data, 0o644))

	_, err = m.Acquire(false)
	assert.ErrorIs(t, err, ErrHeld)
}

func TestAcquire_BreaksStaleLockWhenPIDDead(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, time.Hour)

	// A PID unlikely to be alive, on this host, well within TTL.
	info := Info{PID: 999999, Host: hostname(), StartedAt: time.Now().UTC()}
	data, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lock"), data, 0o644))

	h, err := m.Acquire(false)
	require.NoError(t, err)
	assert.Equal(t, "stale_lock_broken", h.Warning)
}

func TestAcquire_ExpiredTTLIsStale(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, time.Millisecond)

	info := Info{PID: os.Getpid(), Host: hostname(), StartedAt: time.Now().Add(-time.Hour)}
	data, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lock"), data, 0o644))

	h, err := m.Acquire(false)
	require.NoError(t, err)
	assert.Equal(t, "stale_lock_broken", h.Warning)
}

func TestDrift_ReportsChangedFields(t *testing.T) {
	prev := DriftFields{ModelAliasResolved: "a", CLIVersion: "1.0", SchemaVersion: "1"}
	cur := DriftFields{ModelAliasResolved: "b", CLIVersion: "1.0", SchemaVersion: "1"}
	assert.Equal(t, []string{"model_alias_resolved"}, Drift(cur, prev))
}

func TestDrift_NoDiffsWhenIdentical(t *testing.T) {
	f := DriftFields{ModelAliasResolved: "a", CLIVersion: "1.0", SchemaVersion: "1"}
	assert.Empty(t, Drift(f, f))
}

// Package lock implements xchecker's advisory spec-level Lock Manager
// (spec.md §4.7): an exclusive-create JSON lock file with stale detection
// by PID liveness and age, plus drift detection against the most recent
// receipt.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrHeld is returned when the lock is held by a live, non-stale owner.
var ErrHeld = errors.New("lock held")

// HardStaleThreshold is the age past which a lock is force-broken even
// without force=true (spec.md §4.7 step 4's "hard threshold").
const HardStaleThreshold = 24 * time.Hour

// Info is the lock file's JSON body (spec.md §3 Lock).
type Info struct {
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	StartedAt time.Time `json:"started_at"`
}

// Manager acquires and releases the lock file for one spec.
type Manager struct {
	path string
	ttl  time.Duration
}

// New constructs a Manager for the lock file at <specRoot>/.lock.
func New(specRoot string, ttl time.Duration) *Manager {
	return &Manager{path: filepath.Join(specRoot, ".lock"), ttl: ttl}
}

// Handle represents a held lock; Release must be called on every exit
// path (spec.md §4.7: "delete the lock on all normal and abnormal exit
// paths").
type Handle struct {
	mgr     *Manager
	Warning string // set to "stale_lock_broken" when acquisition broke a stale lock
}

// Acquire implements spec.md §4.7's acquire algorithm.
func (m *Manager) Acquire(force bool) (*Handle, error) {
	info := Info{PID: os.Getpid(), Host: hostname(), StartedAt: time.Now().UTC()}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		if _, werr := f.Write(data); werr != nil {
			f.Close()
			os.Remove(m.path)
			return nil, werr
		}
		f.Close()
		return &Handle{mgr: m}, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	existing, readErr := m.read()
	if readErr != nil {
		return nil, readErr
	}

	stale := m.isStale(existing)
	if !stale {
		return nil, ErrHeld
	}

	hardStale := time.Since(existing.StartedAt) > HardStaleThreshold
	if !force && !hardStale {
		return nil, ErrHeld
	}

	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("breaking stale lock: %w", err)
	}
	f, err = os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if _, werr := f.Write(data); werr != nil {
		f.Close()
		os.Remove(m.path)
		return nil, werr
	}
	f.Close()
	return &Handle{mgr: m, Warning: "stale_lock_broken"}, nil
}

// Release deletes the lock file. Safe to call more than once.
func (h *Handle) Release() error {
	if h == nil || h.mgr == nil {
		return nil
	}
	err := os.Remove(h.mgr.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (m *Manager) read() (Info, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, err
	}
	return info, nil
}

// isStale reports whether an existing lock is no longer valid: its PID is
// not alive on the recorded host, or its age exceeds the TTL.
func (m *Manager) isStale(info Info) bool {
	if info.Host == hostname() && !pidAlive(info.PID) {
		return true
	}
	if m.ttl > 0 && time.Since(info.StartedAt) > m.ttl {
		return true
	}
	return false
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// DriftFields is the subset of a receipt compared for drift detection
// (spec.md §4.7's "Drift detection").
type DriftFields struct {
	ModelAliasResolved string
	CLIVersion         string
	SchemaVersion      string
}

// Drift reports which fields differ between the current run and the most
// recently recorded receipt, as status field "lock_drift".
func Drift(current, previous DriftFields) []string {
	var diffs []string
	if current.ModelAliasResolved != previous.ModelAliasResolved {
		diffs = append(diffs, "model_alias_resolved")
	}
	if current.CLIVersion != previous.CLIVersion {
		diffs = append(diffs, "cli_version")
	}
	if current.SchemaVersion != previous.SchemaVersion {
		diffs = append(diffs, "schema_version")
	}
	return diffs
}

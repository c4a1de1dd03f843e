// Package atomicio implements xchecker's atomic write contract (spec.md
// §4.2): temp file in the same directory, fsync, atomic rename, with a
// bounded-retry path for Windows sharing violations and an EXDEV fallback
// for cross-filesystem renames.
package atomicio

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Result carries non-fatal diagnostics from a Write call, surfaced by
// callers as receipt warnings (spec.md §4.2 step 3).
type Result struct {
	RenameRetryCount int
	PermissionsKept  bool
}

// Write atomically replaces path's contents with data. mode is applied to
// the temp file before rename so the final file carries the intended
// permission bits; if path already exists, its mode is preserved instead.
func Write(path string, data []byte, mode os.FileMode) error {
	_, err := WriteWithResult(path, data, mode)
	return err
}

// WriteWithResult is Write but also reports retry/permission diagnostics.
func WriteWithResult(path string, data []byte, mode os.FileMode) (Result, error) {
	var res Result

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, fmt.Errorf("create parent dir %s: %w", dir, err)
	}

	finalMode := mode
	if fi, err := os.Stat(path); err == nil {
		finalMode = fi.Mode().Perm()
		res.PermissionsKept = true
	}

	tmpPath, err := writeTemp(dir, data, finalMode)
	if err != nil {
		return res, err
	}
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	retries, err := renameWithRetry(tmpPath, path)
	res.RenameRetryCount = retries
	if err != nil {
		if errors.Is(err, errCrossDevice) {
			if cpErr := copyThenRemove(tmpPath, path, finalMode); cpErr != nil {
				return res, fmt.Errorf("cross-filesystem fallback for %s: %w", path, cpErr)
			}
			cleanup = false
			fsyncDir(dir)
			return res, nil
		}
		return res, fmt.Errorf("rename %s -> %s: %w", tmpPath, path, err)
	}

	cleanup = false
	fsyncDir(dir)
	return res, nil
}

func writeTemp(dir string, data []byte, mode os.FileMode) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", fmt.Errorf("generate temp suffix: %w", err)
	}

	f, err := os.CreateTemp(dir, fmt.Sprintf(".xchecker-*-%s.tmp", suffix))
	if err != nil {
		return "", fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write temp file %s: %w", tmpPath, err)
	}
	if err := f.Chmod(mode); err != nil {
		// Non-fatal: some filesystems/platforms reject chmod on temp files.
		_ = err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("fsync temp file %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file %s: %w", tmpPath, err)
	}
	return tmpPath, nil
}

func randomSuffix() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func copyThenRemove(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// fsyncDir best-effort fsyncs the containing directory so the rename
// itself is durable. Not all platforms support this; failures are ignored.
func fsyncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}

// backoffSchedule is the bounded exponential retry used on Windows sharing
// violations: roughly 5-8 attempts totaling <= 250ms (spec.md §4.2 step 3).
var backoffSchedule = []time.Duration{
	2 * time.Millisecond,
	4 * time.Millisecond,
	8 * time.Millisecond,
	16 * time.Millisecond,
	32 * time.Millisecond,
	64 * time.Millisecond,
	120 * time.Millisecond,
}

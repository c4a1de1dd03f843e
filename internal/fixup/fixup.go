// Package fixup implements xchecker's Fixup Engine (spec.md §4.9): unified
// diff parsing and validation, path-boundary enforcement, dry-run apply,
// and atomic apply-with-backup, built on sergi/go-diff's patch machinery
// the way internal/diff uses it for diff computation.
package fixup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/EffortlessMetrics/xchecker/internal/atomicio"
	"github.com/EffortlessMetrics/xchecker/internal/diff"
)

// Mode selects preview (no writes) vs apply (writes + backups).
type Mode string

const (
	ModePreview Mode = "preview"
	ModeApply   Mode = "apply"
)

// Target is one file's unified-diff hunk text extracted from review output.
type Target struct {
	Path     string
	HunkText string // sergi/go-diff patch text, beginning at the first @@ hunk header
}

// ChangeSummary reports validation outcome for one target (spec.md §4.9
// step 4), without exposing file content in preview mode.
type ChangeSummary struct {
	Path               string
	HunkCount          int
	LineDelta          int
	LinesAdded         int
	LinesRemoved       int
	ValidationMessages []string
}

// Valid reports whether a summary carries no validation failures.
func (c ChangeSummary) Valid() bool { return len(c.ValidationMessages) == 0 }

// ApplyRecord is one target's outcome in apply mode (spec.md §4.9 apply
// step 4: "the receipt lists which succeeded").
type ApplyRecord struct {
	Path       string
	Succeeded  bool
	BackupPath string
	Error      string
}

// Engine validates and applies fixups rooted at a spec directory.
type Engine struct {
	Root       string
	AllowLinks bool
	dmp        *diffmatchpatch.DiffMatchPatch
	diffEngine *diff.Engine
}

// New constructs an Engine. root is the spec root all targets are resolved
// relative to; allowLinks permits symlink/hardlink targets when true.
func New(root string, allowLinks bool) *Engine {
	return &Engine{Root: root, AllowLinks: allowLinks, dmp: diffmatchpatch.New(), diffEngine: diff.NewEngine()}
}

// ParseDiffs splits a multi-file unified diff into per-target Target
// chunks, keyed by each file's "+++ b/<path>" header (spec.md §4.9 step 1).
func ParseDiffs(diffText string) ([]Target, error) {
	lines := strings.Split(normalizeLF(diffText), "\n")
	var targets []Target
	var currentPath string
	var hunkLines []string

	flush := func() {
		if currentPath != "" && len(hunkLines) > 0 {
			targets = append(targets, Target{Path: currentPath, HunkText: strings.Join(hunkLines, "\n") + "\n"})
		}
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "--- "):
			continue
		case strings.HasPrefix(line, "+++ "):
			flush()
			currentPath = stripDiffPrefix(strings.TrimPrefix(line, "+++ "))
			hunkLines = nil
		default:
			if currentPath != "" {
				hunkLines = append(hunkLines, line)
			}
		}
	}
	flush()

	if len(targets) == 0 {
		return nil, fmt.Errorf("no unified diff hunks found")
	}
	return targets, nil
}

// stripDiffPrefix removes the conventional "a/" / "b/" prefix from a
// unified diff path header.
func stripDiffPrefix(path string) string {
	path = strings.TrimSpace(path)
	if idx := strings.Index(path, "\t"); idx >= 0 {
		path = path[:idx]
	}
	for _, prefix := range []string{"a/", "b/"} {
		if strings.HasPrefix(path, prefix) {
			return strings.TrimPrefix(path, prefix)
		}
	}
	return path
}

// resolveTarget enforces spec.md §4.9 step 2: reject `..` components,
// reject escaping the spec root, reject symlinks/hardlinks unless
// allow_links is set.
func (e *Engine) resolveTarget(relPath string) (string, error) {
	if strings.Contains(filepath.ToSlash(relPath), "..") {
		return "", fmt.Errorf("path %q contains a .. component", relPath)
	}
	abs := filepath.Join(e.Root, relPath)
	rel, err := filepath.Rel(e.Root, abs)
	if err != nil || strings.HasPrefix(rel, "..") || rel == ".." {
		return "", fmt.Errorf("path %q resolves outside the spec root", relPath)
	}
	if !e.AllowLinks {
		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("path %q is a symlink and allow_links is false", relPath)
		}
	}
	return abs, nil
}

// DryRun validates every target against a temp in-memory application of
// its patch and produces a ChangeSummary per target (spec.md §4.9 step 3-4).
// It never writes to disk.
func (e *Engine) DryRun(targets []Target) []ChangeSummary {
	summaries := make([]ChangeSummary, 0, len(targets))
	for _, t := range targets {
		summaries = append(summaries, e.dryRunOne(t))
	}
	return summaries
}

func (e *Engine) dryRunOne(t Target) ChangeSummary {
	abs, err := e.resolveTarget(t.Path)
	if err != nil {
		return ChangeSummary{Path: t.Path, ValidationMessages: []string{err.Error()}}
	}

	original, readErr := os.ReadFile(abs)
	if readErr != nil && !os.IsNotExist(readErr) {
		return ChangeSummary{Path: t.Path, ValidationMessages: []string{fmt.Sprintf("read: %v", readErr)}}
	}
	originalText := normalizeLF(string(original))

	patches, err := e.dmp.PatchFromText(t.HunkText)
	if err != nil {
		return ChangeSummary{Path: t.Path, ValidationMessages: []string{fmt.Sprintf("parse diff: %v", err)}}
	}

	newText, applied := e.dmp.PatchApply(patches, originalText)
	var msgs []string
	for i, ok := range applied {
		if !ok {
			msgs = append(msgs, fmt.Sprintf("hunk %d did not apply cleanly", i))
		}
	}

	added, removed := e.countChangedLines(t.Path, originalText, newText)

	return ChangeSummary{
		Path:               t.Path,
		HunkCount:          len(patches),
		LineDelta:          countLines(newText) - countLines(originalText),
		LinesAdded:         added,
		LinesRemoved:       removed,
		ValidationMessages: msgs,
	}
}

// countChangedLines reports the added/removed line counts across every
// hunk of a before/after comparison, used to enrich a dry-run preview
// beyond the raw line-count delta (spec.md §4.9 step 4).
func (e *Engine) countChangedLines(path, before, after string) (added, removed int) {
	fd := e.diffEngine.ComputeDiff(path, path, before, after)
	for _, h := range fd.Hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case diff.LineAdded:
				added++
			case diff.LineRemoved:
				removed++
			}
		}
	}
	return added, removed
}

// Apply re-validates then writes each target in order, backing up the
// original to a .bak sibling before replacing it (spec.md §4.9 apply
// mode). It stops at the first failure; records for prior targets remain
// valid since each write is atomic individually.
func (e *Engine) Apply(targets []Target) ([]ApplyRecord, error) {
	records := make([]ApplyRecord, 0, len(targets))

	for _, t := range targets {
		summary := e.dryRunOne(t)
		if !summary.Valid() {
			records = append(records, ApplyRecord{Path: t.Path, Succeeded: false, Error: strings.Join(summary.ValidationMessages, "; ")})
			return records, fmt.Errorf("fixup validation failed for %q: %s", t.Path, strings.Join(summary.ValidationMessages, "; "))
		}

		abs, err := e.resolveTarget(t.Path)
		if err != nil {
			records = append(records, ApplyRecord{Path: t.Path, Succeeded: false, Error: err.Error()})
			return records, err
		}

		mode := os.FileMode(0o644)
		original, readErr := os.ReadFile(abs)
		if readErr == nil {
			if info, statErr := os.Stat(abs); statErr == nil {
				mode = info.Mode()
			}
		} else if !os.IsNotExist(readErr) {
			records = append(records, ApplyRecord{Path: t.Path, Succeeded: false, Error: readErr.Error()})
			return records, readErr
		}
		originalText := normalizeLF(string(original))

		backupPath := abs + ".bak"
		if len(original) > 0 {
			if err := atomicio.Write(backupPath, original, mode); err != nil {
				records = append(records, ApplyRecord{Path: t.Path, Succeeded: false, Error: fmt.Sprintf("backup: %v", err)})
				return records, err
			}
		}

		patches, err := e.dmp.PatchFromText(t.HunkText)
		if err != nil {
			records = append(records, ApplyRecord{Path: t.Path, Succeeded: false, Error: err.Error()})
			return records, err
		}
		newText, _ := e.dmp.PatchApply(patches, originalText)

		if err := atomicio.Write(abs, []byte(newText), mode); err != nil {
			records = append(records, ApplyRecord{Path: t.Path, Succeeded: false, BackupPath: backupPath, Error: err.Error()})
			return records, err
		}

		records = append(records, ApplyRecord{Path: t.Path, Succeeded: true, BackupPath: backupPath})
	}

	return records, nil
}

func normalizeLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

package fixup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
)

func buildDiffText(t *testing.T, path, oldContent, newContent string) string {
	t.Helper()
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldContent, newContent, false)
	patches := dmp.PatchMake(oldContent, diffs)
	hunkText := dmp.PatchToText(patches)

	var b strings.Builder
	b.WriteString("--- a/" + path + "\n")
	b.WriteString("+++ b/" + path + "\n")
	b.WriteString(hunkText)
	return b.String()
}

func TestParseDiffs_SplitsByFileHeader(t *testing.T) {
	diffText := buildDiffText(t, "file1.txt", "hello\n", "hello world\n") +
		buildDiffText(t, "file2.txt", "a\n", "b\n")

	targets, err := ParseDiffs(diffText)
	if err != nil {
		t.Fatalf("ParseDiffs: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0].Path != "file1.txt" || targets[1].Path != "file2.txt" {
		t.Fatalf("unexpected paths: %+v", targets)
	}
}

func TestDryRun_ReportsCleanApplyWithNoWrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(target, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	diffText := buildDiffText(t, "notes.txt", "hello\n", "hello world\n")
	targets, err := ParseDiffs(diffText)
	if err != nil {
		t.Fatalf("ParseDiffs: %v", err)
	}

	e := New(dir, false)
	summaries := e.DryRun(targets)
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if !summaries[0].Valid() {
		t.Fatalf("expected valid summary, got messages: %v", summaries[0].ValidationMessages)
	}

	if got, err := os.ReadFile(target); err != nil || string(got) != "hello\n" {
		t.Fatalf("dry run must not write: got %q, err %v", got, err)
	}
	if summaries[0].LinesAdded == 0 && summaries[0].LinesRemoved == 0 {
		t.Fatalf("expected non-zero line stats from the diff engine, got %+v", summaries[0])
	}
}

func TestResolveTarget_RejectsDotDotEscape(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, false)
	_, err := e.resolveTarget("../outside.txt")
	if err == nil {
		t.Fatal("expected rejection of .. path")
	}
}

func TestApply_WritesFileAndBackup(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(target, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	diffText := buildDiffText(t, "notes.txt", "hello\n", "hello world\n")
	targets, err := ParseDiffs(diffText)
	if err != nil {
		t.Fatalf("ParseDiffs: %v", err)
	}

	e := New(dir, false)
	records, err := e.Apply(targets)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(records) != 1 || !records[0].Succeeded {
		t.Fatalf("expected successful apply record, got %+v", records)
	}

	if _, err := os.Stat(target + ".bak"); err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(got) != "hello world\n" {
		t.Fatalf("got %q, want %q", got, "hello world\n")
	}
}

func TestApply_StopsAtFirstFailureButKeepsPriorWrites(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "ok.txt")
	if err := os.WriteFile(ok, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	targets := []Target{
		{Path: "ok.txt", HunkText: mustHunk(t, "hello\n", "hello world\n")},
		{Path: "../escape.txt", HunkText: mustHunk(t, "a\n", "b\n")},
	}

	e := New(dir, false)
	records, err := e.Apply(targets)
	if err == nil {
		t.Fatal("expected error from escaping path")
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records (1 success + 1 failure), got %d", len(records))
	}
	if !records[0].Succeeded {
		t.Fatalf("expected first target to have succeeded before the failure: %+v", records[0])
	}
	if records[1].Succeeded {
		t.Fatal("expected second target to have failed")
	}

	got, err := os.ReadFile(ok)
	if err != nil {
		t.Fatalf("read ok.txt: %v", err)
	}
	if string(got) != "hello world\n" {
		t.Fatalf("successful write should persist despite later failure: got %q", got)
	}
}

func mustHunk(t *testing.T, oldContent, newContent string) string {
	t.Helper()
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldContent, newContent, false)
	patches := dmp.PatchMake(oldContent, diffs)
	return dmp.PatchToText(patches)
}

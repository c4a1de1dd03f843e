package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EffortlessMetrics/xchecker/internal/config"
	"github.com/EffortlessMetrics/xchecker/internal/llm"
	"github.com/EffortlessMetrics/xchecker/internal/packet"
	"github.com/EffortlessMetrics/xchecker/internal/phase"
	"github.com/EffortlessMetrics/xchecker/internal/receipt"
	"github.com/EffortlessMetrics/xchecker/internal/redact"
)

func canned(md string) llm.Result { return llm.Result{RawText: md, Provider: "stub"} }

func newTestDriver(t *testing.T, responses map[string]llm.Result) (*Driver, string) {
	t.Helper()
	root := t.TempDir()
	r, err := redact.New(nil, nil)
	require.NoError(t, err)
	builder := packet.New(root, packet.Budget{MaxBytes: 1 << 20, MaxLines: 10000}, r)

	stub := llm.NewStub()
	for k, v := range responses {
		stub.Responses[k] = v
	}

	cfg := config.DefaultConfig()
	d := New(root, "spec-1", "shorten urls", cfg, stub, builder)
	return d, root
}

func docWithCore(title, core string) string {
	return "# " + title + "\n\nbody text\n\n```yaml-core\n" + core + "\n```\n"
}

func TestRun_HappyPathCompletesThroughFinalSkippingFixup(t *testing.T) {
	d, root := newTestDriver(t, map[string]llm.Result{
		"requirements": canned(docWithCore("Requirements", "goals:\n  - shorten urls")),
		"design":       canned(docWithCore("Design", "components:\n  - api")),
		"tasks":        canned(docWithCore("Tasks", "tasks:\n  - build api")),
		"review":       canned(docWithCore("Review", "status: ok")),
		"final":        canned(docWithCore("Final", "status: final")),
	})

	run := d.Run(context.Background(), phase.Requirements)
	assert.Equal(t, ExitSuccess, run.ExitCode, run.Reason)

	for _, name := range []string{"requirements", "design", "tasks", "review", "final"} {
		matches, _ := filepath.Glob(filepath.Join(root, "artifacts", "*-"+name+".md"))
		assert.Lenf(t, matches, 1, "expected promoted .md artifact for %s", name)
	}
	_, err := os.Stat(filepath.Join(root, ".lock"))
	assert.True(t, os.IsNotExist(err), "lock should be released after a successful run")
}

func TestRun_MissingYAMLCoreFenceIsBackendFailure(t *testing.T) {
	d, _ := newTestDriver(t, map[string]llm.Result{
		"requirements": canned("# Requirements\n\nno fenced block\n"),
	})

	run := d.Run(context.Background(), phase.Requirements)
	assert.Equal(t, ExitBackendFailure, run.ExitCode)
}

func TestRun_LockHeldWhenAlreadyAcquired(t *testing.T) {
	d, root := newTestDriver(t, map[string]llm.Result{
		"requirements": canned(docWithCore("Requirements", "goals:\n  - shorten urls")),
	})
	require.NoError(t, os.MkdirAll(root, 0o755))
	hostname, _ := os.Hostname()
	lockBody := fmt.Sprintf(`{"pid":%d,"host":%q,"started_at":%q}`, os.Getpid(), hostname, time.Now().UTC().Format(time.RFC3339))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".lock"), []byte(lockBody), 0o644))

	run := d.Run(context.Background(), phase.Requirements)
	assert.Equal(t, ExitLockHeld, run.ExitCode)
}

func TestRun_ResumeAfterSuccessRerunsFinalWithoutMutatingEarlierPhases(t *testing.T) {
	d, root := newTestDriver(t, map[string]llm.Result{
		"requirements": canned(docWithCore("Requirements", "goals:\n  - shorten urls")),
		"design":       canned(docWithCore("Design", "components:\n  - api")),
		"tasks":        canned(docWithCore("Tasks", "tasks:\n  - build api")),
		"review":       canned(docWithCore("Review", "status: ok")),
		"final":        canned(docWithCore("Final", "status: final")),
	})

	run := d.Run(context.Background(), phase.Requirements)
	require.Equal(t, ExitSuccess, run.ExitCode, run.Reason)

	before, err := filepath.Glob(filepath.Join(root, "artifacts", "*-requirements.md"))
	require.NoError(t, err)
	require.Len(t, before, 1)
	beforeBytes, err := os.ReadFile(before[0])
	require.NoError(t, err)

	run = d.Run(context.Background(), phase.Final)
	assert.Equal(t, ExitSuccess, run.ExitCode, run.Reason)
	assert.NotEmpty(t, run.ReceiptPath, "resume --phase final must still emit a new receipt")

	after, err := os.ReadFile(before[0])
	require.NoError(t, err)
	assert.Equal(t, beforeBytes, after, "resuming at final must not mutate earlier phase artifacts")
}

func TestDetermineStartPhase_SkipsFixupWhenReviewHadNoPlan(t *testing.T) {
	history := map[phase.ID]*receipt.Receipt{
		phase.Requirements: {Phase: "requirements", ExitCode: 0},
		phase.Design:       {Phase: "design", ExitCode: 0},
		phase.Tasks:        {Phase: "tasks", ExitCode: 0},
		phase.Review:       {Phase: "review", ExitCode: 0, Outputs: []receipt.Output{{Path: "03-review.md"}}},
	}
	assert.Equal(t, phase.Final, DetermineStartPhase(history))
}

func TestDetermineStartPhase_RunsFixupWhenReviewLeftAPlan(t *testing.T) {
	history := map[phase.ID]*receipt.Receipt{
		phase.Requirements: {Phase: "requirements", ExitCode: 0},
		phase.Design:       {Phase: "design", ExitCode: 0},
		phase.Tasks:        {Phase: "tasks", ExitCode: 0},
		phase.Review:       {Phase: "review", ExitCode: 0, Outputs: []receipt.Output{{Path: "03-review.fixups.json"}}},
	}
	assert.Equal(t, phase.Fixup, DetermineStartPhase(history))
}

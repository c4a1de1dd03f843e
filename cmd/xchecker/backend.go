package main

import (
	"fmt"
	"os"

	"github.com/EffortlessMetrics/xchecker/internal/llm"
	"github.com/EffortlessMetrics/xchecker/internal/runner"
)

// resolveBackend builds the external LLM collaborator (spec.md §1: out of
// scope, invoked as a subprocess). --backend, then XCHECKER_BACKEND_CMD
// (space separated), then a stub that refuses to answer — so a misconfigured
// run fails loudly with claude_failure instead of hanging.
func resolveBackend() llm.Backend {
	argv := backendArgv
	if len(argv) == 0 {
		if v := os.Getenv("XCHECKER_BACKEND_CMD"); v != "" {
			argv = splitFields(v)
		}
	}
	if len(argv) == 0 {
		stub := llm.NewStub()
		return stub
	}
	return llm.NewRunnerBackend(runner.New(), argv)
}

func splitFields(s string) []string {
	var out []string
	var cur []rune
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

func describeBackend() string {
	argv := backendArgv
	if len(argv) == 0 {
		if v := os.Getenv("XCHECKER_BACKEND_CMD"); v != "" {
			argv = splitFields(v)
		}
	}
	if len(argv) == 0 {
		return "stub (no --backend configured; phases will fail with claude_failure)"
	}
	return fmt.Sprintf("runner %v", argv)
}

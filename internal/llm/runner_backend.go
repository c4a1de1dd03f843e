package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EffortlessMetrics/xchecker/internal/runner"
)

// wireMessage is the JSON shape piped to the subprocess's stdin — the
// concrete wire format a CLI-subprocess LLM backend expects for
// {spec_id, phase_id, model, timeout, messages, metadata} (spec.md §6).
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireInvocation struct {
	SpecID   string            `json:"spec_id"`
	PhaseID  string            `json:"phase_id"`
	Model    string            `json:"model"`
	Timeout  int               `json:"timeout"`
	Messages []wireMessage     `json:"messages"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RunnerBackend adapts internal/runner's subprocess execution contract
// into a Backend: it pipes the invocation as JSON on stdin, expects the
// subprocess to emit a single trailing NDJSON frame on stdout (spec.md
// §4.5's last-frame convention), and maps that frame onto Result.
type RunnerBackend struct {
	Runner     *runner.Runner
	Argv       []string // e.g. {"claude", "-p", "--output-format", "json"}
	WorkingDir string
	Mode       runner.Mode
	Distro     string
	StdoutCap  int
	StderrCap  int
	Redact     func(string) string
}

// NewRunnerBackend constructs a RunnerBackend invoking argv per call.
func NewRunnerBackend(r *runner.Runner, argv []string) *RunnerBackend {
	return &RunnerBackend{Runner: r, Argv: argv}
}

func (b *RunnerBackend) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	messages := make([]wireMessage, 0, len(inv.Messages))
	for _, m := range inv.Messages {
		messages = append(messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	payload, err := json.Marshal(wireInvocation{
		SpecID:   inv.SpecID,
		PhaseID:  inv.PhaseID,
		Model:    inv.ModelIdentity,
		Timeout:  inv.Timeout,
		Messages: messages,
		Metadata: inv.ProviderHint,
	})
	if err != nil {
		return Result{}, fmt.Errorf("runner backend: marshaling invocation: %w", err)
	}

	cmd := runner.Command{
		Argv:       append([]string{}, b.Argv...),
		WorkingDir: b.WorkingDir,
		Timeout:    time.Duration(inv.Timeout) * time.Second,
		StdoutCap:  b.StdoutCap,
		StderrCap:  b.StderrCap,
		Mode:       b.Mode,
		Distro:     b.Distro,
		Stdin:      payload,
	}

	res, err := b.Runner.Execute(ctx, cmd, b.Redact)
	if err != nil {
		// Preserve the typed *runner.Error (exit-code taxonomy) for the
		// orchestrator's errors.As dispatch; don't wrap it away.
		return Result{}, err
	}

	return resultFromRunner(res), nil
}

func resultFromRunner(res runner.Result) Result {
	if res.HasNDJSONFrame {
		raw, _ := res.LastValidNDJSON["raw_response"].(string)
		provider, _ := res.LastValidNDJSON["provider"].(string)
		model, _ := res.LastValidNDJSON["model_used"].(string)
		usage := &Usage{TimedOut: res.TimedOut}
		if v, ok := res.LastValidNDJSON["tokens_input"].(float64); ok {
			usage.InputTokens = int(v)
		}
		if v, ok := res.LastValidNDJSON["tokens_output"].(float64); ok {
			usage.OutputTokens = int(v)
		}
		return Result{RawText: raw, Provider: provider, ResolvedModel: model, Usage: usage}
	}
	// Fallback: no NDJSON frame parsed, treat stdout as opaque raw text
	// (spec.md §7: "fallback from structured to text parsing happens
	// exactly once per phase, setting fallback_used=true").
	return Result{RawText: string(res.StdoutTail), Usage: &Usage{TimedOut: res.TimedOut}}
}

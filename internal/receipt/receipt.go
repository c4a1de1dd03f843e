// Package receipt implements xchecker's Receipt writer (spec.md §4.10):
// schema v1, JCS-serialized, byte-stable across re-emission.
package receipt

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/EffortlessMetrics/xchecker/internal/atomicio"
	"github.com/EffortlessMetrics/xchecker/internal/canon"
)

const SchemaVersion = "1"
const CanonicalizationBackend = "jcs-rfc8785"

// ErrorKind enumerates the receipt's optional error classification
// (spec.md §3 Receipt, §7).
type ErrorKind string

const (
	ErrorKindNone           ErrorKind = ""
	ErrorKindCLIArgs        ErrorKind = "cli_args"
	ErrorKindPacketOverflow ErrorKind = "packet_overflow"
	ErrorKindSecretDetected ErrorKind = "secret_detected"
	ErrorKindLockHeld       ErrorKind = "lock_held"
	ErrorKindPhaseTimeout   ErrorKind = "phase_timeout"
	ErrorKindBackendFailure ErrorKind = "claude_failure"
	ErrorKindUnknown        ErrorKind = "unknown"
)

// PacketFile is one evidence entry in the receipt's packet section
// (spec.md §3 Receipt.packet).
type PacketFile struct {
	Path               string `json:"path"`
	Priority           string `json:"priority"`
	BLAKE3PreRedaction string `json:"blake3_pre_redaction"`
}

// PacketEvidence is the receipt's packet section.
type PacketEvidence struct {
	Files              []PacketFile `json:"files"`
	PostRedactionHash  string       `json:"post_redaction_hash"`
}

// Output is one produced artifact recorded in the receipt (spec.md §3
// Receipt.outputs).
type Output struct {
	Path          string `json:"path"`
	BLAKE3First8  string `json:"blake3_first8"`
}

// LLMInfo is the receipt's optional llm section.
type LLMInfo struct {
	Provider        string `json:"provider,omitempty"`
	ModelUsed       string `json:"model_used,omitempty"`
	TokensInput     int    `json:"tokens_input,omitempty"`
	TokensOutput    int    `json:"tokens_output,omitempty"`
	TimedOut        bool   `json:"timed_out,omitempty"`
	TimeoutSeconds  int    `json:"timeout_seconds,omitempty"`
	BudgetExhausted bool   `json:"budget_exhausted,omitempty"`
}

// Receipt is the persisted JSON object for one phase attempt (spec.md §3).
type Receipt struct {
	SchemaVersion           string            `json:"schema_version"`
	EmittedAt               time.Time         `json:"emitted_at"`
	SpecID                  string            `json:"spec_id"`
	Phase                   string            `json:"phase"`
	XcheckerVersion         string            `json:"xchecker_version"`
	Runner                  string            `json:"runner"`
	CanonicalizationBackend string            `json:"canonicalization_backend"`
	CanonicalizationVersion string            `json:"canonicalization_version"`
	Flags                   map[string]string `json:"flags"`
	Packet                  PacketEvidence    `json:"packet"`
	Outputs                 []Output          `json:"outputs"`
	ExitCode                int               `json:"exit_code"`
	Warnings                []string          `json:"warnings"`

	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	ErrorReason   string    `json:"error_reason,omitempty"`
	StderrTail    string    `json:"stderr_tail,omitempty"`
	RunnerDistro  string    `json:"runner_distro,omitempty"`
	FallbackUsed  bool      `json:"fallback_used,omitempty"`
	LLM           *LLMInfo  `json:"llm,omitempty"`
	ExecutionStrategy string `json:"execution_strategy,omitempty"`
}

// Normalize sorts Outputs by path and Packet.Files by path so JCS
// re-emission is byte-identical (spec.md §3's "arrays are pre-sorted by
// the specified keys").
func (r *Receipt) Normalize() {
	sort.Slice(r.Outputs, func(i, j int) bool { return r.Outputs[i].Path < r.Outputs[j].Path })
	sort.Slice(r.Packet.Files, func(i, j int) bool { return r.Packet.Files[i].Path < r.Packet.Files[j].Path })
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
}

// Validate enforces spec.md §3's "No receipt with exit_code=0 contains
// error_kind" invariant.
func (r *Receipt) Validate() error {
	if r.ExitCode == 0 && r.ErrorKind != ErrorKindNone {
		return fmt.Errorf("receipt invariant violated: exit_code=0 with error_kind=%q", r.ErrorKind)
	}
	return nil
}

// Marshal canonicalizes the receipt to JCS bytes (spec.md §4.10).
func Marshal(r *Receipt) ([]byte, error) {
	r.Normalize()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return canon.JCSMarshal(r)
}

// Write canonicalizes and atomically writes the receipt to
// <specRoot>/receipts/<phase>-<iso8601>.json, returning the path written.
func Write(specRoot string, r *Receipt) (string, error) {
	data, err := Marshal(r)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s.json", r.Phase, r.EmittedAt.UTC().Format("20060102T150405Z"))
	path := filepath.Join(specRoot, "receipts", name)
	if err := atomicio.Write(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Hash computes the outputs[].blake3_first8 value for an artifact's
// canonical bytes (spec.md §3's outputs invariant).
func Hash(canonicalBytes []byte) string {
	return canon.HashBytes(canonicalBytes).First8
}

// Package llm defines xchecker's LLM Backend contract (spec.md §3
// LlmInvocation/LlmResult, §6): the external collaborator interface the
// orchestrator invokes through the Runner. Concrete providers are
// out-of-scope external collaborators referenced by contract only
// (spec.md §1); this package also supplies a deterministic stub backend
// used by the scenario tests in spec.md §8.
package llm

import "context"

// Role is a message's speaker, per spec.md §3 LlmInvocation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one ordered entry in an invocation (spec.md §3).
type Message struct {
	Role    Role
	Content string
}

// Invocation is the Backend's input contract (spec.md §3 LlmInvocation).
type Invocation struct {
	SpecID        string
	PhaseID       string
	ModelIdentity string
	Timeout       int // seconds
	Messages      []Message
	ProviderHint  map[string]string
}

// Usage mirrors the teacher's UsageMetadata shape (internal/types,
// LLMClient contract), narrowed to the fields spec.md §3 LlmResult names.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TimedOut     bool
}

// Result is the Backend's output contract (spec.md §3 LlmResult).
type Result struct {
	RawText      string
	Provider     string
	ResolvedModel string
	Usage        *Usage // nil if the backend does not report usage
	Extensions   map[string]string
}

// Backend is the opaque external-collaborator contract a concrete LLM
// provider satisfies. xchecker's own code never imports a provider SDK
// directly — only this interface, invoked through internal/runner.
type Backend interface {
	Invoke(ctx context.Context, inv Invocation) (Result, error)
}

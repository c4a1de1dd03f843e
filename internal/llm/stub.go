package llm

import (
	"context"
	"fmt"
)

// StubBackend is a deterministic in-process Backend used by scenario
// tests (spec.md §8 S1-S6): given the same phase ID, it always returns
// the same canned Result, and never makes an external call.
type StubBackend struct {
	Responses map[string]Result // keyed by PhaseID
	Sleep     func(ctx context.Context, phaseID string) error
}

// NewStub constructs a StubBackend with no canned responses; callers set
// Responses before invoking.
func NewStub() *StubBackend {
	return &StubBackend{Responses: make(map[string]Result)}
}

// Invoke returns the canned Result for inv.PhaseID, or an error if none
// was registered. If Sleep is set, it is called first — used by tests to
// simulate a slow backend exercising phase_timeout handling (spec.md §8 S4).
func (s *StubBackend) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	if s.Sleep != nil {
		if err := s.Sleep(ctx, inv.PhaseID); err != nil {
			return Result{}, err
		}
	}
	res, ok := s.Responses[inv.PhaseID]
	if !ok {
		return Result{}, fmt.Errorf("stub backend: no canned response for phase %q", inv.PhaseID)
	}
	return res, nil
}

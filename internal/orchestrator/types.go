// Package orchestrator drives xchecker's phase pipeline end to end
// (spec.md §4.11): lock acquisition, dependency verification, packet
// build, backend invocation through the Runner, postprocess, atomic
// artifact/receipt writes, and rewind-capped control flow.
package orchestrator

import (
	"github.com/EffortlessMetrics/xchecker/internal/config"
	"github.com/EffortlessMetrics/xchecker/internal/lock"
	"github.com/EffortlessMetrics/xchecker/internal/phase"
	"github.com/EffortlessMetrics/xchecker/internal/receipt"
)

// MaxRewinds caps rewind loops per run (spec.md §4.8/§4.11, resolved as a
// package constant rather than a Config field in SPEC_FULL.md §13).
const MaxRewinds = 2

// ExitCode is xchecker's authoritative process exit taxonomy (spec.md §6).
type ExitCode int

const (
	ExitSuccess        ExitCode = 0
	ExitUnknown        ExitCode = 1
	ExitCLIArgs        ExitCode = 2
	ExitPacketOverflow ExitCode = 7
	ExitSecretDetected ExitCode = 8
	ExitLockHeld       ExitCode = 9
	ExitPhaseTimeout   ExitCode = 10
	ExitBackendFailure ExitCode = 70
)

// State is the orchestrator's run state (spec.md §4.11).
type State struct {
	SpecID      string
	Config      *config.Config
	Lock        *lock.Handle
	Current     phase.ID
	History     map[phase.ID]*receipt.Receipt // last receipt per phase
	RewindCount int
}

// Run is the terminal outcome of a driver-loop invocation.
type Run struct {
	ExitCode    ExitCode
	ReceiptPath string
	Reason      string
}

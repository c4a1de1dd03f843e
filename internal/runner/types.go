// Package runner implements xchecker's cross-platform subprocess
// execution contract (spec.md §4.5): timeout enforcement, process-tree
// termination, and NDJSON stream parsing.
package runner

import "time"

// Mode selects how the subprocess is spawned.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeNative Mode = "native"
	ModeWSL    Mode = "wsl"
)

// Command is the Runner's input contract (spec.md §4.5).
type Command struct {
	Argv       []string
	EnvAdd     map[string]string
	WorkingDir string
	Timeout    time.Duration
	StdoutCap  int
	StderrCap  int
	Stdin      []byte // piped to the subprocess if non-nil

	// Mode/Distro select native vs. WSL execution; empty Mode defaults to
	// ModeAuto.
	Mode   Mode
	Distro string
}

// Result is the Runner's output contract (spec.md §4.5).
type Result struct {
	ExitCode           int
	LastValidNDJSON    map[string]any
	HasNDJSONFrame     bool
	StdoutTail         []byte
	StderrTail         []byte // redacted before being placed here
	Duration           time.Duration
	TimedOut           bool
	RunnerUsed         string // "native" or "wsl"
	RunnerDistro       string
	FallbackUsed       bool // NDJSON parse failed; caller treats stdout as opaque text
	StdoutTotalBytes   int64
	StderrTotalBytes   int64
	StdoutTruncated    bool
	StderrTruncated    bool
}

// ErrorKind classifies a Runner-level failure onto the exit-code taxonomy
// in spec.md §7.
type ErrorKind string

const (
	ErrorKindNone           ErrorKind = ""
	ErrorKindPhaseTimeout   ErrorKind = "phase_timeout"
	ErrorKindBackendFailure ErrorKind = "claude_failure"
)

// Error wraps a Runner failure with its taxonomy classification.
type Error struct {
	Kind    ErrorKind
	Message string
	Result  Result
}

func (e *Error) Error() string { return e.Message }

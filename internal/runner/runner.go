package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/EffortlessMetrics/xchecker/internal/logging"
	"github.com/EffortlessMetrics/xchecker/internal/ring"
)

const killGrace = 5 * time.Second

// Runner executes one backend invocation per call (spec.md §4.5, §5: the
// Runner spawns exactly one external process per LLM invocation).
type Runner struct {
	log *logging.Logger
}

// New constructs a Runner.
func New() *Runner {
	return &Runner{log: logging.Get(logging.CategoryRunner)}
}

// Execute runs cmd to completion or timeout, returning the output contract
// from spec.md §4.5. stderrRedact, if non-nil, is applied to the stderr
// tail before it is placed in the result (spec.md §4.4: redact before
// persistence).
func (r *Runner) Execute(ctx context.Context, cmd Command, stderrRedact func(string) string) (Result, error) {
	mode := cmd.Mode
	if mode == "" {
		mode = ModeAuto
	}

	binary, argv, distro, resolvedMode, err := resolveCommand(mode, cmd)
	if err != nil {
		return Result{}, &Error{Kind: ErrorKindBackendFailure, Message: err.Error()}
	}

	stdoutBuf := ring.New(capOrDefault(cmd.StdoutCap, 2*1024*1024))
	stderrBuf := ring.New(capOrDefault(cmd.StderrCap, 256*1024))

	start := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, cmd.Timeout)
	defer cancel()

	// For WSL, the guest-side cwd is set via wslArgv's --cd; the host-side
	// exec.Cmd.Dir would apply to wsl.exe itself, which is meaningless here.
	workDir := cmd.WorkingDir
	if resolvedMode == "wsl" {
		workDir = ""
	}

	execCmd := exec.CommandContext(execCtx, binary, argv...)
	execCmd.Dir = workDir
	execCmd.Env = buildEnv(cmd.EnvAdd)
	if cmd.Stdin != nil {
		execCmd.Stdin = bytes.NewReader(cmd.Stdin)
	}
	pg := newProcessGroup(execCmd)

	stdoutPipe, err := execCmd.StdoutPipe()
	if err != nil {
		return Result{}, &Error{Kind: ErrorKindBackendFailure, Message: fmt.Sprintf("stdout pipe: %v", err)}
	}
	stderrPipe, err := execCmd.StderrPipe()
	if err != nil {
		return Result{}, &Error{Kind: ErrorKindBackendFailure, Message: fmt.Sprintf("stderr pipe: %v", err)}
	}

	if err := execCmd.Start(); err != nil {
		return Result{}, &Error{Kind: ErrorKindBackendFailure, Message: fmt.Sprintf("spawn: %v", err)}
	}
	pg.afterStart(execCmd)
	defer pg.close()

	var g errgroup.Group
	g.Go(func() error { _, err := io.Copy(stdoutBuf, stdoutPipe); return err })
	g.Go(func() error { _, err := io.Copy(stderrBuf, stderrPipe); return err })
	drainErr := g.Wait()

	waitErr := execCmd.Wait()
	duration := time.Since(start)

	timedOut := execCtx.Err() == context.DeadlineExceeded
	if timedOut {
		r.log.Warn("phase timed out after %s, killing process tree", duration)
		if killErr := pg.kill(execCmd); killErr != nil {
			r.log.Error("failed to kill process tree: %v", killErr)
		}
	}

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if !timedOut {
			exitCode = -1
		}
	}

	stderrTail := stderrBuf.Tail(2048)
	stderrTailStr := string(stderrTail)
	if stderrRedact != nil {
		stderrTailStr = stderrRedact(stderrTailStr)
	}

	res := Result{
		ExitCode:         exitCode,
		StdoutTail:       stdoutBuf.Tail(2048),
		StderrTail:       []byte(stderrTailStr),
		Duration:         duration,
		TimedOut:         timedOut,
		RunnerUsed:       resolvedMode,
		RunnerDistro:     distro,
		StdoutTotalBytes: stdoutBuf.TotalWritten(),
		StderrTotalBytes: stderrBuf.TotalWritten(),
		StdoutTruncated:  stdoutBuf.Truncated(),
		StderrTruncated:  stderrBuf.Truncated(),
	}

	if frame, ok := ParseLastFrame(stdoutBuf.Bytes()); ok {
		res.LastValidNDJSON = frame
		res.HasNDJSONFrame = true
	} else {
		res.FallbackUsed = true
	}

	if timedOut {
		return res, &Error{Kind: ErrorKindPhaseTimeout, Message: fmt.Sprintf("phase timed out after %s", cmd.Timeout), Result: res}
	}
	if drainErr != nil {
		r.log.Warn("stream drain error (non-fatal): %v", drainErr)
	}
	if exitCode != 0 {
		return res, &Error{Kind: ErrorKindBackendFailure, Message: fmt.Sprintf("backend exited %d", exitCode), Result: res}
	}

	return res, nil
}

func capOrDefault(configured, fallback int) int {
	if configured > 0 {
		return configured
	}
	return fallback
}

// buildEnv returns an immutable view of the parent environment plus the
// command-specific additions (spec.md §5: "invoked with an immutable view
// of the parent environment; no mutation").
func buildEnv(additions map[string]string) []string {
	env := os.Environ()
	for k, v := range additions {
		env = append(env, k+"="+v)
	}
	return env
}

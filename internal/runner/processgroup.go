package runner

import "os/exec"

// processGroup abstracts process-tree lifecycle management so the Runner
// can terminate a whole subprocess tree on timeout, not just the direct
// child (spec.md §4.5, §5). newProcessGroup/afterStart/kill/close are
// implemented per-platform: POSIX uses process groups (setpgid + signal),
// Windows uses a Job Object with JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE.
type processGroup interface {
	// afterStart is called once cmd.Process is populated, for platforms
	// (Windows) that must assign the live process to a tracking handle.
	afterStart(cmd *exec.Cmd)
	// kill terminates the whole tree rooted at cmd's process.
	kill(cmd *exec.Cmd) error
	// close releases any platform handle (no-op on POSIX).
	close()
}

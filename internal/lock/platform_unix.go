//go:build !windows

package lock

import (
	"os"
	"syscall"
)

// pidAlive probes liveness with signal 0, which the kernel delivers to no
// one but still reports ESRCH if the process is gone (spec.md §4.7 step 3).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

//go:build windows

package lock

import "os"

// pidAlive on Windows opens the process handle; os.FindProcess itself
// performs an OpenProcess call and fails if the PID is gone.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}

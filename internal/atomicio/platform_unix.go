//go:build !windows

package atomicio

import (
	"errors"
	"os"
	"syscall"
)

var errCrossDevice = syscall.EXDEV

// renameWithRetry performs the POSIX rename. POSIX rename is already atomic
// and does not suffer the sharing-violation retries Windows needs, so the
// retry count is always zero here; EXDEV is surfaced for the caller's
// cross-filesystem fallback.
func renameWithRetry(tmpPath, finalPath string) (retries int, err error) {
	err = os.Rename(tmpPath, finalPath)
	if err != nil {
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
			return 0, errCrossDevice
		}
	}
	return 0, err
}

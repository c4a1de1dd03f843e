//go:build windows

package atomicio

import (
	"errors"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
)

var errCrossDevice = errors.New("cross-device rename")

// renameWithRetry uses MoveFileEx with MOVEFILE_REPLACE_EXISTING, retrying
// with bounded exponential backoff on ERROR_SHARING_VIOLATION /
// ERROR_ACCESS_DENIED (spec.md §4.2 step 3: 5-8 attempts, <=250ms total).
func renameWithRetry(tmpPath, finalPath string) (retries int, err error) {
	srcPtr, err := windows.UTF16PtrFromString(tmpPath)
	if err != nil {
		return 0, err
	}
	dstPtr, err := windows.UTF16PtrFromString(finalPath)
	if err != nil {
		return 0, err
	}

	flags := uint32(windows.MOVEFILE_REPLACE_EXISTING | windows.MOVEFILE_WRITE_THROUGH)

	for attempt := 0; ; attempt++ {
		moveErr := windows.MoveFileEx(srcPtr, dstPtr, flags)
		if moveErr == nil {
			return retries, nil
		}
		if errors.Is(moveErr, windows.ERROR_NOT_SAME_DEVICE) || errors.Is(moveErr, syscall.Errno(0x11)) {
			return retries, errCrossDevice
		}
		if attempt >= len(backoffSchedule) {
			return retries, moveErr
		}
		if !errors.Is(moveErr, windows.ERROR_SHARING_VIOLATION) && !errors.Is(moveErr, windows.ERROR_ACCESS_DENIED) {
			return retries, moveErr
		}
		time.Sleep(backoffSchedule[attempt])
		retries++
	}
}

//go:build windows

package runner

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"unsafe"
)

// Windows Job Object plumbing, adapted from the teacher's tactile
// platform_windows.go JobObject type: a job with
// JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE ensures the whole subprocess tree
// dies the moment the job handle is closed or TerminateJobObject is
// called, which is what spec.md §4.5 requires for Windows process-tree
// termination.
const (
	jobObjectExtendedLimitInformation = 9
	jobObjectLimitKillOnJobClose      = 0x00002000
	processSetQuota                   = 0x0100
	processTerminate                  = 0x0001
)

type jobObjectBasicLimitInformation struct {
	PerProcessUserTimeLimit int64
	PerJobUserTimeLimit     int64
	LimitFlags              uint32
	MinimumWorkingSetSize   uintptr
	MaximumWorkingSetSize   uintptr
	ActiveProcessLimit      uint32
	Affinity                uintptr
	PriorityClass           uint32
	SchedulingClass         uint32
}

type ioCounters struct {
	ReadOperationCount  uint64
	WriteOperationCount uint64
	OtherOperationCount uint64
	ReadTransferCount   uint64
	WriteTransferCount  uint64
	OtherTransferCount  uint64
}

type jobObjectExtendedLimitInfo struct {
	BasicLimitInformation jobObjectBasicLimitInformation
	IoInfo                ioCounters
	ProcessMemoryLimit    uintptr
	JobMemoryLimit        uintptr
	PeakProcessMemoryUsed uintptr
	PeakJobMemoryUsed     uintptr
}

var (
	kernel32                     = syscall.NewLazyDLL("kernel32.dll")
	procCreateJobObjectW         = kernel32.NewProc("CreateJobObjectW")
	procAssignProcessToJobObject = kernel32.NewProc("AssignProcessToJobObject")
	procSetInformationJobObject  = kernel32.NewProc("SetInformationJobObject")
	procTerminateJobObject       = kernel32.NewProc("TerminateJobObject")
)

type windowsProcessGroup struct {
	mu     sync.Mutex
	handle syscall.Handle
}

func newProcessGroup(cmd *exec.Cmd) processGroup {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true

	handle, _, _ := procCreateJobObjectW.Call(0, 0)
	if handle == 0 {
		return &windowsProcessGroup{}
	}

	var info jobObjectExtendedLimitInfo
	info.BasicLimitInformation.LimitFlags = jobObjectLimitKillOnJobClose
	procSetInformationJobObject.Call(
		handle,
		jobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		unsafe.Sizeof(info),
	)

	return &windowsProcessGroup{handle: syscall.Handle(handle)}
}

func (g *windowsProcessGroup) afterStart(cmd *exec.Cmd) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.handle == 0 || cmd.Process == nil {
		return
	}
	h, err := syscall.OpenProcess(processSetQuota|processTerminate, false, uint32(cmd.Process.Pid))
	if err != nil {
		return
	}
	defer syscall.CloseHandle(h)
	procAssignProcessToJobObject.Call(uintptr(g.handle), uintptr(h))
}

func (g *windowsProcessGroup) kill(cmd *exec.Cmd) error {
	g.mu.Lock()
	handle := g.handle
	g.mu.Unlock()

	if handle == 0 {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}

	ret, _, err := procTerminateJobObject.Call(uintptr(handle), 1)
	if ret == 0 {
		return fmt.Errorf("TerminateJobObject failed: %v", err)
	}
	return nil
}

func (g *windowsProcessGroup) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.handle != 0 {
		syscall.CloseHandle(g.handle)
		g.handle = 0
	}
}

package hook

import (
	"github.com/umhmon/umh/internal/config"
	"github.com/umhmon/umh/internal/sink"
)

// Process creation flags and status codes the interceptions reason about.
const (
	CreateSuspended            uint32 = 0x00000004
	ExtendedStartupInfoPresent uint32 = 0x00080000
	StatusAccessDenied         uint32 = 0xC0000022

	errorAccessDenied uint32 = 5
)

const noParentHandle = ^uintptr(0)

// ProcessInfo is what a successful process creation hands back.
type ProcessInfo struct {
	Process   uintptr
	Thread    uintptr
	ProcessID uint32
	ThreadID  uint32
}

// CreateRequest describes a process creation caught at the kernel32 entry
// point.
type CreateRequest struct {
	Application string
	CommandLine string
	Flags       uint32
	// Extended is set when the startup info is the extended form.
	Extended bool
	// ParentHandle is the explicit parent from the attribute list, nil when
	// none was given.
	ParentHandle *uintptr
	StackPivoted bool
}

// CreateProcess intercepts a process creation. The child is always created
// suspended so the controller can attach before it runs; its main thread
// is resumed here unless the caller asked for suspension itself.
func (rt *Runtime) CreateProcess(req CreateRequest, original func(flags uint32) (ProcessInfo, bool)) (ProcessInfo, bool) {
	var pi ProcessInfo
	ok := Invoke(rt, Call[bool]{
		API:      "CreateProcessInternalW",
		Category: "process",
		Decide: func(*Guard, *config.Policy) Decision {
			return Modify
		},
		Modified: func() bool {
			var created bool
			pi, created = original(req.Flags | CreateSuspended)
			return created
		},
		After: func(_ *Guard, _ *config.Policy, created bool) {
			if !created {
				return
			}
			rt.childCreated(req, pi)
		},
		Record: func(bool) (string, []sink.Arg) {
			args := []sink.Arg{
				sink.A("ApplicationName", req.Application),
				sink.A("CommandLine", req.CommandLine),
				sink.A("CreationFlags", req.Flags),
				sink.A("ProcessId", pi.ProcessID),
				sink.A("ThreadId", pi.ThreadID),
			}
			sig := "uuhiipps"
			if req.Flags&ExtendedStartupInfoPresent != 0 && req.Extended {
				parent := noParentHandle
				if req.ParentHandle != nil {
					parent = *req.ParentHandle
				}
				args = append(args, sink.A("ParentHandle", parent))
				sig = "uuhiippps"
			}
			args = append(args,
				sink.A("ProcessHandle", pi.Process),
				sink.A("ThreadHandle", pi.Thread),
				sink.A("StackPivoted", yesNo(req.StackPivoted)),
			)
			return sig, args
		},
		Outcome: Bool,
	})
	return pi, ok
}

func (rt *Runtime) childCreated(req CreateRequest, pi ProcessInfo) {
	if rt.handler != nil {
		rt.handler.ChildCreated(req.Application, req.CommandLine, pi)
	}
	if rt.notifier != nil {
		rt.notifier.NotifyProcess(pi.ProcessID, pi.ThreadID)
	}
	if req.Flags&CreateSuspended == 0 {
		if err := rt.resumeThread(pi.Thread); err != nil {
			rt.logger.Warn("hook: resume child thread", "pid", pi.ProcessID, "tid", pi.ThreadID, "error", err)
		}
	}
	rt.DisableSleepSkip()
}

// OpenProcess intercepts a process open. Opens of protected processes are
// refused with STATUS_ACCESS_DENIED without reaching the original.
func (rt *Runtime) OpenProcess(pid, access uint32, original func() (handle uintptr, status uint32)) (uintptr, uint32) {
	var handle uintptr
	status := Invoke(rt, Call[uint32]{
		API:      "NtOpenProcess",
		Category: "process",
		Decide: func(*Guard, *config.Policy) Decision {
			if rt.protected.Contains(pid) {
				return Suppress
			}
			return PassThrough
		},
		Original: func() uint32 {
			var status uint32
			handle, status = original()
			return status
		},
		Suppressed: func() (uint32, uint32) {
			rt.logger.Debug("hook: refused open of protected process", "pid", pid)
			return StatusAccessDenied, errorAccessDenied
		},
		Record: func(uint32) (string, []sink.Arg) {
			return "Phi", []sink.Arg{
				sink.A("ProcessHandle", handle),
				sink.A("DesiredAccess", access),
				sink.A("ProcessIdentifier", pid),
			}
		},
		Outcome: NTStatus,
	})
	return handle, status
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

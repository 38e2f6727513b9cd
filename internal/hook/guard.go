package hook

import (
	"runtime"

	platform "github.com/umhmon/umh/internal/platform/windows"
)

// Guard preserves the caller-visible state of one interception: the thread
// last-error value and the thread's interception context. Enter it first
// thing in an interception body and defer Leave.
type Guard struct {
	rt      *Runtime
	api     string
	tid     uint32
	info    *Info
	prev    Info
	nested  bool
	lastErr uint32
	quiet   bool
	left    bool
}

// Enter starts an interception of api on the calling thread.
func (rt *Runtime) Enter(api string) *Guard {
	runtime.LockOSThread()
	g := &Guard{
		rt:      rt,
		api:     api,
		lastErr: rt.lastError(),
		tid:     rt.threadID(),
	}
	g.info = rt.info.get(g.tid)
	g.prev = *g.info
	g.nested = g.info.Depth > 0
	g.info.Parent = g.info.API
	g.info.API = api
	g.info.Depth++
	return g
}

// CalledByHook reports whether this interception was entered from inside
// another one on the same thread.
func (g *Guard) CalledByHook() bool { return g.nested }

// Quiet marks the interception as not recorded.
func (g *Guard) Quiet() { g.quiet = true }

// ThreadID returns the OS thread the interception runs on.
func (g *Guard) ThreadID() uint32 { return g.tid }

// LastError returns the last-error value the caller will observe.
func (g *Guard) LastError() uint32 { return g.lastErr }

// Call runs the original implementation. The caller's last-error value is
// put back first so the original sees exactly what the caller left; the
// interception context is restored verbatim afterwards and the original's
// last-error value becomes the one returned to the caller.
func (g *Guard) Call(original func()) {
	saved := *g.info
	g.rt.setLastError(g.lastErr)
	original()
	g.lastErr = g.rt.lastError()
	*g.info = saved
}

// Leave restores the caller's last-error value and pops the interception.
// Calling it twice is harmless.
func (g *Guard) Leave() {
	if g.left {
		return
	}
	g.left = true
	*g.info = g.prev
	g.rt.setLastError(g.lastErr)
	runtime.UnlockOSThread()
}

func defaultLastError() uint32     { return platform.LastError() }
func defaultSetLastError(c uint32) { platform.SetLastError(c) }

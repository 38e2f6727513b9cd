package signal

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	platform "github.com/umhmon/umh/internal/platform/windows"
)

// DialFunc opens a connection to the controller pipe.
type DialFunc func(name string, timeout time.Duration) (net.Conn, error)

// PipeEmitter writes each message over a fresh connection to the controller
// pipe. Failures are logged and dropped.
type PipeEmitter struct {
	Name    string
	PID     uint32
	Timeout time.Duration
	Dial    DialFunc
	Logger  *slog.Logger

	mu      sync.Mutex
	dropped int
}

// NewPipeEmitter creates an emitter for the named pipe. An empty name makes
// every message a logged no-op, which is what standalone mode wants.
func NewPipeEmitter(name string, pid uint32, logger *slog.Logger) *PipeEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipeEmitter{
		Name:    name,
		PID:     pid,
		Timeout: 2 * time.Second,
		Dial:    platform.DialNamedPipe,
		Logger:  logger,
	}
}

// Pipe sends msg to the controller.
func (e *PipeEmitter) Pipe(msg string) {
	if err := e.send(msg); err != nil {
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		e.Logger.Debug("signal: pipe message dropped", "message", msg, "error", err)
	}
}

func (e *PipeEmitter) send(msg string) error {
	if e.Name == "" {
		return ErrNoPipe
	}
	dial := e.Dial
	if dial == nil {
		dial = platform.DialNamedPipe
	}
	conn, err := dial(e.Name, e.Timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", e.Name, err)
	}
	defer conn.Close()
	if e.Timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(e.Timeout))
	}
	if _, err := conn.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write %s: %w", e.Name, err)
	}
	return nil
}

// Dropped returns how many messages could not be delivered.
func (e *PipeEmitter) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// NotifyReady tells the controller that hooks are installed for this process.
func (e *PipeEmitter) NotifyReady() {
	e.Pipe(ReadyMessage(e.PID))
}

// NotifyProcess tells the controller about a child created suspended so it
// can inject before the child runs.
func (e *PipeEmitter) NotifyProcess(pid, tid uint32) {
	e.Pipe(ProcessMessage(pid, tid))
}

// ReadyMessage is the token announcing a successful load.
func ReadyMessage(pid uint32) string {
	return fmt.Sprintf("LOADED:%d", pid)
}

// ProcessMessage is the token announcing a new child process.
func ProcessMessage(pid, tid uint32) string {
	return fmt.Sprintf("PROCESS:%d,%d", pid, tid)
}

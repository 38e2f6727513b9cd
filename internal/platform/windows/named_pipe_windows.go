//go:build windows

package windows

import (
	"net"
	"time"

	winio "github.com/Microsoft/go-winio"
)

// ListenNamedPipe creates a message-mode pipe listener used by the controller side.
func ListenNamedPipe(pipeName string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: PipeSecuritySDDL(),
		MessageMode:        true,
		InputBufferSize:    4096,
		OutputBufferSize:   4096,
	}
	return winio.ListenPipe(PipePath(pipeName), cfg)
}

// DialNamedPipe connects to an existing named pipe.
func DialNamedPipe(pipeName string, timeout time.Duration) (net.Conn, error) {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return winio.DialPipe(PipePath(pipeName), &timeout)
}

//go:build !windows

package windows

import (
	"fmt"
	"net"
	"time"
)

// ListenNamedPipe is only available on Windows.
func ListenNamedPipe(pipeName string) (net.Listener, error) {
	return nil, fmt.Errorf("listen %s: %w", PipePath(pipeName), ErrUnsupported)
}

// DialNamedPipe is only available on Windows.
func DialNamedPipe(pipeName string, _ time.Duration) (net.Conn, error) {
	return nil, fmt.Errorf("dial %s: %w", PipePath(pipeName), ErrUnsupported)
}

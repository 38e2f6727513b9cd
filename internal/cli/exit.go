package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/umhmon/umh/internal/config"
	platform "github.com/umhmon/umh/internal/platform/windows"
	"github.com/umhmon/umh/internal/sink/otel"
)

// Exit codes reported by umhctl.
const (
	ExitFailure     = 1
	ExitUsage       = 2
	ExitBadConfig   = 3
	ExitNoConfig    = 4
	ExitUnsupported = 5
)

// ExitError carries an explicit exit code and an optional message.
type ExitError struct {
	code    int
	message string
}

func exitf(code int, format string, args ...any) *ExitError {
	return &ExitError{code: code, message: fmt.Sprintf(format, args...)}
}

func (e *ExitError) Error() string {
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("exit %d", e.code)
}

func (e *ExitError) Code() int { return e.code }

// ExitCode maps a command error to the process exit code: rejected
// configuration lines and bad endpoints are ExitBadConfig, a missing file
// is ExitNoConfig, and Windows-only capabilities elsewhere are
// ExitUnsupported.
func ExitCode(err error) int {
	var ee *ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, config.ErrUnknownKey),
		errors.Is(err, config.ErrInvalidNumber),
		errors.Is(err, config.ErrListFull),
		errors.Is(err, config.ErrDuplicateAddress),
		errors.Is(err, config.ErrModuleNotFound),
		errors.Is(err, config.ErrSymbolNotFound),
		errors.Is(err, otel.ErrBadEndpoint):
		return ExitBadConfig
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, config.ErrNoConfig):
		return ExitNoConfig
	case errors.Is(err, platform.ErrUnsupported):
		return ExitUnsupported
	}
	return ExitFailure
}

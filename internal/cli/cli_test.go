package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umhmon/umh/internal/config"
	platform "github.com/umhmon/umh/internal/platform/windows"
	"github.com/umhmon/umh/internal/sink/otel"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRoot("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParsePrintsPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1234.ini")
	require.NoError(t, os.WriteFile(path, []byte("pipe=umhpipe\nprocdump=1\n"), 0o644))

	out, err := runRoot(t, "parse", path, "--pid", "1234")
	require.NoError(t, err)
	assert.Contains(t, out, "pipe: umhpipe")
}

func TestParseJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.ini")
	require.NoError(t, os.WriteFile(path, []byte("pipe=umhpipe\n"), 0o644))

	out, err := runRoot(t, "parse", path, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"umhpipe"`)
}

func TestParseMissingFile(t *testing.T) {
	_, err := runRoot(t, "parse", filepath.Join(t.TempDir(), "absent.ini"))
	require.Error(t, err)
	assert.Equal(t, ExitNoConfig, ExitCode(err))
}

func TestParseStrict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.ini")
	require.NoError(t, os.WriteFile(path, []byte("pipe=umhpipe\nbogus-key=1\ndepth=deep\n"), 0o644))

	out, err := runRoot(t, "parse", path)
	require.NoError(t, err)
	assert.Contains(t, out, "pipe: umhpipe")

	out, err = runRoot(t, "parse", "--strict", path)
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Contains(t, err.Error(), "2 line(s) rejected")
	assert.ErrorIs(t, err, config.ErrUnknownKey)
	assert.ErrorIs(t, err, config.ErrInvalidNumber)
	assert.Equal(t, ExitBadConfig, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"explicit", exitf(ExitUsage, "bad flag"), ExitUsage},
		{"wrapped explicit", fmt.Errorf("run: %w", exitf(7, "")), 7},
		{"list full", fmt.Errorf("action: %w", config.ErrListFull), ExitBadConfig},
		{"duplicate", config.ErrDuplicateAddress, ExitBadConfig},
		{"endpoint", otel.ErrBadEndpoint, ExitBadConfig},
		{"missing file", fmt.Errorf("open: %w", fs.ErrNotExist), ExitNoConfig},
		{"not windows", fmt.Errorf("listen x: %w", platform.ErrUnsupported), ExitUnsupported},
		{"other", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestListenUnsupportedOffWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("named pipes are available")
	}
	_, err := runRoot(t, "listen", "umhpipe")
	assert.Equal(t, ExitUnsupported, ExitCode(err))
}

func TestParseBadOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.ini")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := runRoot(t, "parse", path, "-o", "xml")
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitUsage, ee.Code())
}

func TestKeysListsTable(t *testing.T) {
	out, err := runRoot(t, "keys")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "file-of-interest")
	assert.Contains(t, out, "pipe")
}

func TestClassifyDescribedProcess(t *testing.T) {
	out, err := runRoot(t, "classify", "--image", `C:\Program Files\Internet Explorer\iexplore.exe`)
	require.NoError(t, err)
	assert.Contains(t, out, "iexplore")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runRoot(t, "--log-level", "loud", "classify", "--image", `C:\a.exe`)
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ExitUsage, ee.Code())
}

func TestServeMessages(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	done := make(chan error, 1)
	go func() { done <- serveMessages(ctx, ln, &out, logger, 3) }()

	for _, msg := range []string{"LOADED:42", "bogus", "PROCESS:10,11", "SHELL:"} {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		_, err = conn.Write([]byte(msg))
		require.NoError(t, err)
		require.NoError(t, conn.Close())
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("serveMessages did not return")
	}
	assert.Equal(t, "LOADED pid=42\nPROCESS pid=10 tid=11\nCATEGORY SHELL\n", out.String())
}

func TestServeMessagesStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveMessages(ctx, ln, io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)), 0) }()
	cancel()

	select {
	case err := <-done:
		assert.False(t, errors.Is(err, net.ErrClosed))
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serveMessages did not stop")
	}
}

func TestRunDryAttach(t *testing.T) {
	agentDir := t.TempDir()
	results := filepath.Join(t.TempDir(), "results")
	cfg := "pipe=umhpipe\nresults=" + results + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(agentDir, "config.ini"), []byte(cfg), 0o644))

	out, err := runRoot(t, "run", "--agent-dir", agentDir, "--pid", "77",
		"--image", `C:\Program Files\Internet Explorer\iexplore.exe`,
		"--export-exclude-api", "Nt*", "-o", "json")
	require.NoError(t, err)

	var got runSummary
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Configured)
	assert.False(t, got.Standalone)
	assert.Equal(t, `\\.\pipe\umhpipe`, got.Pipe)
	assert.Equal(t, results, got.Results)
	assert.Zero(t, got.Hooks)
	assert.Equal(t, []string{"iexplore"}, got.Profiles)
	assert.Equal(t, 1, got.Signals, "ready message withheld without --signal")

	_, err = os.Stat(filepath.Join(results, "logs", "77.jsonl"))
	assert.NoError(t, err)
}

func TestRunStandalone(t *testing.T) {
	out, err := runRoot(t, "run", "--agent-dir", t.TempDir(), "--pid", "78", "--image", `C:\Temp\x.exe`)
	require.NoError(t, err)
	assert.Contains(t, out, "configured: false")
	assert.Contains(t, out, "standalone: true")
}

package windows

import (
	"errors"
	"runtime"
	"strings"
	"testing"
)

func TestPipePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"CAPE_PIPE", `\\.\pipe\CAPE_PIPE`},
		{`\\.\pipe\already`, `\\.\pipe\already`},
		{`\\.\PIPE\upper`, `\\.\PIPE\upper`},
	}
	for _, tt := range tests {
		if got := PipePath(tt.in); got != tt.want {
			t.Errorf("PipePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPipeSecuritySDDL(t *testing.T) {
	sddl := PipeSecuritySDDL()
	for _, sid := range []string{"SY", "BA", "AU"} {
		if !strings.Contains(sddl, sid) {
			t.Errorf("SDDL should contain %s", sid)
		}
	}
}

func TestListenNamedPipeStub(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping stub test on Windows")
	}
	_, err := ListenNamedPipe("test")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("ListenNamedPipe error = %v, want ErrUnsupported", err)
	}
}

func TestDialNamedPipeStub(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping stub test on Windows")
	}
	_, err := DialNamedPipe("test", 0)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("DialNamedPipe error = %v, want ErrUnsupported", err)
	}
}

package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// maxLineLength bounds a single configuration line.
const maxLineLength = 32 * 1024

// DefaultFallbackRoot is the legacy location of per-process files.
const DefaultFallbackRoot = `C:\`

// Profiler applies process-family overrides to a freshly parsed policy and
// returns the name of the profile applied, or "" if none matched.
type Profiler interface {
	ApplyProfile(p *Policy) string
}

// ImageInspector reports whether the main image was remapped after load.
type ImageInspector interface {
	ImageBaseRemapped() bool
}

// Loader locates, reads and post-processes the per-run configuration.
type Loader struct {
	// AgentDir is the directory holding the monitor module.
	AgentDir string
	// PID is the current process id used to name per-process files.
	PID uint32
	// FallbackRoot is searched for <pid>.ini after AgentDir. Defaults to
	// DefaultFallbackRoot.
	FallbackRoot string
	// ProcessName is the base name of the running image.
	ProcessName string

	Parser    *Parser
	Profiler  Profiler
	Inspector ImageInspector
	Logger    *slog.Logger

	// Override runs after the last line is parsed and before
	// post-processing.
	Override func(*Policy)

	// Open opens a candidate file. Defaults to os.Open.
	Open func(name string) (io.ReadCloser, error)
}

// Candidates returns the configuration files searched, in order.
func (l *Loader) Candidates() []string {
	root := l.FallbackRoot
	if root == "" {
		root = DefaultFallbackRoot
	}
	pidFile := strconv.FormatUint(uint64(l.PID), 10) + ".ini"
	return []string{
		filepath.Join(l.AgentDir, pidFile),
		joinRoot(root, pidFile),
		filepath.Join(l.AgentDir, "config.ini"),
	}
}

// Load builds a policy from defaults, the first candidate file that opens,
// post-processing and the identity profile. The boolean is false when no
// file was found; the returned policy then holds defaults with Standalone set.
func (l *Loader) Load() (*Policy, bool) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parser := l.Parser
	if parser == nil {
		parser = NewParser(WithLogger(logger))
	}

	pol := Defaults()
	pol.Analyzer = NewPathString(l.AgentDir)

	name, err := l.parseFirst(parser, pol)
	found := err == nil
	switch {
	case errors.Is(err, ErrNoConfig):
		pol.Standalone = true
		logger.Info("config: no configuration file, running standalone", "searched", l.Candidates())
	case err != nil:
		logger.Warn("config: read failed", "file", name, "error", err)
	default:
		logger.Debug("config: loaded", "file", name)
	}

	if l.Override != nil {
		l.Override(pol)
	}
	postProcess(pol)

	pol.ImageBaseRemapped = l.Inspector != nil && l.Inspector.ImageBaseRemapped()
	if strings.EqualFold(l.ProcessName, "explorer.exe") && pol.Interactive == 1 {
		pol.MinHook = true
		logger.Debug("config: interactive desktop, injecting shell")
	} else {
		pol.Interactive = 0
	}
	if l.Profiler != nil {
		if profile := l.Profiler.ApplyProfile(pol); profile != "" {
			logger.Debug("config: profile applied", "profile", profile)
		}
	}
	return pol, found
}

// parseFirst parses the first candidate that opens. A read error after
// some lines were applied keeps those lines.
func (l *Loader) parseFirst(parser *Parser, pol *Policy) (string, error) {
	open := l.Open
	if open == nil {
		open = func(name string) (io.ReadCloser, error) { return os.Open(name) }
	}
	for _, name := range l.Candidates() {
		f, err := open(name)
		if err != nil {
			continue
		}
		defer f.Close()
		return name, ParseAll(parser, pol, f)
	}
	return "", ErrNoConfig
}

// ParseAll applies every line of r to pol in order.
func ParseAll(parser *Parser, pol *Policy, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineLength)
	for sc.Scan() {
		parser.ParseLine(pol, strings.TrimRight(sc.Text(), "\r\n"))
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan configuration: %w", err)
	}
	return nil
}

// postProcess applies the rules that depend on the complete file.
func postProcess(pol *Policy) {
	if !pol.FirstProcess || pol.FullLogs {
		pol.SuspendLogging = false
	}
	if pol.PythonPath.IsEmpty() {
		pol.PythonPath = NewPathString("default")
	}
	if pol.TLSDump {
		applyTLSDumpMode(pol)
	}
	if pol.TraceDepthLimit == 0xFFFFFFFF {
		pol.TraceDepthLimit = 1
	}
	if pol.DroppedLimit == 0 {
		pol.DroppedLimit = DroppedLimit
	}
}

// applyTLSDumpMode disables everything that is exclusive with TLS secret
// capture.
func applyTLSDumpMode(pol *Policy) {
	pol.Syscall = false
	pol.Debugger = false
	pol.ProcDump = 0
	pol.ProcMemDump = false
	pol.DroppedLimit = DroppedLimit
	pol.Injection = false
	pol.Unpacker = UnpackOff
	pol.APIRateCap = 0
	pol.YaraScan = false
	pol.AmsiDump = false
	for i := range pol.Breakpoints {
		pol.Breakpoints[i].Address = 0
	}
	pol.ReturnBreakpoints = [SlotCount]Addr{}
	pol.BreakOnReturn = ""
	pol.BreakOnReturnSet = false
}

// joinRoot joins a drive root such as C:\ with name without relying on the
// host separator.
func joinRoot(root, name string) string {
	if strings.HasSuffix(root, `\`) || strings.HasSuffix(root, "/") {
		return root + name
	}
	return filepath.Join(root, name)
}

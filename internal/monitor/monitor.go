// Package monitor assembles the policy core at process attach: identity
// capture, configuration load, the record sink stack, the controller pipe
// and the hook runtime.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/umhmon/umh/internal/config"
	"github.com/umhmon/umh/internal/hook"
	"github.com/umhmon/umh/internal/identity"
	platform "github.com/umhmon/umh/internal/platform/windows"
	"github.com/umhmon/umh/internal/signal"
	"github.com/umhmon/umh/internal/sink"
	"github.com/umhmon/umh/internal/sink/composite"
	"github.com/umhmon/umh/internal/sink/jsonl"
	"github.com/umhmon/umh/internal/sink/otel"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const (
	// ServiceName identifies records shipped to the log server.
	ServiceName = "umh"

	logMaxSizeMB  = 64
	logMaxBackups = 3
	exportTimeout = 5 * time.Second
)

// Options carries the collaborators that live outside the policy core.
// Nil collaborators leave the matching feature off.
type Options struct {
	// AgentDir holds the monitor module and its configuration.
	AgentDir string
	PID      uint32
	// Facts overrides identity capture.
	Facts *identity.Facts

	Resolver  config.SymbolResolver
	Patcher   config.Patcher
	Inspector config.ImageInspector
	Verifier  identity.CodeVerifier

	Detour  hook.Detour
	Dumper  hook.Dumper
	Handler hook.ProcessHandler
	ProgIDs hook.ProgIDResolver

	// Open replaces os.Open for configuration files.
	Open func(name string) (io.ReadCloser, error)
	// Dial replaces the named-pipe dialer.
	Dial signal.DialFunc
	// Stores are extra record backends appended to the configured ones.
	Stores []sink.Store
	// ExportFilter selects the records shipped to the log server by API
	// glob and category.
	ExportFilter otel.Filter
	// LogExporter replaces the OTLP exporter for the log server.
	LogExporter sdklog.Exporter

	Logger *slog.Logger
}

// Monitor is the running policy core of one process.
type Monitor struct {
	Facts        identity.Facts
	Store        *config.Store
	Runtime      *hook.Runtime
	Emitter      *signal.PipeEmitter
	Gate         *signal.Gate
	Reconfigurer *config.Reconfigurer
	Writer       *sink.Writer

	found  bool
	logger *slog.Logger
}

// Start loads the policy and installs the interceptions it asks for.
// Configuration and backend problems are logged and never abort: a process
// without a configuration runs standalone on defaults.
func Start(ctx context.Context, opts Options) (*Monitor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pid := opts.PID
	if pid == 0 {
		pid = uint32(os.Getpid())
	}

	facts := captureFacts(opts, pid, logger)
	classifier := identity.NewClassifier(facts, identity.WithVerifier(opts.Verifier), identity.WithLogger(logger))

	resolver := opts.Resolver
	if resolver == nil {
		resolver = platform.ModuleResolver{}
	}
	parserOpts := []config.ParserOption{config.WithResolver(resolver), config.WithLogger(logger)}
	if opts.Patcher != nil {
		parserOpts = append(parserOpts, config.WithPatcher(opts.Patcher))
	}
	loader := &config.Loader{
		AgentDir:    opts.AgentDir,
		PID:         pid,
		ProcessName: facts.Name,
		Parser:      config.NewParser(parserOpts...),
		Profiler:    classifier,
		Inspector:   opts.Inspector,
		Logger:      logger,
		Open:        opts.Open,
	}
	pol, found := loader.Load()
	store := config.NewStore(nil)
	store.Publish(pol)

	backend := buildBackend(ctx, pol, pid, facts.ImagePath, logger, opts)
	writer := sink.NewWriter(backend, logger)

	emitter := signal.NewPipeEmitter(platform.PipePath(pol.Pipe.String()), pid, logger)
	if opts.Dial != nil {
		emitter.Dial = opts.Dial
	}
	gate := signal.NewGate(emitter, logger)

	progIDs := opts.ProgIDs
	if progIDs == nil {
		progIDs = signal.ProgIDLookup{}
	}
	reconf := &config.Reconfigurer{Store: store, Loader: loader, Notifier: emitter, Logger: logger}
	rtOpts := []hook.Option{
		hook.WithSink(writer),
		hook.WithGate(gate),
		hook.WithNotifier(emitter),
		hook.WithProgIDs(progIDs),
		hook.WithReconfig(reconf),
		hook.WithLogger(logger),
		hook.WithContext(ctx),
		hook.WithPID(pid),
	}
	if opts.Detour != nil {
		rtOpts = append(rtOpts, hook.WithDetour(opts.Detour))
	}
	if opts.Dumper != nil {
		rtOpts = append(rtOpts, hook.WithDumper(opts.Dumper))
	}
	if opts.Handler != nil {
		rtOpts = append(rtOpts, hook.WithProcessHandler(opts.Handler))
	}
	rt := hook.NewRuntime(store, rtOpts...)
	reconf.Installer = rt

	m := &Monitor{
		Facts:        facts,
		Store:        store,
		Runtime:      rt,
		Emitter:      emitter,
		Gate:         gate,
		Reconfigurer: reconf,
		Writer:       writer,
		found:        found,
		logger:       logger,
	}

	switch err := rt.InstallHooks(pol); {
	case errors.Is(err, hook.ErrNoDetour):
		logger.Warn("monitor: no detour layer, interceptions not installed")
	case err != nil:
		logger.Warn("monitor: some interceptions not installed", "error", err)
	}
	emitter.NotifyReady()
	logger.Info("monitor: started",
		"pid", pid,
		"image", facts.ImagePath,
		"standalone", pol.Standalone,
		"hooks", rt.Installed(),
	)
	return m, nil
}

// Configured reports whether a configuration file was found.
func (m *Monitor) Configured() bool { return m.found }

// Close flushes and closes the record backends.
func (m *Monitor) Close() error {
	if err := m.Writer.Close(); err != nil {
		return fmt.Errorf("close record backends: %w", err)
	}
	return nil
}

func captureFacts(opts Options, pid uint32, logger *slog.Logger) identity.Facts {
	if opts.Facts != nil {
		return *opts.Facts
	}
	facts, err := identity.Capture(pid)
	if err != nil {
		logger.Warn("monitor: identity capture failed", "pid", pid, "error", err)
		return identity.Facts{PID: pid}
	}
	return facts
}

// buildBackend assembles the record stores the policy asks for: a JSONL
// log under the results directory, an OTLP exporter for the log server,
// and structured logging in standalone or debug runs or when nothing else
// is configured.
func buildBackend(ctx context.Context, pol *config.Policy, pid uint32, image string, logger *slog.Logger, opts Options) sink.Store {
	var stores []sink.Store

	if pol.NoLogs == 0 && !pol.Results.IsEmpty() {
		path := jsonl.PathFor(pol.Results.String(), pid)
		s, err := jsonl.New(path, logMaxSizeMB, logMaxBackups)
		if err != nil {
			logger.Warn("monitor: jsonl log unavailable", "path", path, "error", err)
		} else {
			stores = append(stores, s)
		}
	}

	if !pol.LogServer.IsEmpty() {
		cfg := otel.Config{
			Timeout:  exportTimeout,
			Filter:   opts.ExportFilter,
			Resource: otel.BuildResource(ServiceName, pid, image),
			Exporter: opts.LogExporter,
		}
		err := cfg.ParseEndpoint(pol.LogServer.String())
		var s *otel.Store
		if err == nil {
			s, err = otel.New(ctx, cfg)
		}
		if err != nil {
			logger.Warn("monitor: log server unavailable", "endpoint", pol.LogServer.String(), "error", err)
		} else {
			stores = append(stores, s)
		}
	}

	stores = append(stores, opts.Stores...)

	if len(stores) == 0 || pol.Standalone || pol.Debug != 0 {
		level := slog.LevelDebug
		if pol.Standalone {
			level = slog.LevelInfo
		}
		stores = append(stores, sink.SlogStore{Logger: logger, Level: level})
	}
	return composite.New(stores[0], stores[1:]...)
}

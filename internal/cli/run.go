package cli

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/umhmon/umh/internal/identity"
	"github.com/umhmon/umh/internal/monitor"
	"github.com/umhmon/umh/internal/sink/otel"
)

var errSignalsOff = errors.New("controller signals disabled for this run")

type runSummary struct {
	Configured bool     `yaml:"configured" json:"configured"`
	Standalone bool     `yaml:"standalone" json:"standalone"`
	Image      string   `yaml:"image" json:"image"`
	Pipe       string   `yaml:"pipe" json:"pipe"`
	Results    string   `yaml:"results,omitempty" json:"results,omitempty"`
	LogServer  string   `yaml:"logserver,omitempty" json:"logserver,omitempty"`
	Hooks      int      `yaml:"hooks" json:"hooks"`
	Profiles   []string `yaml:"profiles" json:"profiles"`
	Signals    int      `yaml:"signals_dropped" json:"signals_dropped"`
}

func newRunCmd() *cobra.Command {
	var (
		output   string
		agentDir string
		pid      uint32
		signals  bool
		include  []string
		exclude  []string
		id       identityFlags
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the monitor core once without interceptions and report what it set up",
		Long: `Run the attach sequence of the monitor in this process: identity, the
configuration search under --agent-dir, the record backends and the hook
runtime. No detour layer is present, so nothing is intercepted. The ready
message is only sent to the controller pipe with --signal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFor(cmd)
			if err != nil {
				return err
			}
			opts := monitor.Options{
				AgentDir:     agentDir,
				PID:          pid,
				ExportFilter: otel.Filter{IncludeAPIs: include, ExcludeAPIs: exclude},
				Logger:       logger,
			}
			if id.set() {
				facts := id.facts(pid)
				opts.Facts = &facts
			}
			if !signals {
				opts.Dial = func(string, time.Duration) (net.Conn, error) { return nil, errSignalsOff }
			}

			m, err := monitor.Start(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("start monitor: %w", err)
			}
			pol := m.Store.Load()
			summary := runSummary{
				Configured: m.Configured(),
				Standalone: pol.Standalone,
				Image:      m.Facts.ImagePath,
				Pipe:       m.Emitter.Name,
				Results:    pol.Results.String(),
				LogServer:  pol.LogServer.String(),
				Hooks:      m.Runtime.Installed(),
				Profiles:   []string{},
				Signals:    m.Emitter.Dropped(),
			}
			c := identity.NewClassifier(m.Facts, identity.With32Bit(id.is32Bit), identity.WithLogger(logger))
			for _, p := range c.Classify() {
				summary.Profiles = append(summary.Profiles, p.Name)
			}
			if err := m.Close(); err != nil {
				return err
			}
			return printAs(cmd, output, summary)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: yaml|json")
	cmd.Flags().StringVar(&agentDir, "agent-dir", ".", "Directory holding the monitor module and its configuration")
	cmd.Flags().Uint32Var(&pid, "pid", 0, "Process id to run as (default the current one)")
	cmd.Flags().BoolVar(&signals, "signal", false, "Send the ready message to the controller pipe")
	cmd.Flags().StringSliceVar(&include, "export-api", nil, "Only ship APIs matching these globs to the log server")
	cmd.Flags().StringSliceVar(&exclude, "export-exclude-api", nil, "Do not ship APIs matching these globs to the log server")
	id.bind(cmd)
	return cmd
}

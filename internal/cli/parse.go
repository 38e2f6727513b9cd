package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/umhmon/umh/internal/config"
	"github.com/umhmon/umh/internal/identity"
)

func newParseCmd() *cobra.Command {
	var output string
	var pid uint32
	var strict bool
	var id identityFlags
	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Load a configuration file and print the resulting policy",
		Long: `Load a configuration file the way the monitor does at attach: defaults,
every line, post-processing and, when --image is given, the identity
profiles. Symbolic breakpoint addresses cannot be resolved outside the
monitored process and are reported at debug level.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFor(cmd)
			if err != nil {
				return err
			}
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("open configuration: %w", err)
			}
			var rejected []error
			onReject := func(line string, err error) {
				rejected = append(rejected, fmt.Errorf("%q: %w", line, err))
			}
			loader := &config.Loader{
				AgentDir:    filepath.Dir(path),
				PID:         pid,
				ProcessName: imageName(id.image),
				Parser:      config.NewParser(config.WithLogger(logger), config.WithRejectHandler(onReject)),
				Logger:      logger,
				Open:        func(string) (io.ReadCloser, error) { return os.Open(path) },
			}
			if id.set() {
				loader.Profiler = identity.NewClassifier(id.facts(pid),
					identity.With32Bit(id.is32Bit), identity.WithLogger(logger))
			}
			pol, _ := loader.Load()
			if strict && len(rejected) > 0 {
				return fmt.Errorf("%s: %d line(s) rejected: %w", path, len(rejected), errors.Join(rejected...))
			}
			return printAs(cmd, output, pol)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: yaml|json")
	cmd.Flags().Uint32Var(&pid, "pid", 0, "Process id the configuration is loaded for")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when any line is rejected")
	id.bind(cmd)
	return cmd
}

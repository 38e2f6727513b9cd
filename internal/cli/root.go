// Package cli implements umhctl, the inspection tool for monitor
// configuration files, identity profiles and the controller pipe.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "umhctl",
		Short:         "umhctl: inspect monitor policy, identity and controller traffic",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("umhctl {{.Version}}\n")

	cmd.PersistentFlags().String("log-level", getenvDefault("UMH_LOG_LEVEL", "warn"), "Diagnostic log level: debug|info|warn|error")
	cmd.PersistentFlags().String("log-format", getenvDefault("UMH_LOG_FORMAT", "text"), "Diagnostic log format: text|json")

	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newKeysCmd())
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newListenCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

// loggerFor builds the diagnostic logger selected by the root flags. It
// writes to the command's stderr.
func loggerFor(cmd *cobra.Command) (*slog.Logger, error) {
	levelName, _ := cmd.Root().PersistentFlags().GetString("log-level")
	format, _ := cmd.Root().PersistentFlags().GetString("log-format")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, exitf(ExitUsage, "invalid --log-level %q", levelName)
	}
	opts := &slog.HandlerOptions{Level: level}
	w := cmd.ErrOrStderr()
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, exitf(ExitUsage, "invalid --log-format %q", format)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func printAs(cmd *cobra.Command, format string, v any) error {
	switch strings.ToLower(format) {
	case "", "yaml":
		return printYAML(cmd.OutOrStdout(), v)
	case "json":
		return printJSON(cmd, v)
	default:
		return exitf(ExitUsage, "invalid --output %q (want yaml or json)", format)
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

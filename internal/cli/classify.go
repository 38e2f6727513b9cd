package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/umhmon/umh/internal/identity"
)

type classification struct {
	Facts    identity.Facts `yaml:"facts" json:"facts"`
	Branch   string         `yaml:"branch" json:"branch"`
	Profiles []string       `yaml:"profiles" json:"profiles"`
}

func newClassifyCmd() *cobra.Command {
	var output string
	var pid uint32
	var id identityFlags
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show which behavior profiles a process would get",
		Long: `Classify a live process (--pid, default the current one) or a process
described with --image, --cmdline and --parent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFor(cmd)
			if err != nil {
				return err
			}
			var facts identity.Facts
			if id.set() {
				facts = id.facts(pid)
			} else {
				target := pid
				if target == 0 {
					target = uint32(os.Getpid())
				}
				facts, err = identity.Capture(target)
				if err != nil {
					return fmt.Errorf("capture pid %d: %w", target, err)
				}
			}
			c := identity.NewClassifier(facts, identity.With32Bit(id.is32Bit), identity.WithLogger(logger))
			out := classification{
				Facts:    facts,
				Branch:   identity.ClassifyPath(facts.ImagePath).String(),
				Profiles: []string{},
			}
			for _, p := range c.Classify() {
				out.Profiles = append(out.Profiles, p.Name)
			}
			return printAs(cmd, output, out)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: yaml|json")
	cmd.Flags().Uint32Var(&pid, "pid", 0, "Process id to capture")
	id.bind(cmd)
	return cmd
}

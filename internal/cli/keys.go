package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/umhmon/umh/internal/config"
)

func newKeysCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List recognized configuration keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := config.Keys()
			if output == "json" {
				return printJSON(cmd, keys)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tMATCH")
			for _, k := range keys {
				match := "any case"
				if k.CaseSensitive {
					match = "exact"
				}
				fmt.Fprintf(tw, "%s\t%s\n", k.Name, match)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

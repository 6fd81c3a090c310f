package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	atspm "github.com/chengulatj/ATSPM-Aggregation"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the aggregations and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range atspm.Names() {
				specs, err := atspm.Describe(name)
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(specs))
				for _, s := range specs {
					key := s.Key
					if s.Required {
						key += "*"
					}
					keys = append(keys, key)
				}
				fmt.Fprintf(out, "%-18s %s\n", name, strings.Join(keys, " "))
			}
			fmt.Fprintln(out, "\n* required")
			return nil
		},
	}
}

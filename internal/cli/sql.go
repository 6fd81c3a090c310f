package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	atspm "github.com/chengulatj/ATSPM-Aggregation"
	"github.com/chengulatj/ATSPM-Aggregation/internal/logging"
)

func newSQLCmd(g *globalFlags) *cobra.Command {
	var (
		params    map[string]string
		dialect   string
		templates string
	)
	cmd := &cobra.Command{
		Use:   "sql NAME",
		Short: "Print the statements of an aggregation",
		Example: `  atspm-agg sql has_data -p no_data_min=5 -p min_data_points=3
  atspm-agg sql communications -p remove_incomplete=true -p event_codes=400,503`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := atspm.ParseDialect(dialect)
			if err != nil {
				return err
			}
			r := atspm.DefaultRenderer()
			if templates != "" {
				r = atspm.NewDirRenderer(templates)
			}
			engine := atspm.New(r, atspm.WithDialect(d), atspm.WithLogger(g.logger(logging.Config{Level: "warn"})))

			values := make(map[string]any, len(params))
			for k, v := range params {
				values[k] = v
			}
			out, err := engine.Aggregate(context.Background(), nil, args[0], true, values)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "Parameter as key=value, may be repeated")
	cmd.Flags().StringVar(&dialect, "dialect", "duckdb", "Dialect of the statements: duckdb or sqlite")
	cmd.Flags().StringVar(&templates, "templates", "", "Directory of <name>.sql templates")
	return cmd
}

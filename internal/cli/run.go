package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	atspm "github.com/chengulatj/ATSPM-Aggregation"
	"github.com/chengulatj/ATSPM-Aggregation/config"
	"github.com/chengulatj/ATSPM-Aggregation/internal/logging"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		configPath  string
		sqlOnly     bool
		metricsFile string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute the aggregations listed in a configuration file",
		Long: `Computes every aggregation of the configuration in order. Each one
replaces the table named after it. Aggregations marked to_sql, or all of
them with --sql-only, are printed instead of run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := g.logger(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

			reg := prometheus.NewRegistry()
			opts, err := cfg.EngineOptions()
			if err != nil {
				return err
			}
			opts = append(opts, atspm.WithLogger(logger), atspm.WithRegisterer(reg))
			engine := atspm.New(cfg.Renderer(), opts...)

			var db *sql.DB
			if !sqlOnly && needsDB(cfg) {
				db, err = openDB(cfg.Driver, cfg.DSN)
				if err != nil {
					return err
				}
				defer db.Close()
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			for _, agg := range cfg.Aggregations {
				toSQL := sqlOnly || agg.ToSQL
				out, err := engine.AggregateDB(ctx, db, agg.Name, toSQL, agg.Params)
				if err != nil {
					return err
				}
				if toSQL {
					fmt.Fprintf(cmd.OutOrStdout(), "-- %s\n%s\n", agg.Name, out)
				}
			}

			if metricsFile != "" {
				if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
					return fmt.Errorf("failed to write metrics: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file (TOML or YAML)")
	cmd.Flags().BoolVar(&sqlOnly, "sql-only", false, "Print the statements instead of running them")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file")
	cmd.MarkFlagRequired("config")
	return cmd
}

func needsDB(cfg *config.Config) bool {
	for _, agg := range cfg.Aggregations {
		if !agg.ToSQL {
			return true
		}
	}
	return false
}

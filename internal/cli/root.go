// Package cli implements the atspm-agg command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/chengulatj/ATSPM-Aggregation/internal/logging"
)

type globalFlags struct {
	logLevel  string
	logFormat string
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.StringVar(&g.logFormat, "log-format", "", "Log format: text or json")
}

// logger builds the logger for a command. Flags take precedence over the
// configured values.
func (g *globalFlags) logger(cfg logging.Config) *slog.Logger {
	if g.logLevel != "" {
		cfg.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Format = g.logFormat
	}
	return logging.New(cfg, os.Stderr)
}

// NewRootCmd returns the atspm-agg command with all its subcommands.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "atspm-agg",
		Short: "Aggregate traffic signal event logs",
		Long: `atspm-agg computes performance measure tables from high resolution
traffic signal event logs held in DuckDB or SQLite.`,
		SilenceUsage: true,
	}
	g.register(root.PersistentFlags())
	root.AddCommand(newRunCmd(g), newSQLCmd(g), newListCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// Package main is the entry point for the atspm-agg command.
package main

import (
	"os"

	"github.com/chengulatj/ATSPM-Aggregation/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

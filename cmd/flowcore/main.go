// Package main provides the entry point for the flowcore demo CLI.
package main

import (
	"context"
	"os"

	"github.com/mrz1836/flowcore/internal/cli"
)

// Build info variables set via ldflags during build.
//
//nolint:gochecknoglobals // required for ldflags injection at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx := context.Background()
	err := cli.Execute(ctx, cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})
	if err != nil {
		os.Exit(1)
	}
}

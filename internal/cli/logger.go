// Package cli provides the command-line interface for flowcore's demo
// binary.
package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// selectLevel maps verbosity flags to a zerolog level, mirroring the
// verbose/quiet/default tri-state used throughout the retrieval corpus's
// CLI tooling.
func selectLevel(verbose, quiet bool) zerolog.Level {
	switch {
	case verbose:
		return zerolog.DebugLevel
	case quiet:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// InitLogger builds the zerolog.Logger used by the demo CLI and the core
// packages it wires together. Output always goes to a human-readable
// console writer on stderr; flowcore's demo has no log-rotation or
// file-persistence surface (see DESIGN.md).
func InitLogger(verbose, quiet bool) zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(selectLevel(verbose, quiet)).With().Timestamp().Logger()
}

// Package logging builds the process logger from the verbose/quiet switches.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a text logger writing to w (stderr when nil). verbose enables
// debug output, quiet keeps only warnings and errors. The logger is also
// installed as the slog default.
func New(w io.Writer, verbose, quiet bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelWarn
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Package memlog builds the slog.Logger shared by memscope's example
// commands, mirroring cmd/cc's -debug/-debug-file flag pair rather
// than configuring logging from inside library packages.
package memlog

import (
	"io"
	"log/slog"
	"os"
)

// Options controls the handler New builds.
type Options struct {
	// Debug enables slog.LevelDebug; otherwise slog.LevelInfo.
	Debug bool
	// File, if non-empty, receives log output instead of stderr.
	File string
}

// New builds a text-handler logger per opts and installs it as the
// process default, returning a close func for the opened log file (a
// no-op when File is empty).
func New(opts Options) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closeFn := func() error { return nil }
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w = f
		closeFn = f.Close
	}

	log := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return log, closeFn, nil
}

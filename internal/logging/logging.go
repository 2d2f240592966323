// Package logging adapts github.com/luxfi/log's structured, slog-based
// logger for the hub. It keeps a single root logger and hands out
// per-component children via With, the way the rest of the stack expects
// to see "component=event-store" style fields on every line.
package logging

import (
	"context"
	"log/slog"
	"os"

	luxlog "github.com/luxfi/log"
)

// Logger is the structured logger used throughout the hub.
type Logger = luxlog.Logger

var root Logger

func init() {
	root = luxlog.NewLogger(luxlog.NewTerminalHandlerWithLevel(os.Stderr, luxlog.LevelInfo, false))
	luxlog.SetDefault(root)
}

// SetLevel changes the verbosity of the root logger. Valid names are
// trace, debug, info, warn, error, crit.
func SetLevel(name string) error {
	lvl, err := luxlog.ToLevel(name)
	if err != nil {
		return err
	}
	root = luxlog.NewLogger(luxlog.NewTerminalHandlerWithLevel(os.Stderr, lvl, false))
	luxlog.SetDefault(root)
	return nil
}

// Root returns the hub's root logger.
func Root() Logger { return root }

// For returns a child logger tagged with component=name.
func For(name string) Logger { return root.With("component", name) }

// Enabled reports whether the given slog level would be emitted.
func Enabled(ctx context.Context, level slog.Level) bool {
	return root.Enabled(ctx, level)
}

// Package debug provides context-based debug and dry-run modes with
// structured logging.
//
// Debug mode raises the slog level and adds per-request transport logging.
// Dry-run mode short-circuits network calls entirely: requests are
// previewed instead of sent, and no telemetry is emitted.
package debug

import (
	"context"
	"log/slog"
	"os"
)

type contextKey string

const (
	debugKey  contextKey = "debug_enabled"
	dryRunKey contextKey = "dry_run_enabled"
)

// WithDebug returns a context with debug mode enabled/disabled.
func WithDebug(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, debugKey, enabled)
}

// IsEnabled returns true if debug mode is enabled in the context.
func IsEnabled(ctx context.Context) bool {
	if v, ok := ctx.Value(debugKey).(bool); ok {
		return v
	}
	return false
}

// WithDryRun returns a context with dry-run mode enabled/disabled.
func WithDryRun(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, dryRunKey, enabled)
}

// IsDryRun returns true if dry-run mode is enabled in the context.
func IsDryRun(ctx context.Context) bool {
	if v, ok := ctx.Value(dryRunKey).(bool); ok {
		return v
	}
	return false
}

// SetupLogger configures slog based on debug mode.
func SetupLogger(debugEnabled bool) {
	var level slog.Level
	if debugEnabled {
		level = slog.LevelDebug
	} else {
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// Package logging wires slog handlers and request-scoped loggers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/lmittmann/tint"
)

// Options selects the handler stack for the process logger.
type Options struct {
	Level  slog.Level
	Format string // "text" or "json"

	// SentryEnabled fans error records out to Sentry in addition to stdout.
	SentryEnabled bool
}

// New builds the process logger. Text output uses tint; JSON is for
// structured collectors. When Sentry is enabled, error-level records are
// mirrored there through the multi handler.
func New(opts Options) *slog.Logger {
	var base slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		base = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: opts.Level})
	default:
		base = tint.NewHandler(os.Stdout, &tint.Options{Level: opts.Level})
	}

	if opts.SentryEnabled {
		sentryHandler := sentryslog.Option{
			EventLevel: []slog.Level{slog.LevelError},
			LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
		}.NewSentryHandler(context.Background())
		return slog.New(MultiHandler(base, sentryHandler))
	}

	return slog.New(base)
}

type contextKey string

const loggerKey contextKey = "logger"

// WithLogger returns a context that carries the provided logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey, ensureLogger(logger))
}

// FromContext returns the logger stored in context or the fallback logger.
// If neither is available, it returns a no-op logger.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return ensureLogger(fallback)
}

func ensureLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

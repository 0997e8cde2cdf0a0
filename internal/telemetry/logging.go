package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// LogLevel reads the log level from LOG_LEVEL.
// Values: DEBUG, INFO, WARN, ERROR. Default: INFO.
func LogLevel() slog.Level {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger initialises the global logger writing to stderr.
//
// The format comes from LOG_FORMAT:
//   - "json" (default): one JSON object per line
//   - "text": human readable key=value
func SetupLogger() *slog.Logger {
	return SetupLoggerTo(os.Stderr)
}

// SetupLoggerTo is SetupLogger with an explicit destination.
func SetupLoggerTo(w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     LogLevel(),
		AddSource: LogLevel() == slog.LevelDebug,
	}

	format := os.Getenv("LOG_FORMAT")
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

type ctxKey string

const (
	// CtxLogger is the context key of the logger.
	CtxLogger ctxKey = "logger"
)

// WithLogger stores the logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext returns the logger stored in the context, or the global one.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithRunID returns the logger with run_id added.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// WithFlow returns the logger with flow added.
func WithFlow(logger *slog.Logger, flow string) *slog.Logger {
	return logger.With("flow", flow)
}

// WithJob returns the logger with flow and job added.
func WithJob(logger *slog.Logger, flow, location string) *slog.Logger {
	return WithFlow(logger, flow).With("job", location)
}

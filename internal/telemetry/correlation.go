package telemetry

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type corrKeyType struct{}

var corrKey corrKeyType

// NewCorrelationID returns a fresh request correlation id.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns logger with a corr attribute if ctx carries one.
// A nil logger falls back to slog.Default().
func LoggerWithCorr(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id := GetCorrelation(ctx); id != "" {
		return logger.With(slog.String("corr", id))
	}
	return logger
}

package config

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// LoggerKey returns the context key the root command stores the logger under.
// Commands read it through GetLogger, which keeps them free of the cli package.
func LoggerKey() any {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context, or a discard logger.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

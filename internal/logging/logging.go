// Package logging builds the process-wide slog logger on top of zap.
package logging

import (
	"log/slog"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
)

// New returns a JSON production logger at the given level. Unparseable
// levels fall back to info.
func New(level string) *slog.Logger {
	slogLevel := slog.LevelInfo
	zapLevel := zap.InfoLevel
	if level != "" {
		_ = slogLevel.UnmarshalText([]byte(level))
		_ = zapLevel.UnmarshalText([]byte(level))
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapLogger, err := cfg.Build()
	if err != nil {
		// zap only fails on bad output paths; the default config has none.
		return slog.Default()
	}

	return slog.New(slogzap.Option{Level: slogLevel, Logger: zapLogger}.NewZapHandler())
}

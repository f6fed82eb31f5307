// Package logging builds the process logger. Packages log through log/slog;
// the default slog handler is backed by zap.
package logging

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON zap logger at level. Development mode switches to the
// console encoder.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}

	return cfg.Build()
}

// Install makes logger the backend of the default slog logger and returns
// the slog.Logger it installed.
func Install(logger *zap.Logger, name string) *slog.Logger {
	l := slog.New(zapslog.NewHandler(logger.Core(), zapslog.WithName(name), zapslog.WithCaller(true)))
	slog.SetDefault(l)
	return l
}

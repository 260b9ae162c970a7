// Package logger holds the process-wide structured logger. Until Init is
// called every call is a no-op, so library packages can log freely in tests.
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	sugar  = zap.NewNop().Sugar()
	levels = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// Options configures Init.
type Options struct {
	Level       string
	Development bool
	// OutputPaths defaults to stderr.
	OutputPaths []string
}

// Init builds a zap logger from opts and installs it globally.
func Init(opts Options) error {
	lvl, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}
	levels.SetLevel(lvl)

	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = levels
	cfg.OutputPaths = []string{"stderr"}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	Set(l)
	return nil
}

// Set installs l as the global logger.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	sugar = l.Sugar()
}

// SetLevel changes the level of a logger built by Init.
func SetLevel(level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	levels.SetLevel(lvl)
	return nil
}

// Sync flushes buffered entries.
func Sync() error {
	return get().Sync()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Debugw(msg string, keysAndValues ...any) { get().Debugw(msg, keysAndValues...) }

func Infow(msg string, keysAndValues ...any) { get().Infow(msg, keysAndValues...) }

func Warnw(msg string, keysAndValues ...any) { get().Warnw(msg, keysAndValues...) }

func Errorw(msg string, keysAndValues ...any) { get().Errorw(msg, keysAndValues...) }

func Infof(template string, args ...any) { get().Infof(template, args...) }

func parseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zap.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q", level)
	}
	return lvl, nil
}

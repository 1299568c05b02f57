package telemetry

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	mu   sync.RWMutex
	base = mustBuild("production")
)

// Init rebuilds the process logger for the given environment.
// dev and local get the console encoder; everything else logs JSON.
func Init(env string) error {
	logger, err := build(env)
	if err != nil {
		return err
	}
	mu.Lock()
	prev := base
	base = logger
	mu.Unlock()
	_ = prev.Sync()
	return nil
}

// Use swaps the process logger and returns a func restoring the previous one.
func Use(logger *zap.Logger) func() {
	mu.Lock()
	prev := base
	base = logger
	mu.Unlock()
	return func() {
		mu.Lock()
		base = prev
		mu.Unlock()
	}
}

// Info writes an info-level log line with the given fields.
func Info(msg string, fields map[string]any) {
	current().Info(msg, zapFields(fields)...)
}

// Warn writes a warn-level log line with the given fields.
func Warn(msg string, fields map[string]any) {
	current().Warn(msg, zapFields(fields)...)
}

// Error writes an error-level log line with the given fields.
func Error(msg string, fields map[string]any) {
	current().Error(msg, zapFields(fields)...)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = current().Sync()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func zapFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case error:
			if v == nil {
				continue
			}
			out = append(out, zap.String(k, v.Error()))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}

func build(env string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.MessageKey = "msg"
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func mustBuild(env string) *zap.Logger {
	logger, err := build(env)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kailas-cloud/quotagate/internal/version"
)

// Options configures NewLogger.
type Options struct {
	Env     string // prod, local, dev, docker
	Level   string // debug, info, warn, error; empty keeps the env default
	Service string // stamped on every entry as "service"
}

// NewLogger creates a zap logger for the given environment.
// prod uses JSON output with sampling, local/dev use colored console output.
func NewLogger(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	switch opts.Env {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "local", "dev", "docker":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", opts.Env)
	}

	if opts.Level != "" {
		level, err := ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel), zap.Fields(baseFields(opts)...))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

// ParseLevel maps a config level name to a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func baseFields(opts Options) []zap.Field {
	service := opts.Service
	if service == "" {
		service = "quotagate"
	}
	return []zap.Field{
		zap.String("service", service),
		zap.String("version", version.Version),
	}
}

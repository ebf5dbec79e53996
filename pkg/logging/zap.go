// Package logging builds the service logger: an ectologger facade over a
// zap core, so packages log through the ectologger API while output stays
// structured zap.
package logging

import (
	"strings"

	"github.com/Gobusters/ectologger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the log encoder and minimum level.
type Config struct {
	Level  string
	Pretty bool
}

// New returns the ectologger facade and the zap logger behind it. Callers
// own the zap handle for Sync on shutdown.
func New(cfg Config) (ectologger.Logger, *zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Pretty {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	zapCfg.DisableCaller = true

	zl, err := zapCfg.Build()
	if err != nil {
		return nil, nil, err
	}

	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		fields := make([]zap.Field, 0, len(msg.Fields)+1)
		for k, v := range msg.Fields {
			fields = append(fields, zap.Any(k, v))
		}
		if msg.Error != nil {
			fields = append(fields, zap.Error(msg.Error))
		}

		switch strings.ToLower(string(msg.Level)) {
		case "debug":
			zl.Debug(msg.Message, fields...)
		case "warn", "warning":
			zl.Warn(msg.Message, fields...)
		case "error":
			zl.Error(msg.Message, fields...)
		case "fatal":
			zl.Fatal(msg.Message, fields...)
		default:
			zl.Info(msg.Message, fields...)
		}
	})

	return logger, zl, nil
}

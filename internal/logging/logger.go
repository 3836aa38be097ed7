// Package logging builds the zap logger shared by every component.
// The teacher's pkg/utils/logger.go left this unimplemented
// ("TODO: реализовать инициализацию logger") beyond a recommendation
// to use zap or logrus; zap was already an indirect dependency
// (pulled in transitively through prometheus/client_golang), so this
// package makes it a direct one and actually wires it up.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls level and encoding, mirroring config.LoggingConfig.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "console"
}

// New builds a zap.Logger for the given config. Unknown levels fall
// back to info; an empty format means json, and any other format
// besides "json" and "console" returns an error.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	case "json", "":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), level)
	return zap.New(core, zap.AddCaller()), nil
}

// Nop returns a no-op logger, used by defaults and tests that don't
// care about log output.
func Nop() *zap.Logger {
	return zap.NewNop()
}

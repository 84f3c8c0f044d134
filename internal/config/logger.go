package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level maps a level name to a zap level; unknown names mean info.
func Level(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// NewLogger builds the process logger. Output goes to stderr, or to a
// size-rotated file when File is set.
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	if l.File == "" {
		cfg := zap.NewProductionConfig()
		if l.Format == "console" {
			cfg = zap.NewDevelopmentConfig()
		}
		cfg.Level = zap.NewAtomicLevelAt(Level(l.Level))
		logger, err := cfg.Build()
		if err != nil {
			return nil, errors.Wrap(err, "build logger")
		}
		return logger, nil
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)
	if l.Format == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   l.File,
		MaxSize:    l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
	})
	return zap.New(zapcore.NewCore(enc, sink, Level(l.Level)), zap.AddCaller()), nil
}

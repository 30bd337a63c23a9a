// Package logging builds the zap loggers used by the CLI and daemon.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	// LevelNone disables logging entirely.
	LevelNone = "none"
)

// GetLogger returns a JSON logger writing to stderr at the given level.
func GetLogger(level string) (*zap.Logger, error) {
	if level == LevelNone || level == "" {
		return zap.NewNop(), nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// MustGetLogger is GetLogger that panics on a bad level.
func MustGetLogger(level string) *zap.Logger {
	l, err := GetLogger(level)
	if err != nil {
		panic(err)
	}
	return l
}

package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger around a level that can be changed
// while running
func NewLogger(cfg *Config) (*zap.Logger, zap.AtomicLevel, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	level := zap.NewAtomicLevelAt(ParseLevel(cfg.LogLevel, zcfg.Level.Level()))
	zcfg.Level = level

	logger, err := zcfg.Build()
	if err != nil {
		return nil, level, err
	}
	return logger, level, nil
}

// ParseLevel returns fallback for unknown names
func ParseLevel(name string, fallback zapcore.Level) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return fallback
	}
	return l
}

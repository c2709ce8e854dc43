// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the encoder and an optional log file that receives a copy
// of everything written to stderr.
type Config struct {
	Development bool
	File        string
}

// New builds a zap.Logger configured for development or production.
func New(c Config) (*zap.Logger, error) {
	if c.Development {
		return newDevelopment(c.File)
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if c.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, c.File)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// newDevelopment colors levels on the terminal only; the file copy stays plain.
func newDevelopment(file string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if file == "" {
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}

	sink, _, err := zap.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	plain := cfg.EncoderConfig
	plain.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := cfg.Build(zap.WrapCore(func(console zapcore.Core) zapcore.Core {
		return zapcore.NewTee(console, zapcore.NewCore(zapcore.NewConsoleEncoder(plain), sink, cfg.Level))
	}))
	if err != nil {
		return nil, fmt.Errorf("build dev logger: %w", err)
	}
	return logger, nil
}

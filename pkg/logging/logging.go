// Package logging builds the process logger from the logging configuration
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yourusername/quantlink-tick-engine/pkg/config"
)

// New creates a logger writing to stdout and, when cfg.File is set, to that file as well
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	return NewWithOutput(cfg, os.Stdout)
}

// NewWithOutput is New with the console sink replaced by out
func NewWithOutput(cfg config.LoggingConfig, out io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var consoleEncoder zapcore.Encoder
	if cfg.JSONFormat {
		consoleEncoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(encoderCfg)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(out), level),
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		// 文件始终写 JSON
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Package logging builds the process logger: JSON to stdout plus rotated
// files, with errors split into their own file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures the logger.
type Config struct {
	Level string // debug, info, warn, error
	// Dir receives app.log and error.log. Empty disables file output.
	Dir string
	// Development switches stdout to a human-readable console encoder.
	Development bool
	// Stderr sends console output to stderr, keeping stdout for command output.
	Stderr bool
}

// New creates a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encCfg)

	stdoutEncoder := jsonEncoder
	if cfg.Development {
		devCfg := zap.NewDevelopmentEncoderConfig()
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		stdoutEncoder = zapcore.NewConsoleEncoder(devCfg)
	}

	console := os.Stdout
	if cfg.Stderr {
		console = os.Stderr
	}
	cores := []zapcore.Core{
		zapcore.NewCore(stdoutEncoder, zapcore.Lock(console), level),
	}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl >= zapcore.ErrorLevel
		})
		lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl < zapcore.ErrorLevel && lvl >= level
		})
		cores = append(cores,
			zapcore.NewCore(jsonEncoder, zapcore.AddSync(&lumberjack.Logger{
				Filename:   filepath.Join(cfg.Dir, "error.log"),
				MaxSize:    100, // megabytes
				MaxBackups: 3,
				MaxAge:     7, // days
				Compress:   true,
			}), highPriority),
			zapcore.NewCore(jsonEncoder, zapcore.AddSync(&lumberjack.Logger{
				Filename:   filepath.Join(cfg.Dir, "app.log"),
				MaxSize:    100,
				MaxBackups: 5,
				MaxAge:     7,
				Compress:   true,
				LocalTime:  true,
			}), lowPriority),
		)
	}

	return zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// Package logger constructs zap loggers for refinery components.
//
// Components never reach for ambient global logging state: every constructor
// in this codebase takes a *zap.SugaredLogger explicitly. This package only
// knows how to build them — human-readable console output for interactive
// use, JSON for machine consumption.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// JSONOutput switches to structured JSON output for machine consumption.
	JSONOutput bool
	// Debug lowers the level from Info to Debug.
	Debug bool
}

// New builds a SugaredLogger according to opts.
func New(opts Options) (*zap.SugaredLogger, error) {
	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	if opts.JSONOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		zl, err := config.Build()
		if err != nil {
			return nil, err
		}
		return zl.Sugar(), nil
	}

	// Human-readable console output with minimal, calm formatting
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zl := zap.New(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		),
	)
	return zl.Sugar(), nil
}

// Nop returns a no-op logger. Use it in tests and wherever a component
// tolerates a nil-equivalent logger without nil checks at every call site.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

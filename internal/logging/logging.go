// Package logging builds the zap logger used across ccquota.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Verbose bool
	// File, when set, receives JSON logs through a rotating writer instead of
	// console output on stderr.
	File string
}

// New returns a logger for the given options.
func New(opts Options) *zap.Logger {
	level := zap.NewAtomicLevelAt(zap.WarnLevel)
	if opts.Verbose {
		level.SetLevel(zap.DebugLevel)
	}

	var core zapcore.Core
	if opts.File != "" {
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		if !opts.Verbose {
			level.SetLevel(zap.InfoLevel)
		}
		core = zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(rotating(opts.File)), level)
	} else {
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc.TimeKey = ""
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	}

	return zap.New(core)
}

func rotating(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
		Compress:   false,
	}
}

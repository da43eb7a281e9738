// Package rlog builds the structured logger used in this module: the
// listen loop and the command dispatcher log through Server.Logger, a
// *zap.SugaredLogger, and cmd/redkit-server hands the same logger to
// replication (which only needs its Infof/Errorf methods). The AOF and
// RDB packages do not log; they return errors to their callers.
package rlog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger. An empty Options value logs JSON lines
// to stdout at info level.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string

	// Filename, if non-empty, sends output to a rotating file instead of
	// stdout.
	Filename   string
	MaxSizeMB  int // default 100
	MaxAgeDays int // default 7
	MaxBackups int // default 3
}

func toZapLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a sugared logger per opts.
func New(opts Options) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	var sink zapcore.WriteSyncer
	if opts.Filename != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.Filename,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxAge:     orDefault(opts.MaxAgeDays, 7),
			MaxBackups: orDefault(opts.MaxBackups, 3),
		})
	} else {
		sink = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(encoder, sink, toZapLevel(opts.Level))
	return zap.New(core, zap.AddCaller()).Sugar()
}

// Nop returns a logger that discards everything, useful for tests.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

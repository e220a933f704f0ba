package main

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the process logger. Stdout carries the protocol, so logs
// always go to stderr.
func newLogger(level string) (*zap.SugaredLogger, zap.AtomicLevel) {
	atom := zap.NewAtomicLevelAt(parseLogLevel(level))

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		atom,
	)
	return zap.New(core).Sugar().Named("mediafetcher"), atom
}

// parseLogLevel falls back to info for anything zap does not know.
func parseLogLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

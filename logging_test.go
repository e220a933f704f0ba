package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"Warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, parseLogLevel(in))
		})
	}
}

func TestNewLoggerLevelIsAdjustable(t *testing.T) {
	log, atom := newLogger("warn")
	assert.False(t, log.Desugar().Core().Enabled(zapcore.InfoLevel))

	atom.SetLevel(zapcore.DebugLevel)
	assert.True(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))
}

package main

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds a logr logger on zap writing to stderr. verbosity 1
// enables V(1) debug messages, 2 enables V(2) trace.
func newLogger(verbosity int) (logr.Logger, func(), error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	cfg.DisableStacktrace = true
	z, err := cfg.Build()
	if err != nil {
		return logr.Discard(), func() {}, err
	}
	return zapr.NewLogger(z), func() { _ = z.Sync() }, nil
}

// Package logging constructs the process-wide structured logger.
//
// Grounded on uhyunpark-hyperlicked/pkg/util/log.go: production JSON
// encoder, ISO8601 timestamps. Unlike the teacher, this engine never
// tees to a log file — spec.md's only durable artifact is the WAL — so
// NewLoggerWithFile is not carried over.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-configured *zap.Logger writing JSON to stderr.
func New() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

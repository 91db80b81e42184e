// Package log is the logging surface used by clients and servers. Callers
// hand a Logger to ClientConfig or ServerConfig; a nil Logger disables
// logging entirely.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

type zapLogger struct {
	logger *zap.Logger
}

// NewZapLogger adapts a zap logger.
func NewZapLogger(logger *zap.Logger) Logger {
	return &zapLogger{
		logger: logger.WithOptions(zap.AddCallerSkip(2)),
	}
}

func NewDevelopment() (Logger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(logger), nil
}

func NewProduction() (Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(logger), nil
}

// NewWithLevel builds a console logger that drops entries below level.
// Accepted levels are the zap names: debug, info, warn, error.
func NewWithLevel(level string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	conf := zap.NewDevelopmentConfig()
	conf.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := conf.Build()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(logger), nil
}

func Nop() Logger {
	return &zapLogger{
		logger: zap.NewNop(),
	}
}

func (l *zapLogger) Debug(msg string) {
	l.logger.Debug(msg)
}

func (l *zapLogger) Info(msg string) {
	l.logger.Info(msg)
}

func (l *zapLogger) Warn(msg string) {
	l.logger.Warn(msg)
}

func (l *zapLogger) Error(msg string) {
	l.logger.Error(msg)
}

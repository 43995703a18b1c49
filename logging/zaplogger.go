package logging

import (
	"go.uber.org/zap"
)

// NewDevLogger returns a logger with human friendly console output, suitable
// for local development.
func NewDevLogger(opts ...zap.Option) Logger {
	opts = append(opts, zap.AddCallerSkip(2))
	l, err := zap.NewDevelopment(opts...)
	if err != nil {
		panic(err)
	}
	return &ZapLogger{logger: l.Sugar()}
}

// NewProdLogger returns a logger that emits structured JSON at info level and
// above.
func NewProdLogger(opts ...zap.Option) Logger {
	opts = append(opts, zap.AddCallerSkip(2))
	l, err := zap.NewProduction(opts...)
	if err != nil {
		panic(err)
	}
	return &ZapLogger{logger: l.Sugar()}
}

// ZapLogger adapts a zap.SugaredLogger to the Logger interface.
type ZapLogger struct {
	logger *zap.SugaredLogger
}

func NewZapLogger(logger *zap.SugaredLogger) *ZapLogger {
	return &ZapLogger{logger: logger}
}

func (z *ZapLogger) Debug(args ...interface{}) {
	z.logger.Debug(args...)
}

func (z *ZapLogger) Debugw(msg string, keysAndValues ...interface{}) {
	z.logger.Debugw(msg, keysAndValues...)
}

func (z *ZapLogger) Debugf(msg string, args ...interface{}) {
	z.logger.Debugf(msg, args...)
}

func (z *ZapLogger) Info(args ...interface{}) {
	z.logger.Info(args...)
}

func (z *ZapLogger) Infow(msg string, keysAndValues ...interface{}) {
	z.logger.Infow(msg, keysAndValues...)
}

func (z *ZapLogger) Infof(msg string, args ...interface{}) {
	z.logger.Infof(msg, args...)
}

func (z *ZapLogger) Warn(args ...interface{}) {
	z.logger.Warn(args...)
}

func (z *ZapLogger) Warnw(msg string, keysAndValues ...interface{}) {
	z.logger.Warnw(msg, keysAndValues...)
}

func (z *ZapLogger) Warnf(msg string, args ...interface{}) {
	z.logger.Warnf(msg, args...)
}

func (z *ZapLogger) Error(args ...interface{}) {
	z.logger.Error(args...)
}

func (z *ZapLogger) Errorw(msg string, keysAndValues ...interface{}) {
	z.logger.Errorw(msg, keysAndValues...)
}

func (z *ZapLogger) Errorf(msg string, args ...interface{}) {
	z.logger.Errorf(msg, args...)
}

func (z *ZapLogger) Named(name string) Logger {
	return &ZapLogger{logger: z.logger.Named(name)}
}

func (z *ZapLogger) With(field string, value interface{}) Logger {
	return &ZapLogger{logger: z.logger.With(field, value)}
}

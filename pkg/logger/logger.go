package logger

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
)

// Ensure implementations satisfy the interface.
var (
	_ Logger = &nopLogger{}
	_ Logger = &zapLogger{}
)

// Logger represents an interface for a shared logger.
type Logger interface {
	Printf(format string, v ...interface{}) // backward compatibility
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	// WithPrefix returns a new Logger with the same configuration as
	// this one, but all logs will have the given prefix.
	WithPrefix(prefix string) Logger
}

// NopLogger represents a Logger that doesn't do anything.
var NopLogger Logger = &nopLogger{}

type nopLogger struct{}

func (n *nopLogger) Printf(format string, v ...interface{}) {}
func (n *nopLogger) Debugf(format string, v ...interface{}) {}
func (n *nopLogger) Infof(format string, v ...interface{})  {}
func (n *nopLogger) Warnf(format string, v ...interface{})  {}
func (n *nopLogger) Errorf(format string, v ...interface{}) {}

func (n *nopLogger) WithPrefix(prefix string) Logger {
	return n
}

// zapLogger is the Logger used by the CLI and by embedders that don't
// bring their own.
type zapLogger struct {
	sugar  *zap.SugaredLogger
	prefix string
}

// NewZapLogger returns a console-encoded zap logger writing to w at the
// given level ("debug", "info", "warn", "error").
func NewZapLogger(w io.Writer, level string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.WrapCode(err, errors.ErrMalformedInput, "log level")
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), lvl)
	return &zapLogger{sugar: zap.New(core).Sugar()}, nil
}

func (z *zapLogger) Printf(format string, v ...interface{}) {
	z.sugar.Infof(z.prefix+format, v...)
}

func (z *zapLogger) Debugf(format string, v ...interface{}) {
	z.sugar.Debugf(z.prefix+format, v...)
}

func (z *zapLogger) Infof(format string, v ...interface{}) {
	z.sugar.Infof(z.prefix+format, v...)
}

func (z *zapLogger) Warnf(format string, v ...interface{}) {
	z.sugar.Warnf(z.prefix+format, v...)
}

func (z *zapLogger) Errorf(format string, v ...interface{}) {
	z.sugar.Errorf(z.prefix+format, v...)
}

func (z *zapLogger) WithPrefix(prefix string) Logger {
	return &zapLogger{sugar: z.sugar, prefix: z.prefix + prefix}
}

// Sync flushes buffered log entries of loggers that buffer.
func Sync(l Logger) error {
	if z, ok := l.(*zapLogger); ok {
		return z.sugar.Sync()
	}
	return nil
}

package logging

import (
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Logger is the structured, leveled logger passed into ikgraph.Registry and
// solver.Solver. It mirrors the sub-logger / structured-fields shape of the
// domain stack's own logging package rather than wrapping the standard
// library's log package.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger that prefixes Name with "<parent>.<name>".
	Sublogger(name string) Logger
	// With returns a logger with keysAndValues attached to every subsequent entry.
	With(keysAndValues ...interface{}) Logger

	Name() string
	Level() Level
}

type impl struct {
	name  string
	level *zap.AtomicLevel
	sugar *zap.SugaredLogger
}

// NewLogger returns a Logger named name writing to stderr at INFO level.
func NewLogger(name string) Logger {
	level := zap.NewAtomicLevelAt(INFO.zapLevel())
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(zapcore.AddSync(os.Stderr)), level)
	l := zap.New(core).Named(name)
	return &impl{name: name, level: &level, sugar: l.Sugar()}
}

// NewTestLogger returns a Logger that writes through t.Log, for use in _test.go files.
func NewTestLogger(t testing.TB) Logger {
	l := zaptest.NewLogger(t).Named(t.Name())
	level := zap.NewAtomicLevelAt(DEBUG.zapLevel())
	return &impl{name: t.Name(), level: &level, sugar: l.Sugar()}
}

func (i *impl) Name() string { return i.name }

func (i *impl) Level() Level {
	switch i.level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel:
		return ERROR
	default:
		return INFO
	}
}

func (i *impl) Debugw(msg string, kv ...interface{}) { i.sugar.Debugw(msg, kv...) }
func (i *impl) Infow(msg string, kv ...interface{})  { i.sugar.Infow(msg, kv...) }
func (i *impl) Warnw(msg string, kv ...interface{})  { i.sugar.Warnw(msg, kv...) }
func (i *impl) Errorw(msg string, kv ...interface{}) { i.sugar.Errorw(msg, kv...) }

func (i *impl) Sublogger(name string) Logger {
	return &impl{name: i.name + "." + name, level: i.level, sugar: i.sugar.Named(name)}
}

func (i *impl) With(kv ...interface{}) Logger {
	return &impl{name: i.name, level: i.level, sugar: i.sugar.With(kv...)}
}

// Package log provides the module-scoped loggers used throughout this
// repository, in the same spirit as the teacher's log.NewModuleLogger(...)
// call sites.
package log

import (
	"go.uber.org/zap"
)

// Module names, one per package that keeps a package-level logger.
const (
	Primitives   = "primitives"
	Account      = "account"
	AccountsTree = "accountstree"
	TxCache      = "txcache"
	Storage      = "storage"
	ChainStore   = "chainstore"
	Blockchain   = "blockchain"
	Event        = "event"
	P2P          = "p2p"
)

// Logger is the minimal structured-logging surface this repo depends on.
type Logger interface {
	Trace(msg string, kv ...interface{})
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
}

type zapLogger struct {
	module string
	sugar  *zap.SugaredLogger
}

var base = mustBuild()

func mustBuild() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger; logging must never be able to crash
		// the consensus core.
		return zap.NewNop()
	}
	return l
}

// NewModuleLogger returns a logger tagged with the given module name,
// mirroring the teacher's per-package `logger = log.NewModuleLogger(...)`
// idiom.
func NewModuleLogger(module string) Logger {
	return &zapLogger{module: module, sugar: base.Sugar().With("module", module)}
}

func (l *zapLogger) Trace(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *zapLogger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

// Package native binds the libsvm shared library at run time with purego and
// exposes it as an svm.Engine. No cgo toolchain is needed to build it; the
// library is located when New is called.
package native

import (
	"sync/atomic"

	"go.uber.org/zap"

	"svmbridge/internal/svm"
)

// Engine trains and classifies through libsvm. Handles it returns own native
// memory and must be closed.
type Engine struct {
	library string
	logger  *zap.Logger
	lib     *library

	open  int64
	bytes int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLibrary loads libsvm from path instead of searching DefaultLibraries.
func WithLibrary(path string) Option {
	return func(e *Engine) { e.library = path }
}

// WithLogger sets the logger. libsvm's training output is logged at debug.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New loads libsvm. It fails with svm.KindUnavailable when the library cannot
// be found or lacks a required symbol.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	names := DefaultLibraries()
	if e.library != "" {
		names = []string{e.library}
	}
	lib, err := load(names)
	if err != nil {
		return nil, svm.Wrap("load", svm.KindUnavailable, err)
	}
	e.lib = lib
	lib.setLogger(e.logger)
	e.logger.Debug("loaded libsvm", zap.String("path", lib.path), zap.Int("version", lib.version))
	return e, nil
}

// Open returns the number of handles that have not been closed.
func (e *Engine) Open() int {
	return int(atomic.LoadInt64(&e.open))
}

// Allocated returns the native bytes currently held by open handles.
func (e *Engine) Allocated() int64 {
	return atomic.LoadInt64(&e.bytes)
}

var _ svm.Engine = (*Engine)(nil)

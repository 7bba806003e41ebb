//go:build !(linux || darwin || freebsd)

package native

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"svmbridge/internal/feature"
	"svmbridge/internal/svm"
)

type library struct {
	path    string
	version int
}

// DefaultLibraries is empty where the binding is not supported.
func DefaultLibraries() []string { return nil }

func load([]string) (*library, error) {
	return nil, errors.Errorf("libsvm binding is not supported on %s", runtime.GOOS)
}

func (l *library) setLogger(*zap.Logger) {}

// Train implements svm.Engine.
func (e *Engine) Train(context.Context, []*feature.Labeled, *svm.Params) (svm.Handle, error) {
	return nil, svm.E("train", svm.KindUnavailable, "libsvm binding is not supported on %s", runtime.GOOS)
}

// Classify implements svm.Engine.
func (e *Engine) Classify(svm.Handle, *feature.Vector) (float64, error) {
	return 0, svm.E("classify", svm.KindUnavailable, "libsvm binding is not supported on %s", runtime.GOOS)
}

package svm

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"svmbridge/internal/feature"
	"svmbridge/internal/model"
)

// Interface is the stateful proxy most callers use. It keeps the most
// recently trained engine model for ClassifyNative and hands callers a Go
// copy of each model it trains.
type Interface struct {
	engine    Engine
	logger    *zap.Logger
	sortInput bool

	mu      sync.RWMutex
	current Handle
}

// Option configures an Interface.
type Option func(*Interface)

// WithLogger sets the logger; the default discards.
func WithLogger(l *zap.Logger) Option {
	return func(i *Interface) { i.logger = l }
}

// WithSortInputVectors controls sorting of input vectors by dimension before
// they reach the engine. On by default; turn it off only for input that is
// known to be sorted.
func WithSortInputVectors(on bool) Option {
	return func(i *Interface) { i.sortInput = on }
}

// NewInterface wraps engine.
func NewInterface(engine Engine, opts ...Option) *Interface {
	i := &Interface{engine: engine, logger: zap.NewNop(), sortInput: true}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// TrainModelDefault trains with DefaultParams.
func (i *Interface) TrainModelDefault(ctx context.Context, data []*feature.Labeled) (*model.Model, error) {
	return i.TrainModel(ctx, data, DefaultParams())
}

// TrainModelArgs trains with parameters parsed from engine command-line
// options.
func (i *Interface) TrainModelArgs(ctx context.Context, data []*feature.Labeled, argv []string) (*model.Model, error) {
	params, err := ParseArgs(argv)
	if err != nil {
		return nil, err
	}
	return i.TrainModel(ctx, data, params)
}

// TrainModel trains a model, makes it the current engine model and returns
// its Go representation. Caller slices are never modified.
func (i *Interface) TrainModel(ctx context.Context, data []*feature.Labeled, params *Params) (*model.Model, error) {
	if i.sortInput {
		data = sortedCopy(data)
	}
	h, err := i.engine.Train(ctx, data, params)
	if err != nil {
		return nil, err
	}
	m, err := h.Export()
	if err != nil {
		if cerr := h.Close(); cerr != nil {
			i.logger.Warn("release unexported model", zap.Error(cerr))
		}
		return nil, err
	}

	i.mu.Lock()
	prev := i.current
	i.current = h
	i.mu.Unlock()
	if prev != nil {
		if err := prev.Close(); err != nil {
			i.logger.Warn("release previous model", zap.Error(err))
		}
	}

	i.logger.Info("trained model",
		zap.Int("vectors", len(data)),
		zap.Stringer("svm_type", m.SVMType),
		zap.Stringer("kernel", m.Kernel.Type),
		zap.Int("support_vectors", m.TotalSV()),
	)
	return m, nil
}

// ClassifyNative scores v against the current engine model.
func (i *Interface) ClassifyNative(v *feature.Vector) (float64, error) {
	if v == nil {
		return 0, E("classify", KindNilVector, "feature vector is nil")
	}
	if i.sortInput && !v.Sorted() {
		v = v.Clone()
		v.SortByDimension()
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.current == nil {
		return 0, E("classify", KindUninitialized, "no model has been trained")
	}
	return i.engine.Classify(i.current, v)
}

// Close releases the current engine model.
func (i *Interface) Close() error {
	i.mu.Lock()
	h := i.current
	i.current = nil
	i.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.Close()
}

func sortedCopy(data []*feature.Labeled) []*feature.Labeled {
	out := make([]*feature.Labeled, len(data))
	for n, v := range data {
		if v != nil && !v.Sorted() {
			v = v.Clone()
			v.SortByDimension()
		}
		out[n] = v
	}
	return out
}

// Package svm declares the boundary between Go callers and an external SVM
// engine: two entry points with a fixed parameter order, handles with explicit
// ownership, and an enumerable error taxonomy.
package svm

import (
	"context"
	"math"

	"svmbridge/internal/feature"
	"svmbridge/internal/model"
)

// Engine is implemented by every SVM backend.
//
// Train borrows data and params for the duration of the call; the engine
// copies what it needs. The returned Handle is owned by the caller, who must
// Close it. Classify borrows v and reads the model behind h.
type Engine interface {
	Train(ctx context.Context, data []*feature.Labeled, params *Params) (Handle, error)
	Classify(h Handle, v *feature.Vector) (float64, error)
}

// Handle is a trained model living on the engine side.
type Handle interface {
	// Classify scores v. Safe for concurrent use.
	Classify(v *feature.Vector) (float64, error)
	// Export snapshots the decision function as a Go value owned by the caller.
	Export() (*model.Model, error)
	// Close releases engine memory. Further calls fail with KindReleased.
	Close() error
}

// CheckVector validates a vector about to be classified.
func CheckVector(v *feature.Vector) error {
	if v == nil {
		return E("classify", KindNilVector, "feature vector is nil")
	}
	if !v.Sorted() {
		return E("classify", KindMalformedVector, "dimensions not ascending")
	}
	if err := v.Validate(); err != nil {
		return Wrap("classify", KindMalformedVector, err)
	}
	return nil
}

// FiniteScore rejects a non-finite engine result.
func FiniteScore(score float64) (float64, error) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, E("classify", KindEngine, "engine returned non-finite score %v", score)
	}
	return score, nil
}

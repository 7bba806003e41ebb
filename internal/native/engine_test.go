//go:build linux || darwin || freebsd

package native

import (
	"context"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svmbridge/internal/feature"
	"svmbridge/internal/model"
	"svmbridge/internal/svm"
)

func TestCLayouts(t *testing.T) {
	if unsafe.Sizeof(uintptr(0)) != 8 {
		t.Skip("layouts are checked on 64-bit platforms")
	}
	assert.Equal(t, uintptr(16), unsafe.Sizeof(cNode{}))
	assert.Equal(t, uintptr(24), unsafe.Sizeof(cProblem{}))
	assert.Equal(t, uintptr(104), unsafe.Sizeof(cParameter{}))
	assert.Equal(t, uintptr(56), unsafe.Offsetof(cParameter{}.NrWeight))
	assert.Equal(t, uintptr(80), unsafe.Offsetof(cParameter{}.Nu))
	assert.Equal(t, uintptr(100), unsafe.Offsetof(cParameter{}.Probability))
}

func TestFillNodesTerminates(t *testing.T) {
	v := &feature.Vector{Factor: 1, Dims: []int{1, 4}, Vals: []float64{0.5, -2}}
	nodes := make([]cNode, 3)
	assert.Equal(t, 3, fillNodes(nodes, v))
	assert.Equal(t, []cNode{{1, 0.5}, {4, -2}, {-1, 0}}, nodes)
}

func TestGoString(t *testing.T) {
	b := []byte("nu is infeasible\x00trailing")
	assert.Equal(t, "nu is infeasible", goString(uintptr(unsafe.Pointer(&b[0]))))
	assert.Equal(t, "", goString(0))
}

func TestMissingLibraryIsUnavailable(t *testing.T) {
	_, err := New(WithLibrary("/nonexistent/libsvm.so"))
	require.Error(t, err)
	assert.Equal(t, svm.KindUnavailable, svm.KindOf(err))
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New()
	if err != nil {
		t.Skipf("libsvm not installed: %v", err)
	}
	return e
}

func trainingSet(t *testing.T, negativeFirst bool) []*feature.Labeled {
	t.Helper()
	var pos, neg []*feature.Labeled
	for _, p := range [][2]float64{{2, 2}, {3, 3}, {2, 3}, {3, 2}} {
		v, err := feature.NewLabeled(1, []int{1, 2}, []float64{p[0], p[1]})
		require.NoError(t, err)
		pos = append(pos, v)
		w, err := feature.NewLabeled(-1, []int{1, 2}, []float64{-p[0], -p[1]})
		require.NoError(t, err)
		neg = append(neg, w)
	}
	if negativeFirst {
		return append(neg, pos...)
	}
	return append(pos, neg...)
}

func TestTrainMatchesExportedModel(t *testing.T) {
	e := newEngine(t)
	for _, negativeFirst := range []bool{false, true} {
		data := trainingSet(t, negativeFirst)
		p := svm.DefaultParams()
		p.Kernel = model.Linear

		h, err := e.Train(context.Background(), data, p)
		require.NoError(t, err)
		m, err := h.Export()
		require.NoError(t, err)
		assert.ElementsMatch(t, []int{-1, 1}, m.Labels)

		for _, v := range data {
			native, err := e.Classify(h, &v.Vector)
			require.NoError(t, err)
			assert.Equal(t, v.Label > 0, native > 0)

			local, err := m.Classify(&v.Vector)
			require.NoError(t, err)
			assert.InDelta(t, native, local, 1e-6)
		}
		assert.True(t, e.Allocated() > 0)
		require.NoError(t, h.Close())
		require.NoError(t, h.Close())

		_, err = e.Classify(h, &data[0].Vector)
		assert.Equal(t, svm.KindReleased, svm.KindOf(err))
	}
	assert.Equal(t, 0, e.Open())
	assert.Equal(t, int64(0), e.Allocated())
}

func TestTrainRejectsBadInput(t *testing.T) {
	e := newEngine(t)
	_, err := e.Train(context.Background(), nil, svm.DefaultParams())
	assert.Equal(t, svm.KindEmptyTrainingSet, svm.KindOf(err))

	p := svm.DefaultParams()
	p.C = -1
	_, err = e.Train(context.Background(), trainingSet(t, false), p)
	assert.Equal(t, svm.KindInvalidParameter, svm.KindOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Train(ctx, trainingSet(t, false), svm.DefaultParams())
	assert.Equal(t, svm.KindCanceled, svm.KindOf(err))
}

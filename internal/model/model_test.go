package model

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svmbridge/internal/feature"
)

func vec(t *testing.T, dims []int, vals []float64) *feature.Vector {
	t.Helper()
	v, err := feature.NewVector(dims, vals)
	require.NoError(t, err)
	return v
}

func linearModel(t *testing.T, labels []int) *Model {
	t.Helper()
	return &Model{
		SVMType: CSVC,
		Kernel:  Kernel{Type: Linear},
		NrClass: 2,
		Labels:  labels,
		NrSV:    []int{1, 1},
		Rho:     []float64{0},
		SV: []*feature.Vector{
			vec(t, []int{1}, []float64{1}),
			vec(t, []int{1}, []float64{-1}),
		},
		Coef: [][]float64{{0.5, -0.5}},
	}
}

func TestClassifyOrientsTowardsLargerLabel(t *testing.T) {
	x := vec(t, []int{1}, []float64{2})

	score, err := linearModel(t, []int{1, -1}).Classify(x)
	require.NoError(t, err)
	assert.Equal(t, 2.0, score)

	score, err = linearModel(t, []int{-1, 1}).Classify(x)
	require.NoError(t, err)
	assert.Equal(t, -2.0, score)
}

func TestClassifySortsWithoutMutating(t *testing.T) {
	m := linearModel(t, []int{1, -1})
	m.SV[0] = vec(t, []int{1, 2}, []float64{1, 1})
	x := vec(t, []int{2, 1}, []float64{3, 1})

	score, err := m.Classify(x)
	require.NoError(t, err)
	// 0.5*(1+3) + -0.5*(-1)
	assert.Equal(t, 2.5, score)
	assert.Equal(t, []int{2, 1}, x.Dims)
}

func TestClassifyRejectsBadInput(t *testing.T) {
	m := linearModel(t, []int{1, -1})
	_, err := m.Classify(nil)
	assert.Error(t, err)
	_, err = m.Classify(&feature.Vector{Dims: []int{1}, Vals: []float64{math.Inf(1)}})
	assert.Error(t, err)
}

func TestKernels(t *testing.T) {
	a := vec(t, []int{1, 3}, []float64{1, 2})
	b := vec(t, []int{2, 3}, []float64{4, 1})

	assert.Equal(t, 2.0, Kernel{Type: Linear}.Evaluate(a, b))
	assert.Equal(t, 9.0, Kernel{Type: Poly, Degree: 2, Gamma: 1, Coef0: 1}.Evaluate(a, b))
	// squared distance: 1 + 16 + 1
	assert.InDelta(t, math.Exp(-0.5*18), Kernel{Type: RBF, Gamma: 0.5}.Evaluate(a, b), 1e-12)
	assert.InDelta(t, math.Tanh(0.1*2), Kernel{Type: Sigmoid, Gamma: 0.1}.Evaluate(a, b), 1e-12)
}

func TestMultiClassVotes(t *testing.T) {
	// three classes, one support vector each, linear kernel on one dimension
	m := &Model{
		SVMType: CSVC,
		Kernel:  Kernel{Type: Linear},
		NrClass: 3,
		Labels:  []int{1, 2, 3},
		NrSV:    []int{1, 1, 1},
		Rho:     []float64{0, 0, 0},
		SV: []*feature.Vector{
			vec(t, []int{1}, []float64{1}),
			vec(t, []int{2}, []float64{1}),
			vec(t, []int{3}, []float64{1}),
		},
		Coef: [][]float64{
			{1, -1, -1},
			{1, 1, -1},
		},
	}
	require.NoError(t, m.Validate())

	score, err := m.Classify(vec(t, []int{1}, []float64{1}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	score, err = m.Classify(vec(t, []int{3}, []float64{1}))
	require.NoError(t, err)
	assert.Equal(t, 3.0, score)
}

func TestRegressionAndOneClassScores(t *testing.T) {
	m := &Model{
		SVMType: EpsilonSVR,
		Kernel:  Kernel{Type: Linear},
		NrClass: 2,
		Rho:     []float64{1},
		SV:      []*feature.Vector{vec(t, []int{1}, []float64{1})},
		Coef:    [][]float64{{2}},
	}
	require.NoError(t, m.Validate())
	score, err := m.Classify(vec(t, []int{1}, []float64{3}))
	require.NoError(t, err)
	assert.Equal(t, 5.0, score)

	m.SVMType = OneClass
	predicted, decs := m.DecisionValues(vec(t, []int{1}, []float64{0.25}))
	assert.Equal(t, -1.0, predicted)
	assert.Equal(t, -0.5, decs[0])
}

func TestValidate(t *testing.T) {
	m := linearModel(t, []int{1, -1})
	require.NoError(t, m.Validate())

	m.NrSV = []int{2, 1}
	assert.Error(t, m.Validate())

	m = linearModel(t, []int{1, -1})
	m.Coef[0] = m.Coef[0][:1]
	assert.Error(t, m.Validate())

	m = linearModel(t, []int{1, -1})
	m.Kernel.Type = Precomputed
	assert.Error(t, m.Validate())

	// sums to total_sv but would index before the first support vector
	m = linearModel(t, []int{1, -1})
	m.NrSV = []int{-1, 3}
	assert.Error(t, m.Validate())

	m = linearModel(t, []int{1, -1})
	m.NrClass = MaxClasses + 1
	assert.Error(t, m.Validate())
}

func rbfModel(t *testing.T) *Model {
	t.Helper()
	return &Model{
		SVMType: CSVC,
		Kernel:  Kernel{Type: RBF, Gamma: 0.25},
		NrClass: 2,
		Labels:  []int{1, -1},
		NrSV:    []int{2, 1},
		Rho:     []float64{-0.125},
		ProbA:   []float64{-2.5},
		ProbB:   []float64{0.01},
		SV: []*feature.Vector{
			vec(t, []int{1, 4}, []float64{0.5, 1}),
			vec(t, []int{2}, []float64{-1.75}),
			vec(t, []int{1, 2, 3}, []float64{0.1, 0.2, 0.3}),
		},
		Coef: [][]float64{{1, 0.3333333333333333, -1.3333333333333333}},
	}
}

func TestTextRoundTrip(t *testing.T) {
	m := rbfModel(t)
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, m))
	assert.True(t, strings.HasPrefix(buf.String(), "svm_type c_svc\nkernel_type rbf\ngamma 0.25\n"))

	got, err := ReadText(&buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestReadTextEngineOutput(t *testing.T) {
	src := `svm_type c_svc
kernel_type linear
nr_class 2
total_sv 2
rho 0
label 1 -1
nr_sv 1 1
SV
0.5 1:1
-0.5 1:-1
`
	m, err := ReadText(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, linearModel(t, []int{1, -1}), m)
}

func TestReadTextErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "svm_type c_svc\nbogus 1\nSV\n",
		"no SV section":  "svm_type c_svc\nkernel_type linear\nnr_class 2\n",
		"total_sv":       "svm_type c_svc\nkernel_type linear\nnr_class 2\ntotal_sv 3\nrho 0\nlabel 1 -1\nnr_sv 1 1\nSV\n1 1:1\n-1 1:2\n",
		"bad token":      "svm_type c_svc\nkernel_type linear\nnr_class 2\ntotal_sv 1\nrho 0\nlabel 1 -1\nnr_sv 1 0\nSV\n1 1=1\n",
		"bad svm type":   "svm_type c_svm\n",
		"negative nr_sv": "svm_type c_svc\nkernel_type linear\nnr_class 2\ntotal_sv 2\nrho 0\nlabel 1 -1\nnr_sv -1 3\nSV\n1 1:1\n-1 1:-1\n",
		"huge nr_class":  "svm_type c_svc\nkernel_type linear\nnr_class 100000000000000\nSV\n",
	}
	for name, src := range cases {
		_, err := ReadText(strings.NewReader(src))
		assert.Error(t, err, name)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	m := rbfModel(t)
	b, err := m.MarshalBinary()
	require.NoError(t, err)

	got := &Model{}
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, m, got)

	assert.Error(t, got.UnmarshalBinary(b[:len(b)-3]))

	bad := appendVarint(nil, fieldNrClass, 1<<46)
	assert.Error(t, got.UnmarshalBinary(bad))
}

func TestSaveLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	m := rbfModel(t)
	x := vec(t, []int{1, 2}, []float64{0.3, -1})
	want, err := m.Classify(x)
	require.NoError(t, err)

	for _, name := range []string{"svm.model", "nested/svm.bin"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Save(path, m))
		loaded, err := Load(path)
		require.NoError(t, err)
		got, err := loaded.Classify(x)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestParseNames(t *testing.T) {
	k, err := ParseKernelType("poly")
	require.NoError(t, err)
	assert.Equal(t, Poly, k)
	assert.Equal(t, "polynomial", k.String())

	s, err := ParseSVMType("NU_SVR")
	require.NoError(t, err)
	assert.Equal(t, NuSVR, s)
	assert.False(t, s.IsClassification())
}

package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"svmbridge/internal/feature"
)

// SVMType selects the formulation a model was trained with.
type SVMType int

const (
	CSVC SVMType = iota
	NuSVC
	OneClass
	EpsilonSVR
	NuSVR
)

var svmTypeNames = []string{"c_svc", "nu_svc", "one_class", "epsilon_svr", "nu_svr"}

func (t SVMType) String() string {
	if t < 0 || int(t) >= len(svmTypeNames) {
		return fmt.Sprintf("svm_type(%d)", int(t))
	}
	return svmTypeNames[t]
}

// IsClassification reports whether the type predicts class labels.
func (t SVMType) IsClassification() bool {
	return t == CSVC || t == NuSVC
}

// ParseSVMType accepts the model-file names ("c_svc", ...).
func ParseSVMType(s string) (SVMType, error) {
	for i, name := range svmTypeNames {
		if strings.EqualFold(s, name) {
			return SVMType(i), nil
		}
	}
	return 0, errors.Errorf("model: unknown svm type %q", s)
}

// KernelType selects the kernel function.
type KernelType int

const (
	Linear KernelType = iota
	Poly
	RBF
	Sigmoid
	Precomputed
)

var kernelTypeNames = []string{"linear", "polynomial", "rbf", "sigmoid", "precomputed"}

func (k KernelType) String() string {
	if k < 0 || int(k) >= len(kernelTypeNames) {
		return fmt.Sprintf("kernel_type(%d)", int(k))
	}
	return kernelTypeNames[k]
}

// ParseKernelType accepts the model-file names ("rbf", ...); "poly" is accepted
// as a short form of "polynomial".
func ParseKernelType(s string) (KernelType, error) {
	if strings.EqualFold(s, "poly") {
		return Poly, nil
	}
	for i, name := range kernelTypeNames {
		if strings.EqualFold(s, name) {
			return KernelType(i), nil
		}
	}
	return 0, errors.Errorf("model: unknown kernel type %q", s)
}

// Kernel is a Mercer kernel over sparse vectors with ascending dimensions.
type Kernel struct {
	Type   KernelType
	Degree int
	Gamma  float64
	Coef0  float64
}

// Evaluate returns K(a, b).
func (k Kernel) Evaluate(a, b *feature.Vector) float64 {
	switch k.Type {
	case Linear:
		return dot(a, b)
	case Poly:
		return powi(k.Gamma*dot(a, b)+k.Coef0, k.Degree)
	case RBF:
		return math.Exp(-k.Gamma * squaredDistance(a, b))
	case Sigmoid:
		return math.Tanh(k.Gamma*dot(a, b) + k.Coef0)
	}
	return math.NaN()
}

func dot(a, b *feature.Vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a.Dims) && j < len(b.Dims) {
		switch {
		case a.Dims[i] == b.Dims[j]:
			sum += a.Vals[i] * b.Vals[j]
			i++
			j++
		case a.Dims[i] > b.Dims[j]:
			j++
		default:
			i++
		}
	}
	return sum
}

func squaredDistance(a, b *feature.Vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a.Dims) && j < len(b.Dims) {
		switch {
		case a.Dims[i] == b.Dims[j]:
			d := a.Vals[i] - b.Vals[j]
			sum += d * d
			i++
			j++
		case a.Dims[i] > b.Dims[j]:
			sum += b.Vals[j] * b.Vals[j]
			j++
		default:
			sum += a.Vals[i] * a.Vals[i]
			i++
		}
	}
	for ; i < len(a.Dims); i++ {
		sum += a.Vals[i] * a.Vals[i]
	}
	for ; j < len(b.Dims); j++ {
		sum += b.Vals[j] * b.Vals[j]
	}
	return sum
}

func powi(base float64, times int) float64 {
	tmp, ret := base, 1.0
	for t := times; t > 0; t /= 2 {
		if t%2 == 1 {
			ret *= tmp
		}
		tmp *= tmp
	}
	return ret
}

// MaxClasses bounds nr_class in models read from files.
const MaxClasses = 1 << 16

// Model is a trained decision function. For k classes there are k(k-1)/2
// pairwise decision functions; Coef holds k-1 coefficient rows over the SV
// list, laid out the way the engine writes model files.
type Model struct {
	SVMType SVMType
	Kernel  Kernel
	NrClass int
	Labels  []int
	NrSV    []int
	Rho     []float64
	ProbA   []float64
	ProbB   []float64
	SV      []*feature.Vector
	Coef    [][]float64
}

// TotalSV returns the number of support vectors.
func (m *Model) TotalSV() int {
	return len(m.SV)
}

// Validate checks that the slices agree with each other.
func (m *Model) Validate() error {
	if m.SVMType < CSVC || m.SVMType > NuSVR {
		return errors.Errorf("model: unknown svm type %d", int(m.SVMType))
	}
	if m.Kernel.Type == Precomputed {
		return errors.New("model: precomputed kernels are not supported")
	}
	if m.Kernel.Type < Linear || m.Kernel.Type > Sigmoid {
		return errors.Errorf("model: unknown kernel type %d", int(m.Kernel.Type))
	}
	if m.SVMType.IsClassification() && (m.NrClass < 2 || m.NrClass > MaxClasses) {
		return errors.Errorf("model: nr_class %d out of range [2, %d]", m.NrClass, MaxClasses)
	}
	nrClass := m.NrClass
	if !m.SVMType.IsClassification() {
		nrClass = 2
	}
	pairs := nrClass * (nrClass - 1) / 2
	if len(m.Rho) != pairs {
		return errors.Errorf("model: %d rho values, want %d", len(m.Rho), pairs)
	}
	if len(m.Coef) != nrClass-1 {
		return errors.Errorf("model: %d coefficient rows, want %d", len(m.Coef), nrClass-1)
	}
	for i, row := range m.Coef {
		if len(row) != len(m.SV) {
			return errors.Errorf("model: coefficient row %d has %d entries for %d support vectors", i, len(row), len(m.SV))
		}
	}
	if m.SVMType.IsClassification() {
		if len(m.Labels) != nrClass {
			return errors.Errorf("model: %d labels, want %d", len(m.Labels), nrClass)
		}
		if len(m.NrSV) != nrClass {
			return errors.Errorf("model: %d nr_sv values, want %d", len(m.NrSV), nrClass)
		}
		total := 0
		for i, n := range m.NrSV {
			if n < 0 || n > len(m.SV) {
				return errors.Errorf("model: nr_sv[%d] is %d", i, n)
			}
			total += n
		}
		if total != len(m.SV) {
			return errors.Errorf("model: nr_sv sums to %d, total_sv is %d", total, len(m.SV))
		}
	}
	for i, sv := range m.SV {
		if sv == nil {
			return errors.Errorf("model: support vector %d is nil", i)
		}
		if !sv.Sorted() {
			return errors.Errorf("model: support vector %d has unsorted dimensions", i)
		}
	}
	return nil
}

// DecisionValues evaluates every pairwise decision function for v, whose
// dimensions must be ascending. The returned value is the engine's raw
// prediction: a label for classification, +1/-1 for one-class and the
// regression value otherwise.
func (m *Model) DecisionValues(v *feature.Vector) (float64, []float64) {
	if !m.SVMType.IsClassification() {
		var sum float64
		for i, sv := range m.SV {
			sum += m.Coef[0][i] * m.Kernel.Evaluate(v, sv)
		}
		sum -= m.Rho[0]
		if m.SVMType == OneClass {
			if sum > 0 {
				return 1, []float64{sum}
			}
			return -1, []float64{sum}
		}
		return sum, []float64{sum}
	}

	kvalue := make([]float64, len(m.SV))
	for i, sv := range m.SV {
		kvalue[i] = m.Kernel.Evaluate(v, sv)
	}
	start := make([]int, m.NrClass)
	for i := 1; i < m.NrClass; i++ {
		start[i] = start[i-1] + m.NrSV[i-1]
	}
	votes := make([]int, m.NrClass)
	decs := make([]float64, 0, m.NrClass*(m.NrClass-1)/2)
	p := 0
	for i := 0; i < m.NrClass; i++ {
		for j := i + 1; j < m.NrClass; j++ {
			var sum float64
			si, sj := start[i], start[j]
			coef1, coef2 := m.Coef[j-1], m.Coef[i]
			for k := 0; k < m.NrSV[i]; k++ {
				sum += coef1[si+k] * kvalue[si+k]
			}
			for k := 0; k < m.NrSV[j]; k++ {
				sum += coef2[sj+k] * kvalue[sj+k]
			}
			sum -= m.Rho[p]
			decs = append(decs, sum)
			if sum > 0 {
				votes[i]++
			} else {
				votes[j]++
			}
			p++
		}
	}
	best := 0
	for i := 1; i < m.NrClass; i++ {
		if votes[i] > votes[best] {
			best = i
		}
	}
	return float64(m.Labels[best]), decs
}

// Score maps an engine prediction to the bridge's score convention: two-class
// models yield a decision value that is positive for the larger label,
// multi-class models yield the predicted label and the remaining types yield
// their decision value.
func Score(svmType SVMType, labels []int, predicted float64, decs []float64) float64 {
	if !svmType.IsClassification() {
		return decs[0]
	}
	if len(labels) == 2 {
		return Orient(decs[0], labels)
	}
	return predicted
}

// Orient flips a two-class decision value, which the engine reports as
// positive for labels[0], so that positive means the larger label.
func Orient(dec float64, labels []int) float64 {
	if len(labels) == 2 && labels[0] < labels[1] {
		return -dec
	}
	return dec
}

// Classify scores v against the model. v is not modified.
func (m *Model) Classify(v *feature.Vector) (float64, error) {
	if v == nil {
		return 0, errors.New("model: nil vector")
	}
	if !v.Sorted() {
		v = v.Clone()
		v.SortByDimension()
	}
	if err := v.Validate(); err != nil {
		return 0, err
	}
	predicted, decs := m.DecisionValues(v)
	return Score(m.SVMType, m.Labels, predicted, decs), nil
}

package svm

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"svmbridge/internal/feature"
	"svmbridge/internal/model"
)

// Params configures training. The option set is the engine's.
type Params struct {
	SVMType model.SVMType
	Kernel  model.KernelType
	Degree  int
	// Gamma of zero means 1/num_features, resolved at training time.
	Gamma       float64
	Coef0       float64
	CacheSizeMB float64
	Eps         float64
	C           float64
	Nu          float64
	P           float64
	Shrinking   bool
	Probability bool
	// Weights scales C per class label (C-SVC only).
	Weights map[int]float64
}

// DefaultParams returns the engine's documented defaults.
func DefaultParams() *Params {
	return &Params{
		SVMType:     model.CSVC,
		Kernel:      model.RBF,
		Degree:      3,
		Gamma:       0,
		Coef0:       0,
		CacheSizeMB: 100,
		Eps:         1e-3,
		C:           1,
		Nu:          0.5,
		P:           0.1,
		Shrinking:   true,
		Probability: false,
	}
}

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	c := *p
	if p.Weights != nil {
		c.Weights = make(map[int]float64, len(p.Weights))
		for k, v := range p.Weights {
			c.Weights[k] = v
		}
	}
	return &c
}

// WeightLabels returns the weighted labels in ascending order.
func (p *Params) WeightLabels() []int {
	labels := make([]int, 0, len(p.Weights))
	for l := range p.Weights {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// Resolve returns a copy with data-dependent defaults filled in.
func (p *Params) Resolve(maxDim int) *Params {
	c := p.Clone()
	if c.Gamma == 0 && maxDim > 0 {
		c.Gamma = 1 / float64(maxDim)
	}
	return c
}

// Validate applies the engine's parameter rules that do not depend on data.
func (p *Params) Validate() error {
	if p == nil {
		return E("train", KindInvalidParameter, "nil parameters")
	}
	bad := func(format string, args ...interface{}) error {
		return E("train", KindInvalidParameter, format, args...)
	}
	switch p.SVMType {
	case model.CSVC, model.NuSVC, model.OneClass, model.EpsilonSVR, model.NuSVR:
	default:
		return bad("unknown svm type %d", int(p.SVMType))
	}
	switch p.Kernel {
	case model.Linear, model.Poly, model.RBF, model.Sigmoid:
	case model.Precomputed:
		return bad("precomputed kernels are not supported")
	default:
		return bad("unknown kernel type %d", int(p.Kernel))
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"gamma", p.Gamma}, {"coef0", p.Coef0}, {"cache_size", p.CacheSizeMB},
		{"eps", p.Eps}, {"C", p.C}, {"nu", p.Nu}, {"p", p.P},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return bad("%s is %v", f.name, f.v)
		}
	}
	if p.Gamma < 0 {
		return bad("gamma < 0")
	}
	if p.Degree < 0 {
		return bad("degree of polynomial kernel < 0")
	}
	if p.CacheSizeMB <= 0 {
		return bad("cache_size <= 0")
	}
	if p.Eps <= 0 {
		return bad("eps <= 0")
	}
	switch p.SVMType {
	case model.CSVC, model.EpsilonSVR, model.NuSVR:
		if p.C <= 0 {
			return bad("C <= 0")
		}
	}
	switch p.SVMType {
	case model.NuSVC, model.OneClass, model.NuSVR:
		if p.Nu <= 0 || p.Nu > 1 {
			return bad("nu <= 0 or nu > 1")
		}
	}
	if p.SVMType == model.EpsilonSVR && p.P < 0 {
		return bad("p < 0")
	}
	if p.Probability && p.SVMType == model.OneClass {
		return bad("one-class SVM probability output not supported")
	}
	for l, w := range p.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return bad("weight for label %d is %v", l, w)
		}
	}
	return nil
}

// ParseArgs builds parameters from the engine's training command-line
// options, starting from DefaultParams.
func ParseArgs(argv []string) (*Params, error) {
	p := DefaultParams()
	for i := 0; i < len(argv); i++ {
		flag := argv[i]
		if !strings.HasPrefix(flag, "-") || len(flag) < 2 {
			return nil, E("train", KindInvalidParameter, "unexpected argument %q", flag)
		}
		if flag == "-q" {
			continue
		}
		if i+1 >= len(argv) {
			return nil, E("train", KindInvalidParameter, "option %s needs a value", flag)
		}
		i++
		val := argv[i]
		var err error
		switch flag[1] {
		case 's':
			var n int
			n, err = strconv.Atoi(val)
			p.SVMType = model.SVMType(n)
		case 't':
			var n int
			n, err = strconv.Atoi(val)
			p.Kernel = model.KernelType(n)
		case 'd':
			p.Degree, err = strconv.Atoi(val)
		case 'g':
			p.Gamma, err = strconv.ParseFloat(val, 64)
		case 'r':
			p.Coef0, err = strconv.ParseFloat(val, 64)
		case 'c':
			p.C, err = strconv.ParseFloat(val, 64)
		case 'n':
			p.Nu, err = strconv.ParseFloat(val, 64)
		case 'p':
			p.P, err = strconv.ParseFloat(val, 64)
		case 'm':
			p.CacheSizeMB, err = strconv.ParseFloat(val, 64)
		case 'e':
			p.Eps, err = strconv.ParseFloat(val, 64)
		case 'h':
			p.Shrinking, err = parseBit(val)
		case 'b':
			p.Probability, err = parseBit(val)
		case 'w':
			var label int
			label, err = strconv.Atoi(flag[2:])
			if err == nil {
				var w float64
				w, err = strconv.ParseFloat(val, 64)
				if p.Weights == nil {
					p.Weights = make(map[int]float64)
				}
				p.Weights[label] = w
			}
		default:
			return nil, E("train", KindInvalidParameter, "unknown option %s", flag)
		}
		if err != nil {
			return nil, Wrap("train", KindInvalidParameter, errors.Wrapf(err, "option %s", flag))
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func parseBit(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, errors.Errorf("want 0 or 1, got %q", s)
}

// CheckProblem validates a training set against p. Every engine runs it
// before crossing into native code so that bad input fails the same way
// regardless of engine.
func CheckProblem(data []*feature.Labeled, p *Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if len(data) == 0 {
		return E("train", KindEmptyTrainingSet, "no training vectors")
	}
	counts := make(map[int]int)
	for i, v := range data {
		if v == nil {
			return E("train", KindNilVector, "training vector %d is nil", i)
		}
		if !v.Sorted() {
			return E("train", KindMalformedVector, "training vector %d: dimensions not ascending", i)
		}
		if err := v.Validate(); err != nil {
			return Wrap("train", KindMalformedVector, errors.Wrapf(err, "training vector %d", i))
		}
		if math.IsNaN(v.Label) || math.IsInf(v.Label, 0) {
			return E("train", KindInconsistentLabels, "training vector %d has non-finite label", i)
		}
		if p.SVMType.IsClassification() {
			if v.Label != math.Trunc(v.Label) {
				return E("train", KindInconsistentLabels, "training vector %d: class label %v is not integral", i, v.Label)
			}
			if v.Label < math.MinInt32 || v.Label > math.MaxInt32 {
				return E("train", KindInconsistentLabels, "training vector %d: class label %v does not fit the engine's label type", i, v.Label)
			}
			counts[int(v.Label)]++
		}
	}
	if !p.SVMType.IsClassification() {
		return nil
	}
	if len(counts) < 2 {
		return E("train", KindInconsistentLabels, "classification needs at least two classes, got %d", len(counts))
	}
	if p.SVMType == model.NuSVC {
		labels := make([]int, 0, len(counts))
		for l := range counts {
			labels = append(labels, l)
		}
		sort.Ints(labels)
		for i, a := range labels {
			for _, b := range labels[i+1:] {
				n1, n2 := float64(counts[a]), float64(counts[b])
				if p.Nu*(n1+n2)/2 > math.Min(n1, n2) {
					return E("train", KindInvalidParameter, "specified nu is infeasible")
				}
			}
		}
	}
	return nil
}

// MaxDim returns the largest dimension used in data.
func MaxDim(data []*feature.Labeled) int {
	max := 0
	for _, v := range data {
		if v == nil {
			continue
		}
		if d := v.MaxDim(); d > max {
			max = d
		}
	}
	return max
}

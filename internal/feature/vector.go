package feature

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformed is the cause of every invariant violation reported by Validate
// and the constructors.
var ErrMalformed = errors.New("feature: malformed vector")

// Vector is a sparse feature vector. Dims and Vals are parallel slices; a
// dimension is 1-based. Dimensions need not be sorted until the vector crosses
// into the engine.
type Vector struct {
	Factor float64
	Dims   []int
	Vals   []float64
}

// NewVector returns a vector with a factor of 1.0.
func NewVector(dims []int, vals []float64) (*Vector, error) {
	return NewVectorWithFactor(1.0, dims, vals)
}

// NewVectorWithFactor returns a vector with the given factor.
func NewVectorWithFactor(factor float64, dims []int, vals []float64) (*Vector, error) {
	if len(dims) != len(vals) {
		return nil, errors.Wrapf(ErrMalformed, "%d dimensions but %d values", len(dims), len(vals))
	}
	for _, d := range dims {
		if d < 1 {
			return nil, errors.Wrapf(ErrMalformed, "dimension %d, dimensions start at 1", d)
		}
	}
	return &Vector{Factor: factor, Dims: dims, Vals: vals}, nil
}

// Size returns the number of set dimensions.
func (v *Vector) Size() int {
	return len(v.Dims)
}

// Validate checks that the vector can be handed to an engine: parallel slices,
// 1-based dimensions, finite values and, when sorted, no repeated dimension.
func (v *Vector) Validate() error {
	if len(v.Dims) != len(v.Vals) {
		return errors.Wrapf(ErrMalformed, "%d dimensions but %d values", len(v.Dims), len(v.Vals))
	}
	for i, d := range v.Dims {
		if d < 1 {
			return errors.Wrapf(ErrMalformed, "dimension %d, dimensions start at 1", d)
		}
		if math.IsNaN(v.Vals[i]) || math.IsInf(v.Vals[i], 0) {
			return errors.Wrapf(ErrMalformed, "dimension %d has non-finite value", d)
		}
		if i > 0 && v.Dims[i-1] == d {
			return errors.Wrapf(ErrMalformed, "dimension %d repeated", d)
		}
	}
	if math.IsNaN(v.Factor) || math.IsInf(v.Factor, 0) {
		return errors.Wrap(ErrMalformed, "non-finite factor")
	}
	return nil
}

// Sorted reports whether dimensions are in ascending order.
func (v *Vector) Sorted() bool {
	return sort.IntsAreSorted(v.Dims)
}

// SortByDimension sorts dims ascending in place, permuting vals alongside.
func (v *Vector) SortByDimension() {
	if v.Sorted() {
		return
	}
	sort.Sort(byDim{v})
}

type byDim struct{ v *Vector }

func (b byDim) Len() int           { return len(b.v.Dims) }
func (b byDim) Less(i, j int) bool { return b.v.Dims[i] < b.v.Dims[j] }
func (b byDim) Swap(i, j int) {
	b.v.Dims[i], b.v.Dims[j] = b.v.Dims[j], b.v.Dims[i]
	b.v.Vals[i], b.v.Vals[j] = b.v.Vals[j], b.v.Vals[i]
}

// Clone returns a deep copy.
func (v *Vector) Clone() *Vector {
	return &Vector{
		Factor: v.Factor,
		Dims:   append([]int(nil), v.Dims...),
		Vals:   append([]float64(nil), v.Vals...),
	}
}

// Cosine returns the cosine similarity between v and other.
func (v *Vector) Cosine(other *Vector) float64 {
	values := make(map[int]float64, len(v.Dims))
	for i, d := range v.Dims {
		values[d] = v.Vals[i]
	}
	var dot float64
	for i, d := range other.Dims {
		if x, ok := values[d]; ok {
			dot += x * other.Vals[i]
		}
	}
	return dot / (v.L2Norm() * other.L2Norm())
}

// L1Norm returns the sum of the values.
func (v *Vector) L1Norm() float64 {
	var sum float64
	for _, x := range v.Vals {
		sum += x
	}
	return sum
}

// L2Norm returns the euclidean norm of the values.
func (v *Vector) L2Norm() float64 {
	var sum float64
	for _, x := range v.Vals {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// NormalizeL1 divides every positive value by the L1 norm.
func (v *Vector) NormalizeL1() {
	norm := v.L1Norm()
	for i, x := range v.Vals {
		if x > 0 {
			v.Vals[i] = x / norm
		}
	}
}

// NormalizeL2 replaces each value x by x²/‖v‖², so the values sum to one.
func (v *Vector) NormalizeL2() {
	norm := v.L2Norm()
	norm *= norm
	for i, x := range v.Vals {
		v.Vals[i] = x * x / norm
	}
}

// String renders "dim:val dim:val ...".
func (v *Vector) String() string {
	var b strings.Builder
	for i := range v.Dims {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(v.Dims[i]))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(v.Vals[i], 'g', -1, 64))
	}
	return b.String()
}

// MaxDim returns the largest dimension, or 0 for an empty vector.
func (v *Vector) MaxDim() int {
	max := 0
	for _, d := range v.Dims {
		if d > max {
			max = d
		}
	}
	return max
}

// Labeled pairs a vector with its target label and an optional query id used
// by ranking data sets.
type Labeled struct {
	Vector
	Label   float64
	QueryID int
}

// NewLabeled returns a labeled vector with a factor of 1.0.
func NewLabeled(label float64, dims []int, vals []float64) (*Labeled, error) {
	v, err := NewVector(dims, vals)
	if err != nil {
		return nil, err
	}
	return &Labeled{Vector: *v, Label: label}, nil
}

// Clone returns a deep copy.
func (l *Labeled) Clone() *Labeled {
	return &Labeled{Vector: *l.Vector.Clone(), Label: l.Label, QueryID: l.QueryID}
}

// String renders the vector as one line of SVM-light data.
func (l *Labeled) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatFloat(l.Label, 'g', -1, 64))
	if l.QueryID != 0 {
		fmt.Fprintf(&b, " qid:%d", l.QueryID)
	}
	if l.Factor != 1.0 {
		b.WriteString(" cost:")
		b.WriteString(strconv.FormatFloat(l.Factor, 'g', -1, 64))
	}
	if len(l.Dims) > 0 {
		b.WriteByte(' ')
		b.WriteString(l.Vector.String())
	}
	return b.String()
}

// Package svmtest provides an in-process svm.Engine for tests. It trains
// two-class C-SVC models with a small SMO solver over a dense kernel matrix
// and is meant for data sets of a few thousand vectors at most.
package svmtest

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"svmbridge/internal/feature"
	"svmbridge/internal/model"
	"svmbridge/internal/svm"
)

const tau = 1e-12

// Engine is an in-process svm.Engine.
type Engine struct {
	open int64
}

// New returns an Engine.
func New() *Engine {
	return &Engine{}
}

// Open returns the number of handles that have not been closed.
func (e *Engine) Open() int {
	return int(atomic.LoadInt64(&e.open))
}

// Train implements svm.Engine.
func (e *Engine) Train(ctx context.Context, data []*feature.Labeled, params *svm.Params) (svm.Handle, error) {
	if err := svm.CheckProblem(data, params); err != nil {
		return nil, err
	}
	if params.SVMType != model.CSVC {
		return nil, svm.E("train", svm.KindInvalidParameter, "test engine supports c_svc only, got %s", params.SVMType)
	}
	labels := classLabels(data)
	if len(labels) != 2 {
		return nil, svm.E("train", svm.KindInvalidParameter, "test engine supports two classes, got %d", len(labels))
	}
	p := params.Resolve(svm.MaxDim(data))
	kernel := model.Kernel{Type: p.Kernel, Degree: p.Degree, Gamma: p.Gamma, Coef0: p.Coef0}

	var m *model.Model
	err := svm.Guard("train", func() error {
		var err error
		m, err = solve(ctx, data, labels, kernel, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&e.open, 1)
	return &handle{engine: e, model: m}, nil
}

// Classify implements svm.Engine.
func (e *Engine) Classify(h svm.Handle, v *feature.Vector) (float64, error) {
	th, ok := h.(*handle)
	if !ok || th.engine != e {
		return 0, svm.E("classify", svm.KindInvalidParameter, "handle was not created by this engine")
	}
	return th.Classify(v)
}

func classLabels(data []*feature.Labeled) []int {
	var labels []int
	seen := make(map[int]bool)
	for _, v := range data {
		l := int(v.Label)
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	return labels
}

func solve(ctx context.Context, data []*feature.Labeled, labels []int, kernel model.Kernel, p *svm.Params) (*model.Model, error) {
	l := len(data)
	y := make([]float64, l)
	c := make([]float64, l)
	for i, v := range data {
		y[i] = -1
		if int(v.Label) == labels[0] {
			y[i] = 1
		}
		c[i] = p.C
		if w, ok := p.Weights[int(v.Label)]; ok {
			c[i] = p.C * w
		}
	}

	q := make([][]float64, l)
	for i := range q {
		q[i] = make([]float64, l)
		for j := 0; j <= i; j++ {
			k := y[i] * y[j] * kernel.Evaluate(&data[i].Vector, &data[j].Vector)
			q[i][j] = k
			q[j][i] = k
		}
	}

	alpha := make([]float64, l)
	grad := make([]float64, l)
	for i := range grad {
		grad[i] = -1
	}

	maxIter := 100000
	if 100*l > maxIter {
		maxIter = 100 * l
	}
	for iter := 0; iter < maxIter; iter++ {
		if iter%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, svm.Wrap("train", svm.KindCanceled, err)
			}
		}
		i, j := -1, -1
		gmax, gmin := math.Inf(-1), math.Inf(1)
		for t := 0; t < l; t++ {
			v := -y[t] * grad[t]
			if (y[t] > 0 && alpha[t] < c[t]) || (y[t] < 0 && alpha[t] > 0) {
				if v > gmax {
					gmax, i = v, t
				}
			}
			if (y[t] > 0 && alpha[t] > 0) || (y[t] < 0 && alpha[t] < c[t]) {
				if v < gmin {
					gmin, j = v, t
				}
			}
		}
		if i < 0 || j < 0 || gmax-gmin < p.Eps {
			break
		}
		oldI, oldJ := alpha[i], alpha[j]
		updatePair(q, y, c, alpha, grad, i, j)
		di, dj := alpha[i]-oldI, alpha[j]-oldJ
		for t := 0; t < l; t++ {
			grad[t] += q[i][t]*di + q[j][t]*dj
		}
	}

	rho := calculateRho(y, c, alpha, grad)

	m := &model.Model{
		SVMType: model.CSVC,
		Kernel:  kernel,
		NrClass: 2,
		Labels:  labels,
		NrSV:    make([]int, 2),
		Rho:     []float64{rho},
		Coef:    make([][]float64, 1),
	}
	for class, sign := range []float64{1, -1} {
		for i, v := range data {
			if y[i] != sign || alpha[i] <= 0 {
				continue
			}
			m.NrSV[class]++
			m.SV = append(m.SV, v.Vector.Clone())
			m.Coef[0] = append(m.Coef[0], y[i]*alpha[i])
		}
	}
	for _, sv := range m.SV {
		sv.Factor = 1
	}
	return m, nil
}

func updatePair(q [][]float64, y, c, alpha, grad []float64, i, j int) {
	ci, cj := c[i], c[j]
	if y[i] != y[j] {
		quad := q[i][i] + q[j][j] + 2*q[i][j]
		if quad <= 0 {
			quad = tau
		}
		delta := (-grad[i] - grad[j]) / quad
		diff := alpha[i] - alpha[j]
		alpha[i] += delta
		alpha[j] += delta
		if diff > 0 {
			if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = diff
			}
		} else if alpha[i] < 0 {
			alpha[i] = 0
			alpha[j] = -diff
		}
		if diff > ci-cj {
			if alpha[i] > ci {
				alpha[i] = ci
				alpha[j] = ci - diff
			}
		} else if alpha[j] > cj {
			alpha[j] = cj
			alpha[i] = cj + diff
		}
		return
	}
	quad := q[i][i] + q[j][j] - 2*q[i][j]
	if quad <= 0 {
		quad = tau
	}
	delta := (grad[i] - grad[j]) / quad
	sum := alpha[i] + alpha[j]
	alpha[i] -= delta
	alpha[j] += delta
	if sum > ci {
		if alpha[i] > ci {
			alpha[i] = ci
			alpha[j] = sum - ci
		}
	} else if alpha[j] < 0 {
		alpha[j] = 0
		alpha[i] = sum
	}
	if sum > cj {
		if alpha[j] > cj {
			alpha[j] = cj
			alpha[i] = sum - cj
		}
	} else if alpha[i] < 0 {
		alpha[i] = 0
		alpha[j] = sum
	}
}

func calculateRho(y, c, alpha, grad []float64) float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	var sumFree float64
	nrFree := 0
	for i := range y {
		yg := y[i] * grad[i]
		switch {
		case alpha[i] >= c[i]:
			if y[i] < 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		case alpha[i] <= 0:
			if y[i] > 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		default:
			nrFree++
			sumFree += yg
		}
	}
	if nrFree > 0 {
		return sumFree / float64(nrFree)
	}
	return (ub + lb) / 2
}

type handle struct {
	engine *Engine

	mu     sync.RWMutex
	model  *model.Model
	closed bool
}

func (h *handle) Classify(v *feature.Vector) (float64, error) {
	if err := svm.CheckVector(v); err != nil {
		return 0, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, svm.E("classify", svm.KindReleased, "handle is closed")
	}
	predicted, decs := h.model.DecisionValues(v)
	return svm.FiniteScore(model.Score(h.model.SVMType, h.model.Labels, predicted, decs))
}

func (h *handle) Export() (*model.Model, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, svm.E("export", svm.KindReleased, "handle is closed")
	}
	b, err := h.model.MarshalBinary()
	if err != nil {
		return nil, svm.Wrap("export", svm.KindEngine, err)
	}
	m := &model.Model{}
	if err := m.UnmarshalBinary(b); err != nil {
		return nil, svm.Wrap("export", svm.KindEngine, err)
	}
	return m, nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	atomic.AddInt64(&h.engine.open, -1)
	return nil
}

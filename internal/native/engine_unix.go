//go:build linux || darwin || freebsd

package native

import (
	"context"
	"math"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"svmbridge/internal/feature"
	"svmbridge/internal/model"
	"svmbridge/internal/svm"
)

// C layouts of struct svm_node, svm_problem and svm_parameter.
type cNode struct {
	Index int32
	Value float64
}

type cProblem struct {
	L int32
	Y uintptr
	X uintptr
}

type cParameter struct {
	SVMType     int32
	KernelType  int32
	Degree      int32
	Gamma       float64
	Coef0       float64
	CacheSize   float64
	Eps         float64
	C           float64
	NrWeight    int32
	WeightLabel uintptr
	Weight      uintptr
	Nu          float64
	P           float64
	Shrinking   int32
	Probability int32
}

// arena tracks calloc'd blocks so they can be freed together.
type arena struct {
	lib  *library
	ptrs []uintptr
	size int64
}

func (a *arena) alloc(n, size uintptr) (uintptr, error) {
	if n == 0 {
		n = 1
	}
	p := a.lib.calloc(n, size)
	if p == 0 {
		return 0, svm.E("train", svm.KindResourceExhausted, "calloc of %s failed", humanize.Bytes(uint64(n*size)))
	}
	a.ptrs = append(a.ptrs, p)
	a.size += int64(n * size)
	return p, nil
}

func (a *arena) release() {
	for _, p := range a.ptrs {
		a.lib.free(p)
	}
	a.ptrs = nil
	a.size = 0
}

// problem copies data and p into native memory. The node block must outlive
// any model trained from it because the model's support vectors point into it.
func (a *arena) problem(data []*feature.Labeled, p *svm.Params) (prob, param uintptr, err error) {
	nodeSize := unsafe.Sizeof(cNode{})
	l := uintptr(len(data))
	var total uintptr
	for _, v := range data {
		total += uintptr(len(v.Dims)) + 1
	}

	nodesPtr, err := a.alloc(total, nodeSize)
	if err != nil {
		return 0, 0, err
	}
	xPtr, err := a.alloc(l, unsafe.Sizeof(uintptr(0)))
	if err != nil {
		return 0, 0, err
	}
	yPtr, err := a.alloc(l, unsafe.Sizeof(float64(0)))
	if err != nil {
		return 0, 0, err
	}
	nodes := unsafe.Slice((*cNode)(unsafe.Pointer(nodesPtr)), total)
	x := unsafe.Slice((*uintptr)(unsafe.Pointer(xPtr)), l)
	y := unsafe.Slice((*float64)(unsafe.Pointer(yPtr)), l)
	off := 0
	for i, v := range data {
		x[i] = nodesPtr + uintptr(off)*nodeSize
		y[i] = v.Label
		off += fillNodes(nodes[off:], &v.Vector)
	}

	if prob, err = a.alloc(1, unsafe.Sizeof(cProblem{})); err != nil {
		return 0, 0, err
	}
	*(*cProblem)(unsafe.Pointer(prob)) = cProblem{L: int32(l), Y: yPtr, X: xPtr}

	if param, err = a.alloc(1, unsafe.Sizeof(cParameter{})); err != nil {
		return 0, 0, err
	}
	cp := (*cParameter)(unsafe.Pointer(param))
	*cp = cParameter{
		SVMType:     int32(p.SVMType),
		KernelType:  int32(p.Kernel),
		Degree:      int32(p.Degree),
		Gamma:       p.Gamma,
		Coef0:       p.Coef0,
		CacheSize:   p.CacheSizeMB,
		Eps:         p.Eps,
		C:           p.C,
		Nu:          p.Nu,
		P:           p.P,
		Shrinking:   boolInt(p.Shrinking),
		Probability: boolInt(p.Probability),
	}
	if labels := p.WeightLabels(); len(labels) > 0 {
		n := uintptr(len(labels))
		if cp.WeightLabel, err = a.alloc(n, unsafe.Sizeof(int32(0))); err != nil {
			return 0, 0, err
		}
		if cp.Weight, err = a.alloc(n, unsafe.Sizeof(float64(0))); err != nil {
			return 0, 0, err
		}
		wl := unsafe.Slice((*int32)(unsafe.Pointer(cp.WeightLabel)), n)
		w := unsafe.Slice((*float64)(unsafe.Pointer(cp.Weight)), n)
		for i, label := range labels {
			wl[i] = int32(label)
			w[i] = p.Weights[label]
		}
		cp.NrWeight = int32(n)
	}
	return prob, param, nil
}

func fillNodes(dst []cNode, v *feature.Vector) int {
	for i, d := range v.Dims {
		dst[i] = cNode{Index: int32(d), Value: v.Vals[i]}
	}
	dst[len(v.Dims)] = cNode{Index: -1}
	return len(v.Dims) + 1
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

type trainResult struct {
	model uintptr
	err   error
}

// Train implements svm.Engine. libsvm cannot be interrupted, so on
// cancellation Train returns at once and the model is freed in the
// background when svm_train finishes.
func (e *Engine) Train(ctx context.Context, data []*feature.Labeled, params *svm.Params) (svm.Handle, error) {
	if err := svm.CheckProblem(data, params); err != nil {
		return nil, err
	}
	if d := svm.MaxDim(data); d > math.MaxInt32 {
		return nil, svm.E("train", svm.KindMalformedVector, "dimension %d does not fit the engine's index type", d)
	}
	if err := ctx.Err(); err != nil {
		return nil, svm.Wrap("train", svm.KindCanceled, err)
	}
	p := params.Resolve(svm.MaxDim(data))

	mem := &arena{lib: e.lib}
	prob, param, err := mem.problem(data, p)
	if err != nil {
		mem.release()
		return nil, err
	}
	if msg := e.lib.checkParameter(prob, param); msg != 0 {
		mem.release()
		return nil, svm.E("train", svm.KindInvalidParameter, "%s", goString(msg))
	}
	e.logger.Debug("native training started",
		zap.Int("vectors", len(data)),
		zap.String("problem_memory", humanize.Bytes(uint64(mem.size))),
	)

	done := make(chan trainResult, 1)
	go func() {
		var r trainResult
		r.err = svm.Guard("train", func() error {
			r.model = e.lib.train(prob, param)
			return nil
		})
		done <- r
	}()

	select {
	case r := <-done:
		if r.err != nil {
			mem.release()
			return nil, r.err
		}
		if r.model == 0 {
			mem.release()
			return nil, svm.E("train", svm.KindEngine, "svm_train returned no model")
		}
		return e.newHandle(r.model, mem), nil
	case <-ctx.Done():
		go func() {
			r := <-done
			if r.model != 0 {
				e.lib.freeAndDestroy(&r.model)
			}
			mem.release()
			e.logger.Debug("released model of canceled training")
		}()
		return nil, svm.Wrap("train", svm.KindCanceled, ctx.Err())
	}
}

// Classify implements svm.Engine.
func (e *Engine) Classify(h svm.Handle, v *feature.Vector) (float64, error) {
	nh, ok := h.(*handle)
	if !ok || nh.engine != e {
		return 0, svm.E("classify", svm.KindInvalidParameter, "handle was not created by this engine")
	}
	return nh.Classify(v)
}

type handle struct {
	engine *Engine

	mu      sync.RWMutex
	model   uintptr
	mem     *arena
	svmType model.SVMType
	labels  []int
	nrDecs  int
}

func (e *Engine) newHandle(m uintptr, mem *arena) *handle {
	h := &handle{
		engine:  e,
		model:   m,
		mem:     mem,
		svmType: model.SVMType(e.lib.getSVMType(m)),
		nrDecs:  1,
	}
	if h.svmType.IsClassification() {
		if n := int(e.lib.getNrClass(m)); n > 0 {
			labels := make([]int32, n)
			e.lib.getLabels(m, &labels[0])
			for _, l := range labels {
				h.labels = append(h.labels, int(l))
			}
			h.nrDecs = max(n*(n-1)/2, 1)
		}
	}
	atomic.AddInt64(&e.open, 1)
	atomic.AddInt64(&e.bytes, mem.size)
	e.logger.Debug("native model ready",
		zap.Stringer("svm_type", h.svmType),
		zap.Ints("labels", h.labels),
		zap.String("native_memory", humanize.Bytes(uint64(mem.size))),
	)
	return h
}

func (h *handle) Classify(v *feature.Vector) (float64, error) {
	if err := svm.CheckVector(v); err != nil {
		return 0, err
	}
	if d := v.MaxDim(); d > math.MaxInt32 {
		return 0, svm.E("classify", svm.KindMalformedVector, "dimension %d does not fit the engine's index type", d)
	}
	nodes := make([]cNode, len(v.Dims)+1)
	fillNodes(nodes, v)
	decs := make([]float64, h.nrDecs)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.model == 0 {
		return 0, svm.E("classify", svm.KindReleased, "handle is closed")
	}
	var predicted float64
	err := svm.Guard("classify", func() error {
		predicted = h.engine.lib.predictValues(h.model, &nodes[0], &decs[0])
		return nil
	})
	runtime.KeepAlive(nodes)
	if err != nil {
		return 0, err
	}
	return svm.FiniteScore(model.Score(h.svmType, h.labels, predicted, decs))
}

// Export saves the native model to a temporary file in the engine's text
// format and parses it back.
func (h *handle) Export() (*model.Model, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.model == 0 {
		return nil, svm.E("export", svm.KindReleased, "handle is closed")
	}
	f, err := os.CreateTemp("", "svmbridge-*.model")
	if err != nil {
		return nil, svm.Wrap("export", svm.KindEngine, err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if rc := h.engine.lib.saveModel(path, h.model); rc != 0 {
		return nil, svm.E("export", svm.KindEngine, "svm_save_model returned %d", rc)
	}
	m, err := model.Load(path)
	if err != nil {
		return nil, svm.Wrap("export", svm.KindEngine, err)
	}
	return m, nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model == 0 {
		return nil
	}
	h.engine.lib.freeAndDestroy(&h.model)
	h.model = 0
	size := h.mem.size
	h.mem.release()
	atomic.AddInt64(&h.engine.open, -1)
	atomic.AddInt64(&h.engine.bytes, -size)
	h.engine.logger.Debug("released native model", zap.String("native_memory", humanize.Bytes(uint64(size))))
	return nil
}

//go:build linux || darwin || freebsd

package native

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// DefaultLibraries lists the names tried, in order, when no library path is
// configured.
func DefaultLibraries() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"libsvm.3.dylib", "libsvm.dylib", "/opt/homebrew/lib/libsvm.dylib", "/usr/local/lib/libsvm.dylib"}
	default:
		return []string{"libsvm.so.3", "libsvm.so.2", "libsvm.so"}
	}
}

func libcName() string {
	switch runtime.GOOS {
	case "darwin":
		return "/usr/lib/libSystem.B.dylib"
	case "freebsd":
		return "libc.so.7"
	default:
		return "libc.so.6"
	}
}

// library holds the bound entry points of one loaded libsvm.
type library struct {
	path    string
	version int

	train          func(prob, param uintptr) uintptr
	checkParameter func(prob, param uintptr) uintptr
	predictValues  func(m uintptr, x *cNode, dec *float64) float64
	getNrClass     func(m uintptr) int32
	getLabels      func(m uintptr, labels *int32)
	getSVMType     func(m uintptr) int32
	saveModel      func(path string, m uintptr) int32
	freeAndDestroy func(m *uintptr)
	setPrintString func(fn uintptr)
	calloc         func(n, size uintptr) uintptr
	free           func(p uintptr)

	printOnce sync.Once
}

var (
	loadMu    sync.Mutex
	libraries = make(map[string]*library)

	// libsvm keeps a single print function per process.
	printLogger atomic.Value
)

func load(names []string) (*library, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	var tried []string
	for _, name := range names {
		if lib, ok := libraries[name]; ok {
			return lib, nil
		}
		h, err := purego.Dlopen(name, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
		if err != nil {
			tried = append(tried, err.Error())
			continue
		}
		lib, err := bind(h, name)
		if err != nil {
			return nil, err
		}
		libraries[name] = lib
		return lib, nil
	}
	return nil, errors.Errorf("libsvm not found (tried %s)", strings.Join(tried, "; "))
}

func bind(h uintptr, name string) (lib *library, err error) {
	// RegisterLibFunc panics on a missing symbol.
	defer func() {
		if r := recover(); r != nil {
			lib, err = nil, errors.Errorf("%s: %v", name, r)
		}
	}()

	lib = &library{path: name}
	purego.RegisterLibFunc(&lib.train, h, "svm_train")
	purego.RegisterLibFunc(&lib.checkParameter, h, "svm_check_parameter")
	purego.RegisterLibFunc(&lib.predictValues, h, "svm_predict_values")
	purego.RegisterLibFunc(&lib.getNrClass, h, "svm_get_nr_class")
	purego.RegisterLibFunc(&lib.getLabels, h, "svm_get_labels")
	purego.RegisterLibFunc(&lib.getSVMType, h, "svm_get_svm_type")
	purego.RegisterLibFunc(&lib.saveModel, h, "svm_save_model")
	purego.RegisterLibFunc(&lib.freeAndDestroy, h, "svm_free_and_destroy_model")
	purego.RegisterLibFunc(&lib.setPrintString, h, "svm_set_print_string_function")
	if sym, err := purego.Dlsym(h, "libsvm_version"); err == nil {
		lib.version = int(*(*int32)(unsafe.Pointer(sym)))
	}

	libc, err := purego.Dlopen(libcName(), purego.RTLD_LAZY|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, errors.Wrap(err, "libc")
	}
	purego.RegisterLibFunc(&lib.calloc, libc, "calloc")
	purego.RegisterLibFunc(&lib.free, libc, "free")
	return lib, nil
}

func (l *library) setLogger(logger *zap.Logger) {
	printLogger.Store(logger)
	l.printOnce.Do(func() {
		l.setPrintString(purego.NewCallback(func(s uintptr) uintptr {
			logger, _ := printLogger.Load().(*zap.Logger)
			if msg := strings.TrimSpace(goString(s)); msg != "" && logger != nil {
				logger.Debug("libsvm", zap.String("output", msg))
			}
			return 0
		}))
	})
}

func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	return unix.BytePtrToString((*byte)(unsafe.Pointer(p)))
}

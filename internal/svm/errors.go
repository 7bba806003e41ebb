package svm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the ways a boundary call can fail.
type Kind int

const (
	KindUnknown Kind = iota
	KindNilVector
	KindMalformedVector
	KindEmptyTrainingSet
	KindInconsistentLabels
	KindInvalidParameter
	KindUninitialized
	KindReleased
	KindResourceExhausted
	KindUnavailable
	KindCanceled
	KindEngine
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindNilVector:          "nil vector",
	KindMalformedVector:    "malformed vector",
	KindEmptyTrainingSet:   "empty training set",
	KindInconsistentLabels: "inconsistent labels",
	KindInvalidParameter:   "invalid parameter",
	KindUninitialized:      "no model loaded",
	KindReleased:           "model released",
	KindResourceExhausted:  "resource exhausted",
	KindUnavailable:        "engine unavailable",
	KindCanceled:           "canceled",
	KindEngine:             "engine fault",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is; an *Error matches the sentinel of its kind.
var (
	ErrNilVector          = &Error{Kind: KindNilVector}
	ErrMalformedVector    = &Error{Kind: KindMalformedVector}
	ErrEmptyTrainingSet   = &Error{Kind: KindEmptyTrainingSet}
	ErrInconsistentLabels = &Error{Kind: KindInconsistentLabels}
	ErrInvalidParameter   = &Error{Kind: KindInvalidParameter}
	ErrUninitialized      = &Error{Kind: KindUninitialized}
	ErrReleased           = &Error{Kind: KindReleased}
	ErrResourceExhausted  = &Error{Kind: KindResourceExhausted}
	ErrUnavailable        = &Error{Kind: KindUnavailable}
	ErrCanceled           = &Error{Kind: KindCanceled}
	ErrEngine             = &Error{Kind: KindEngine}
)

// Error is the error type of every boundary operation.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

// E builds an *Error with a stack-carrying cause.
func E(op string, kind Kind, format string, args ...interface{}) error {
	return &Error{Op: op, Kind: kind, Err: errors.Errorf(format, args...)}
}

// Wrap builds an *Error around err. A nil err yields nil.
func Wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	msg := "svm"
	if e.Op != "" {
		msg += " " + e.Op
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNilVector)
// works regardless of op and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Guard runs fn and converts a panic raised inside it into a KindEngine
// error. Native call sites go through Guard so that faults reach callers as
// values.
func Guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Op: op, Kind: KindEngine, Err: errors.Errorf("panic: %v", r)}
		}
	}()
	return fn()
}

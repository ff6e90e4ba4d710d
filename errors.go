package dieselrt

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies construction and frame failures.
type Code int

const (
	Success Code = iota
	// NoSuitableGPU: no adapter exposes the presentation extension and the
	// graphics/present queue families the renderer needs.
	NoSuitableGPU
	// NoSuitableSurface: the surface has no usable format or present mode,
	// or swapchain/view creation failed.
	NoSuitableSurface
	Unknown
)

func (c Code) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case NoSuitableGPU:
		return "NO_SUITABLE_GPU"
	case NoSuitableSurface:
		return "NO_SUITABLE_SURFACE"
	case Unknown:
		return "UNKNOWN"
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error carries a Code, the operation that failed and its cause.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Code so sentinel comparisons work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Op == "" && t.Err == nil && t.Code == e.Code
}

var (
	ErrNoSuitableGPU     = &Error{Code: NoSuitableGPU}
	ErrNoSuitableSurface = &Error{Code: NoSuitableSurface}

	ErrNoMemoryType    = stderrors.New("no memory type satisfies the requested properties")
	ErrAttachmentIndex = stderrors.New("attachment index out of range")
	ErrShaderStages    = stderrors.New("unsupported shader stage combination")
	ErrWindowClosed    = stderrors.New("window closed")
)

func newError(code Code, op string, err error) error {
	if err != nil {
		err = errors.WithStack(err)
	}
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf returns the Code carried by err: Success for nil, Unknown for
// errors that carry none.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return Unknown
}

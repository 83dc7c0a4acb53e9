package errors

import (
	"errors"
	"strings"

	"github.com/wippyai/mcom/hresult"
)

// Kind categorizes a failed status
type Kind string

const (
	KindNoInterface       Kind = "no_interface"
	KindClassNotReg       Kind = "class_not_registered"
	KindInterfaceNotReg   Kind = "interface_not_registered"
	KindNotSupported      Kind = "not_supported"
	KindNoAggregation     Kind = "no_aggregation"
	KindWrongContext      Kind = "wrong_context"
	KindChangedMode       Kind = "changed_mode"
	KindDisconnected      Kind = "disconnected"
	KindInvalidArgument   Kind = "invalid_argument"
	KindNilPointer        Kind = "nil_pointer"
	KindOutOfMemory       Kind = "out_of_memory"
	KindNotInitialized    Kind = "not_initialized"
	KindOverflow          Kind = "overflow"
	KindNotImplemented    Kind = "not_implemented"
	KindFailure           Kind = "failure"
	KindUnexpectedSuccess Kind = "unexpected_success"
)

// KindOf classifies a status code.
func KindOf(hr hresult.HRESULT) Kind {
	switch hr {
	case hresult.E_NOINTERFACE:
		return KindNoInterface
	case hresult.REGDB_E_CLASSNOTREG:
		return KindClassNotReg
	case hresult.REGDB_E_IIDNOTREG:
		return KindInterfaceNotReg
	case hresult.CO_E_NOT_SUPPORTED:
		return KindNotSupported
	case hresult.CLASS_E_NOAGGREGATION:
		return KindNoAggregation
	case hresult.RPC_E_WRONG_THREAD:
		return KindWrongContext
	case hresult.RPC_E_CHANGED_MODE:
		return KindChangedMode
	case hresult.RPC_E_DISCONNECTED:
		return KindDisconnected
	case hresult.E_INVALIDARG:
		return KindInvalidArgument
	case hresult.E_POINTER:
		return KindNilPointer
	case hresult.E_OUTOFMEMORY:
		return KindOutOfMemory
	case hresult.CO_E_NOTINITIALIZED:
		return KindNotInitialized
	case hresult.E_NOTIMPL:
		return KindNotImplemented
	case hresult.Make(hresult.SeverityError, hresult.FacilityNull, hresult.ERROR_ARITHMETIC_OVERFLOW):
		return KindOverflow
	}
	if hresult.Succeeded(hr) {
		return KindUnexpectedSuccess
	}
	return KindFailure
}

// Error reports a specific method returning a status code.
type Error struct {
	Cause  error
	Method string
	Detail string
	Kind   Kind
	Code   hresult.HRESULT
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(e.Method)
	b.WriteString(" failed with HRESULT == ")
	b.WriteString(e.Code.String())

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// HRESULT returns the raw status code.
func (e *Error) HRESULT() hresult.HRESULT {
	return e.Code
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same status code. A target with a
// Method set must also match on method.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Method != "" && t.Method != e.Method {
		return false
	}
	return e.Code == t.Code
}

// Check returns nil if hr succeeded, otherwise an *Error for method.
func Check(method string, hr hresult.HRESULT) error {
	if hresult.Succeeded(hr) {
		return nil
	}
	return Unchecked(method, hr)
}

// Unchecked builds an *Error without looking at hr. It is used when a call
// nominally succeeded but broke its contract (a null out-pointer, a zero cookie).
func Unchecked(method string, hr hresult.HRESULT) *Error {
	return &Error{
		Method: method,
		Code:   hr,
		Kind:   KindOf(hr),
	}
}

// Code returns the status carried by err: S_OK for nil, E_FAIL for errors
// that did not come from a status code.
func Code(err error) hresult.HRESULT {
	if err == nil {
		return hresult.S_OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return hresult.E_FAIL
}

// Status is a sentinel matching any *Error with the given code.
func Status(hr hresult.HRESULT) *Error {
	return &Error{Code: hr, Kind: KindOf(hr)}
}

// IsNoInterface reports whether err is an E_NOINTERFACE failure.
func IsNoInterface(err error) bool {
	return Code(err) == hresult.E_NOINTERFACE
}

// IsNotMarshalable reports whether err means the object cannot be made
// portable: no registered marshaler, or the object refuses marshaling.
func IsNotMarshalable(err error) bool {
	switch Code(err) {
	case hresult.REGDB_E_IIDNOTREG, hresult.CO_E_NOT_SUPPORTED:
		return true
	}
	return false
}

// IsWrongContext reports whether err means the caller's apartment may not
// access the object or the registration.
func IsWrongContext(err error) bool {
	switch Code(err) {
	case hresult.RPC_E_WRONG_THREAD, hresult.E_INVALIDARG, hresult.RPC_E_DISCONNECTED:
		return true
	}
	return false
}

// IsNotInitialized reports whether err is CO_E_NOTINITIALIZED.
func IsNotInitialized(err error) bool {
	return Code(err) == hresult.CO_E_NOTINITIALIZED
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(method string, hr hresult.HRESULT) *Builder {
	return &Builder{
		err: Error{
			Method: method,
			Code:   hr,
			Kind:   KindOf(hr),
		},
	}
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string) *Builder {
	b.err.Detail = msg
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Wrap attaches a Go error to a failed method, e.g. a trap from a guest module.
func Wrap(method string, hr hresult.HRESULT, cause error) *Error {
	return &Error{
		Method: method,
		Code:   hr,
		Kind:   KindOf(hr),
		Cause:  cause,
	}
}

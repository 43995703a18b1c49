// Package errors provides an error type that carries a stack trace, a gRPC
// status code, a derived HTTP status code, a public message, and a stable
// machine-readable reason string.
//
// The *Error type implements the standard error interface, so it can be used
// interchangeably with code that expects a normal error return. Reasons are
// short uppercase identifiers (for example "INVALID_SIGNATURE") that clients
// can branch on without parsing human-readable text.
package errors

import (
	"bytes"
	"fmt"
	"net/http"
	"reflect"
	"runtime"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MaxStackDepth is the maximum number of stackframes on any error.
var MaxStackDepth = 50

// Error is an error with an attached stacktrace. It can be used wherever the
// builtin error interface is expected.
type Error struct {
	Err    error
	stack  []uintptr
	frames []StackFrame
	suffix string

	// gRPC status code to associate with an error response.
	code codes.Code

	// Stable machine-readable reason returned to clients alongside the code.
	reason string

	// HTTP status code override for an error response.
	httpStatusCode int

	// Error message to return to the client.
	publicMessage string
}

// New makes an Error from the given value. If that value is already an error
// then it will be used directly, if not, it will be passed to
// fmt.Errorf("%v"). The stacktrace will point to the line of code that called
// New.
func New(e interface{}) *Error {
	stack := make([]uintptr, MaxStackDepth)
	length := runtime.Callers(2, stack[:])
	return &Error{
		Err:   toError(e),
		stack: stack[:length],
		code:  codes.Unknown,
	}
}

// NewC makes an Error with a status code defined.
func NewC(e interface{}, code codes.Code) *Error {
	stack := make([]uintptr, MaxStackDepth)
	length := runtime.Callers(2, stack[:])
	return &Error{
		Err:   toError(e),
		stack: stack[:length],
		code:  code,
	}
}

// NewR makes an Error with a status code and a machine-readable reason.
func NewR(e interface{}, code codes.Code, reason string) *Error {
	stack := make([]uintptr, MaxStackDepth)
	length := runtime.Callers(2, stack[:])
	return &Error{
		Err:    toError(e),
		stack:  stack[:length],
		code:   code,
		reason: reason,
	}
}

// Codef makes an Error with a status code and a formatted message.
func Codef(code codes.Code, format string, a ...interface{}) *Error {
	stack := make([]uintptr, MaxStackDepth)
	length := runtime.Callers(2, stack[:])
	return &Error{
		Err:   fmt.Errorf(format, a...),
		stack: stack[:length],
		code:  code,
	}
}

// Errorf creates a new error with the given message. It can be used as a
// drop-in replacement for fmt.Errorf(), and supports the %w verb.
func Errorf(format string, a ...interface{}) *Error {
	stack := make([]uintptr, MaxStackDepth)
	length := runtime.Callers(2, stack[:])
	return &Error{
		Err:   fmt.Errorf(format, a...),
		stack: stack[:length],
		code:  codes.Unknown,
	}
}

func toError(e interface{}) error {
	if err, ok := e.(error); ok {
		return err
	}
	return fmt.Errorf("%v", e)
}

// Wrap makes an Error from the given value. If that value is already an
// *Error it is returned as-is. The skip parameter indicates how far up the
// stack to start the stacktrace: 0 is from the current call, 1 from its
// caller, etc.
func Wrap(e interface{}, skip int) *Error {
	if e == nil {
		return nil
	}
	if err, ok := e.(*Error); ok {
		return err
	}
	stack := make([]uintptr, MaxStackDepth)
	length := runtime.Callers(2+skip, stack[:])
	return &Error{
		Err:   toError(e),
		stack: stack[:length],
		code:  codes.Unknown,
	}
}

// MaybeWrap wraps the error if it is non-nil, otherwise returns nil. Useful
// for final returns where the error is usually nil.
func MaybeWrap(e error, skip int) error {
	if e == nil {
		return nil
	}
	return Wrap(e, skip+1)
}

// Mark takes an error and sets the stack trace from the point it was called,
// overriding any previous stack trace that may have been set. Sentinel errors
// should be Marked at the return site so traces point at the failure, not the
// declaration.
func Mark(e interface{}, skip int) *Error {
	if e == nil {
		return nil
	}
	stack := make([]uintptr, MaxStackDepth)
	length := runtime.Callers(2+skip, stack[:])
	if err, ok := e.(*Error); ok {
		return &Error{
			Err:            err.Err,
			stack:          stack[:length],
			suffix:         err.suffix,
			code:           err.code,
			reason:         err.reason,
			httpStatusCode: err.httpStatusCode,
			publicMessage:  err.publicMessage,
		}
	}
	return &Error{
		Err:   toError(e),
		stack: stack[:length],
		code:  codes.Unknown,
	}
}

// Error returns the underlying error's message.
func (err *Error) Error() string {
	msg := err.Err.Error()
	if err.suffix != "" {
		msg = fmt.Sprintf("%s: %s", msg, err.suffix)
	}
	return msg
}

// Append adds extra detail to the error message.
func (err *Error) Append(detail string) *Error {
	if err.suffix != "" {
		err.suffix = fmt.Sprintf("%s: %s", err.suffix, detail)
	} else {
		err.suffix = detail
	}
	return err
}

// Stack returns the callstack formatted the same way that go does in
// runtime/debug.Stack().
func (err *Error) Stack() []byte {
	buf := bytes.Buffer{}
	for _, frame := range err.StackFrames() {
		buf.WriteString(frame.String())
	}
	return buf.Bytes()
}

// ErrorStack returns a string that contains both the error message and the
// callstack.
func (err *Error) ErrorStack() string {
	return err.TypeName() + " " + err.Error() + "\n" + string(err.Stack())
}

// StackFrames returns an array of frames containing information about the
// stack.
func (err *Error) StackFrames() []StackFrame {
	if err.frames == nil {
		err.frames = make([]StackFrame, len(err.stack))
		for i, pc := range err.stack {
			err.frames[i] = NewStackFrame(pc)
		}
	}
	return err.frames
}

// TypeName returns the type of the underlying error, e.g. *errors.stringError.
func (err *Error) TypeName() string {
	return reflect.TypeOf(err.Err).String()
}

// Unwrap the error (implements api for the As and Is functions).
func (err *Error) Unwrap() error {
	return err.Err
}

// Is reports whether target matches this error. Two *Error values match when
// they share the same underlying Err, so copies produced by Mark still match
// the sentinel they were marked from.
func (err *Error) Is(target error) bool {
	if te, ok := target.(*Error); ok {
		return te == err || (te.Err != nil && te.Err == err.Err)
	}
	return target == err.Err
}

// Code returns the gRPC status code associated with the error.
func (err *Error) Code() codes.Code {
	return err.code
}

// WithCode sets the gRPC status code associated with the error.
func (err *Error) WithCode(code codes.Code) *Error {
	err.code = code
	return err
}

// Reason returns the machine-readable reason associated with the error.
func (err *Error) Reason() string {
	return err.reason
}

// WithReason sets the machine-readable reason associated with the error.
func (err *Error) WithReason(reason string) *Error {
	err.reason = reason
	return err
}

// HTTPStatusCode returns the HTTP status code that should be returned to the
// client. If an explicit code is set it will be used, otherwise a default is
// derived from the gRPC code.
func (err *Error) HTTPStatusCode() int {
	if err.httpStatusCode != 0 {
		return err.httpStatusCode
	}
	switch err.code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WithHTTPStatusCode sets the HTTP status code that should be returned to the
// client, overriding the status mapped from the gRPC code.
func (err *Error) WithHTTPStatusCode(code int) *Error {
	err.httpStatusCode = code
	return err
}

// PublicMessage returns the error string that should be returned to the
// client.
func (err *Error) PublicMessage() string {
	if err.publicMessage != "" {
		return err.publicMessage
	}
	return err.Error()
}

// WithPublicMessage sets the error string that should be returned to the
// client.
func (err *Error) WithPublicMessage(publicMessage string) *Error {
	err.publicMessage = publicMessage
	return err
}

// GRPCStatus returns a gRPC status object for the error.
func (err *Error) GRPCStatus() *status.Status {
	return status.New(err.Code(), err.PublicMessage())
}

// Code returns a gRPC status code for an error. If the error is nil, it
// returns codes.OK. If the error exposes a `Code()` method, that is returned.
// Otherwise codes.Unknown is returned.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if e, ok := err.(codedError); ok {
		return e.Code()
	}
	return codes.Unknown
}

// Reason returns the machine-readable reason for an error, or empty if the
// error carries none.
func Reason(err error) string {
	if e, ok := err.(reasonedError); ok {
		return e.Reason()
	}
	return ""
}

// HTTPStatusCode returns an HTTP status code for an error. If the error is
// nil, it returns http.StatusOK. If the error exposes a `HTTPStatusCode()`
// method, that is returned. Otherwise http.StatusInternalServerError.
func HTTPStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if e, ok := err.(httpError); ok {
		return e.HTTPStatusCode()
	}
	return http.StatusInternalServerError
}

// PublicMessage returns a message suitable for showing to end users. If the
// error exposes a `PublicMessage()` method that is returned, otherwise the
// error's own message is used.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(publicError); ok {
		return e.PublicMessage()
	}
	return err.Error()
}

type codedError interface {
	Code() codes.Code
}

type publicError interface {
	PublicMessage() string
}

type reasonedError interface {
	Reason() string
}

type httpError interface {
	HTTPStatusCode() int
}

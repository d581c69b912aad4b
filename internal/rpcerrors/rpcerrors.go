// Package rpcerrors defines the client-visible error taxonomy for the
// gateway: the fixed set of kinds a call can fail with, and how each maps
// to an HTTP status and a JSON-RPC numeric error code.
package rpcerrors

import "fmt"

// Kind is one of the seven taxonomy members named in the resolution spec.
type Kind string

const (
	KindInvalidRequest    Kind = "InvalidRequest"
	KindInvalidParameters Kind = "InvalidParameters"
	KindUnknownMethod     Kind = "UnknownMethod"
	KindAmbiguous         Kind = "Ambiguous"
	KindProcedureError    Kind = "ProcedureError"
	KindInternalError     Kind = "InternalError"
	KindConnectionLost    Kind = "ConnectionLost"
)

// httpStatus and rpcCode mirror the table in SPEC_FULL.md §7.
var httpStatus = map[Kind]int{
	KindInvalidRequest:    400,
	KindInvalidParameters: 400,
	KindUnknownMethod:     404,
	KindAmbiguous:         409,
	KindProcedureError:    200,
	KindInternalError:     500,
	KindConnectionLost:    503,
}

var rpcCode = map[Kind]int{
	KindInvalidRequest:    -32600,
	KindInvalidParameters: -32602,
	KindUnknownMethod:     -32601,
	KindAmbiguous:         -32000,
	KindInternalError:     -32603,
	KindConnectionLost:    -32001,
}

// Error is the error type every core component returns. ProcedureError
// carries a Name/Code populated by the Error Mapper (component F) rather
// than these package-level tables, since those come from the database's
// own error catalog.
type Error struct {
	Kind    Kind
	Message string
	Code    int // JSON-RPC numeric code; for ProcedureError, set by the mapper
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the HTTP status code the wire layer should use.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return 500
}

// RPCCode returns the JSON-RPC numeric error code, falling back to the
// error's own Code for kinds (ProcedureError) whose code isn't fixed.
func (e *Error) RPCCode() int {
	if c, ok := rpcCode[e.Kind]; ok {
		return c
	}
	return e.Code
}

func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func InvalidRequest(message string) *Error {
	return New(KindInvalidRequest, message, nil)
}

func InvalidParameters(message string) *Error {
	return New(KindInvalidParameters, message, nil)
}

func UnknownMethod(method string) *Error {
	return New(KindUnknownMethod, fmt.Sprintf("unknown method %q", method), nil)
}

func Ambiguous(method string, matches int) *Error {
	return New(KindAmbiguous, fmt.Sprintf("method %q matched %d candidates", method, matches), nil)
}

func Internal(message string, cause error) *Error {
	return New(KindInternalError, message, cause)
}

func ConnectionLost(cause error) *Error {
	return New(KindConnectionLost, "database connection could not be re-established", cause)
}

// ProcedureError builds a mapped procedure error with an external name and
// numeric code, as produced by get_api_error_code (component F).
func ProcedureError(name string, code int, cause error) *Error {
	return &Error{Kind: KindProcedureError, Message: name, Code: code, Cause: cause}
}

// As reports whether err is (or wraps) an *Error, mirroring the
// errors.GetServiceError(err) helper shape used throughout the teacher's
// middleware call sites.
func As(err error) (*Error, bool) {
	rpcErr, ok := err.(*Error)
	if ok {
		return rpcErr, true
	}
	type unwrapper interface{ Unwrap() error }
	for u, ok := err.(unwrapper); ok; u, ok = err.(unwrapper) {
		err = u.Unwrap()
		if rpcErr, ok := err.(*Error); ok {
			return rpcErr, true
		}
	}
	return nil, false
}

package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnavailable     Code = "UNAVAILABLE"   // store or queue not reachable
	CodeTimeout         Code = "TIMEOUT"       // provider exceeded its per-turn budget
	CodeMisconfigured   Code = "MISCONFIGURED" // missing credentials or provider setup
	CodeUpstream        Code = "UPSTREAM"      // ASR/TTS/LLM/telephony call failed
	CodeInternal        Code = "INTERNAL"
)

var httpStatus = map[Code]int{
	CodeInvalidArgument: http.StatusBadRequest,
	CodeUnauthorized:    http.StatusUnauthorized,
	CodeForbidden:       http.StatusForbidden,
	CodeNotFound:        http.StatusNotFound,
	CodeConflict:        http.StatusConflict,
	CodeUnavailable:     http.StatusServiceUnavailable,
	CodeMisconfigured:   http.StatusServiceUnavailable,
	CodeTimeout:         http.StatusGatewayTimeout,
	CodeUpstream:        http.StatusBadGateway,
	CodeInternal:        http.StatusInternalServerError,
}

// AppError carries a code for the HTTP edge and a message that is safe to show a caller.
// Op names the failing method, ex: "CallLogService.LogCall".
type AppError struct {
	Code    Code
	Op      string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	s := e.Message
	if e.Op != "" {
		if s == "" {
			s = e.Op
		} else {
			s = e.Op + ": " + s
		}
	}
	switch {
	case e.Err != nil && s != "":
		return fmt.Sprintf("%s: %v", s, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case s != "":
		return s
	}
	return "error"
}

func (e *AppError) Unwrap() error { return e.Err }

func E(code Code, op, msg string, err error) error {
	return &AppError{Code: code, Op: op, Message: msg, Err: err}
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost AppError in the chain. Bare context and
// not-found errors map to their codes so repositories can return them unwrapped.
func CodeOf(err error) Code {
	var ae *AppError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ae):
		return ae.Code
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	}
	return ""
}

// CodeOr is CodeOf(err), or fallback when err carries no code. Services use it to keep a
// lower layer's classification when they wrap an error.
func CodeOr(err error, fallback Code) Code {
	if c := CodeOf(err); c != "" {
		return c
	}
	return fallback
}

func HTTPStatus(err error) int {
	if s, ok := httpStatus[CodeOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Retryable reports whether running the same operation again may succeed: a provider or
// store hiccup rather than bad input or missing setup.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeUnavailable, CodeTimeout, CodeUpstream:
		return true
	}
	return false
}

// Sentinel errors returned by repositories.
var (
	ErrNotFound = errors.New("not found")
)

package models

import (
	"errors"
	"fmt"
)

// Error codes used by the pipeline engine, its collaborators and the API.
const (
	ErrCodeMalformedPath        = "MALFORMED_PATH"
	ErrCodeUnsupportedCondition = "UNSUPPORTED_CONDITION"
	ErrCodeUnknownOperator      = "UNKNOWN_OPERATOR"
	ErrCodePatternNotMatched    = "PATTERN_NOT_MATCHED"
	ErrCodeEmptyInput           = "EMPTY_INPUT"
	ErrCodeCancelled            = "CANCELLED"
	ErrCodeStorePartialFailure  = "STORE_BULK_PARTIAL_FAILURE"
	ErrCodeInvalidStep          = "INVALID_STEP"
	ErrCodeWaitTimeout          = "WAIT_TIMEOUT"
	ErrCodeSpiderRunning        = "SPIDER_RUNNING"
	ErrCodeSpiderNotRunning     = "SPIDER_NOT_RUNNING"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeBrowserCrash         = "BROWSER_CRASH"
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. Matching compares codes only, so a wrapped
// *Error with a specific message still matches its sentinel.
var (
	ErrMalformedPath        = &Error{Code: ErrCodeMalformedPath}
	ErrUnsupportedCondition = &Error{Code: ErrCodeUnsupportedCondition}
	ErrUnknownOperator      = &Error{Code: ErrCodeUnknownOperator}
	ErrPatternNotMatched    = &Error{Code: ErrCodePatternNotMatched}
	ErrEmptyInput           = &Error{Code: ErrCodeEmptyInput}
	ErrCancelled            = &Error{Code: ErrCodeCancelled}
	ErrStorePartialFailure  = &Error{Code: ErrCodeStorePartialFailure}
	ErrInvalidStep          = &Error{Code: ErrCodeInvalidStep}
	ErrWaitTimeout          = &Error{Code: ErrCodeWaitTimeout}
	ErrSpiderRunning        = &Error{Code: ErrCodeSpiderRunning}
	ErrSpiderNotRunning     = &Error{Code: ErrCodeSpiderNotRunning}
	ErrNotFound             = &Error{Code: ErrCodeNotFound}
	ErrInvalidInput         = &Error{Code: ErrCodeInvalidInput}
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type Error struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return e.Code
	case e.Err != nil && e.Message == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error.
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Errorf creates an Error with a formatted message and no wrapped cause.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *Error) ToDetail() *ErrorDetail {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return &ErrorDetail{Code: e.Code, Message: msg}
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

package errors

import (
	"errors"
	"fmt"
	"runtime"
)

const (
	CodeNotFound         = "NOT_FOUND"
	CodeRejectedInput    = "REJECTED_INPUT"
	CodeMediaAcquisition = "MEDIA_ACQUISITION_FAILED"
	CodeListenerFailure  = "LISTENER_FAILURE"
	CodeSessionEnded     = "SESSION_ENDED"
	CodeNoActiveCall     = "NO_ACTIVE_CALL"
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	File    string `json:"-"`
	Line    int    `json:"-"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// Is reports whether target is an AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string) *AppError {
	_, file, line, _ := runtime.Caller(1)
	return &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
	}
}

func NewWithDetails(code, message, details string) *AppError {
	_, file, line, _ := runtime.Caller(1)
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		File:    file,
		Line:    line,
	}
}

// Wrap builds an AppError around cause; the cause text becomes Details.
func Wrap(code, message string, cause error) *AppError {
	_, file, line, _ := runtime.Caller(1)
	e := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
		cause:   cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// HasCode reports whether any error in err's chain is an AppError with code.
func HasCode(err error, code string) bool {
	return errors.Is(err, &AppError{Code: code})
}

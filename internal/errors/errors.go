package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an Atlas error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrBudgetExhausted    ErrorCode = "BUDGET_EXHAUSTED"    // 402
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrFileNotFound       ErrorCode = "FILE_NOT_FOUND"      // 404
	ErrCaptureInProgress  ErrorCode = "CAPTURE_IN_PROGRESS" // 409
	ErrConflict           ErrorCode = "CONFLICT"            // 409
	ErrContentTooLarge    ErrorCode = "CONTENT_TOO_LARGE"   // 413
	ErrUnsupportedFormat  ErrorCode = "UNSUPPORTED_FORMAT"  // 415
	ErrProviderFailed     ErrorCode = "PROVIDER_FAILED"     // 422
	ErrInternal           ErrorCode = "INTERNAL"            // 500
	ErrAnalysisFailed     ErrorCode = "ANALYSIS_FAILED"     // 502
	ErrAnalysisTimeout    ErrorCode = "ANALYSIS_TIMEOUT"    // 504
	ErrInvariantViolation ErrorCode = "INVARIANT_VIOLATION" // 500
)

// AtlasError represents a structured error with code, status, and details.
type AtlasError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *AtlasError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AtlasError {
	return &AtlasError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewBudgetExhausted creates a 402 error for surfaces that cannot redirect to the paywall.
func NewBudgetExhausted(capacity int) *AtlasError {
	return &AtlasError{
		Code:    ErrBudgetExhausted,
		Status:  402,
		Message: fmt.Sprintf("no credits left (0/%d); upgrade to continue", capacity),
		Details: map[string]any{"capacity": capacity},
	}
}

// NewNotFound creates a 404 error for when an analysis cannot be found.
func NewNotFound(identifier string) *AtlasError {
	return &AtlasError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("analysis not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing input file.
func NewFileNotFound(path string) *AtlasError {
	return &AtlasError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewCaptureInProgress creates a 409 error when a session already has a capture in flight.
func NewCaptureInProgress() *AtlasError {
	return &AtlasError{
		Code:    ErrCaptureInProgress,
		Status:  409,
		Message: "another capture is already in progress",
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *AtlasError {
	return &AtlasError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewContentTooLarge creates a 413 error when captured content exceeds the size limit.
func NewContentTooLarge(max, actual int64) *AtlasError {
	return &AtlasError{
		Code:    ErrContentTooLarge,
		Status:  413,
		Message: fmt.Sprintf("content exceeds maximum size: %d bytes (max %d)", actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

// NewContentOverLimit creates a 413 error when reading stopped at the limit,
// so the actual size is not known.
func NewContentOverLimit(max int64) *AtlasError {
	return &AtlasError{
		Code:    ErrContentTooLarge,
		Status:  413,
		Message: fmt.Sprintf("content exceeds maximum size (max %d bytes)", max),
		Details: map[string]any{"max_bytes": max},
	}
}

// NewUnsupportedFormat creates a 415 error when content is not of the accepted format.
func NewUnsupportedFormat(kind, reason string) *AtlasError {
	return &AtlasError{
		Code:    ErrUnsupportedFormat,
		Status:  415,
		Message: fmt.Sprintf("unsupported %s: %s", kind, reason),
		Details: map[string]any{"kind": kind},
	}
}

// NewProviderFailed creates a 422 error when content could not be acquired.
func NewProviderFailed(reason string) *AtlasError {
	return &AtlasError{
		Code:    ErrProviderFailed,
		Status:  422,
		Message: fmt.Sprintf("capture failed: %s", reason),
		Details: map[string]any{"reason": reason},
	}
}

// NewAnalysisFailed creates a 502 error for a failed analysis.
// The credit stays charged; the details tell callers a retry is free.
func NewAnalysisFailed(reason string) *AtlasError {
	return &AtlasError{
		Code:    ErrAnalysisFailed,
		Status:  502,
		Message: fmt.Sprintf("analysis failed: %s", reason),
		Details: map[string]any{"reason": reason, "credit_charged": true, "retry_free": true},
	}
}

// NewAnalysisTimeout creates a 504 error when an analysis does not finish in time.
func NewAnalysisTimeout(seconds int) *AtlasError {
	return &AtlasError{
		Code:    ErrAnalysisTimeout,
		Status:  504,
		Message: fmt.Sprintf("analysis did not finish within %ds", seconds),
		Details: map[string]any{"timeout_seconds": seconds, "credit_charged": true, "retry_free": true},
	}
}

// NewInvariantViolation creates a 500 error describing a broken entitlement invariant.
func NewInvariantViolation(msg string) *AtlasError {
	return &AtlasError{
		Code:    ErrInvariantViolation,
		Status:  500,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *AtlasError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AtlasError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is (or wraps) an AtlasError with the given code.
func Is(err error, code ErrorCode) bool {
	var aErr *AtlasError
	if stderrors.As(err, &aErr) {
		return aErr.Code == code
	}
	return false
}

// As returns the AtlasError in err's chain, wrapping unknown errors as internal.
func As(err error) *AtlasError {
	var aErr *AtlasError
	if stderrors.As(err, &aErr) {
		return aErr
	}
	return NewInternal(err)
}

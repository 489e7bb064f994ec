// Package errors provides the structured error system for objstream with
// error codes, categories, and retry hints.
package errors

import (
	stderr "errors"
	"fmt"
	"strings"
	"time"

	"github.com/objstream/objstream/pkg/types"
)

// ErrorCode represents a structured error code for objstream operations.
type ErrorCode string

const (
	// Storage errors
	ErrCodeObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeBucketNotFound ErrorCode = "BUCKET_NOT_FOUND"
	ErrCodeStorageRead    ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite   ErrorCode = "STORAGE_WRITE"

	// Channel errors
	ErrCodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	ErrCodeChannelClosed    ErrorCode = "CHANNEL_CLOSED"
	ErrCodeChecksumMismatch ErrorCode = "CHECKSUM_MISMATCH"
	ErrCodeTruncated        ErrorCode = "TRUNCATED"

	// Connection errors
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeBreakerOpen       ErrorCode = "BREAKER_OPEN"

	// Operation errors
	ErrCodeOperationTimeout  ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeIOFailure         ErrorCode = "IO_FAILURE"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryStorage       ErrorCategory = "storage"
	CategoryChannel       ErrorCategory = "channel"
	CategoryConnection    ErrorCategory = "connection"
	CategoryOperation     ErrorCategory = "operation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// StreamError represents a structured error with context and retry hints.
type StreamError struct {
	Code     ErrorCode     `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`

	// Operation is the call that failed (open, read, seek, fetch, ...).
	Operation string `json:"operation,omitempty"`

	// Bucket and Object identify the target when known.
	Bucket string `json:"bucket,omitempty"`
	Object string `json:"object,omitempty"`

	// Retryable marks failures that a bounded retry may resolve.
	Retryable bool `json:"retryable"`

	Timestamp time.Time `json:"timestamp"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	var sb strings.Builder
	if e.Operation != "" {
		fmt.Fprintf(&sb, "[%s] ", e.Operation)
	}
	fmt.Fprintf(&sb, "%s: %s", e.Code, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %s", e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause for error wrapping compatibility.
func (e *StreamError) Unwrap() error { return e.Cause }

// Is matches errors by code so errors.Is works against code sentinels.
func (e *StreamError) Is(target error) bool {
	if se, ok := target.(*StreamError); ok {
		return e.Code == se.Code
	}
	return false
}

// New creates a StreamError with category and retryability derived from the
// code.
func New(code ErrorCode, message string) *StreamError {
	return &StreamError{
		Code:      code,
		Category:  categoryOf(code),
		Message:   message,
		Retryable: retryableByDefault(code),
		Timestamp: time.Now(),
	}
}

// Newf creates a StreamError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *StreamError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a StreamError carrying cause as its underlying error.
func Wrap(code ErrorCode, message string, cause error) *StreamError {
	e := New(code, message)
	e.Cause = cause
	return e
}

// WithOperation sets the operation that failed.
func (e *StreamError) WithOperation(op string) *StreamError {
	e.Operation = op
	return e
}

// WithHandle records the target object.
func (e *StreamError) WithHandle(h types.ObjectHandle) *StreamError {
	e.Bucket = h.Bucket
	e.Object = h.Name
	return e
}

// WithRetryable overrides the default retryability of the code.
func (e *StreamError) WithRetryable(retryable bool) *StreamError {
	e.Retryable = retryable
	return e
}

// ObjectNotFound builds the open-time failure for a missing object. The
// message identifies the missing object.
func ObjectNotFound(h types.ObjectHandle) *StreamError {
	return Newf(ErrCodeObjectNotFound, "object %s does not exist", h).WithHandle(h)
}

// InvalidArgument builds a programmer-error failure, never retried.
func InvalidArgument(format string, args ...interface{}) *StreamError {
	return Newf(ErrCodeInvalidArgument, format, args...)
}

// ChannelClosed builds the failure for any operation after close.
func ChannelClosed(op string) *StreamError {
	return New(ErrCodeChannelClosed, "channel is closed").WithOperation(op)
}

// ChecksumMismatch builds the integrity failure for a corrupted chunk.
func ChecksumMismatch(h types.ObjectHandle, byteRange types.Range, want, got uint32) *StreamError {
	return Newf(ErrCodeChecksumMismatch,
		"crc32c mismatch for %s %s: want %08x, got %08x", h, byteRange, want, got).
		WithHandle(h)
}

// CodeOf returns the code of err if it is a StreamError, or
// ErrCodeInternalError otherwise.
func CodeOf(err error) ErrorCode {
	var se *StreamError
	if stderr.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternalError
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *StreamError
	return stderr.As(err, &se) && se.Code == code
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	var se *StreamError
	return stderr.As(err, &se) && se.Retryable
}

func categoryOf(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeObjectNotFound, ErrCodeBucketNotFound, ErrCodeStorageRead, ErrCodeStorageWrite:
		return CategoryStorage
	case ErrCodeInvalidArgument, ErrCodeChannelClosed, ErrCodeChecksumMismatch, ErrCodeTruncated:
		return CategoryChannel
	case ErrCodeNetworkError, ErrCodeConnectionTimeout, ErrCodeBreakerOpen:
		return CategoryConnection
	case ErrCodeOperationTimeout, ErrCodeOperationCanceled, ErrCodeRetryExhausted, ErrCodeIOFailure:
		return CategoryOperation
	case ErrCodeInvalidConfig:
		return CategoryConfiguration
	default:
		return CategoryInternal
	}
}

func retryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeNetworkError, ErrCodeConnectionTimeout, ErrCodeOperationTimeout:
		return true
	default:
		return false
	}
}

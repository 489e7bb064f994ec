package errors

import (
	stderr "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/objstream/objstream/pkg/types"
)

func TestErrorMessageFormat(t *testing.T) {
	err := New(ErrCodeObjectNotFound, "object b/o does not exist").WithOperation("open")
	msg := err.Error()
	if !strings.Contains(msg, "[open]") || !strings.Contains(msg, "OBJECT_NOT_FOUND") {
		t.Errorf("Error() = %q", msg)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Wrap(ErrCodeNetworkError, "fetch failed", cause)
	if !stderr.Is(err, cause) {
		t.Error("wrapped cause should match with errors.Is")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrCodeChecksumMismatch, "bad crc"))
	if CodeOf(err) != ErrCodeChecksumMismatch {
		t.Errorf("CodeOf = %v", CodeOf(err))
	}
	if CodeOf(fmt.Errorf("plain")) != ErrCodeInternalError {
		t.Error("plain errors should map to INTERNAL_ERROR")
	}
}

func TestRetryableDefaults(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrCodeNetworkError, true},
		{ErrCodeConnectionTimeout, true},
		{ErrCodeOperationTimeout, true},
		{ErrCodeObjectNotFound, false},
		{ErrCodeInvalidArgument, false},
		{ErrCodeChecksumMismatch, false},
		{ErrCodeChannelClosed, false},
		{ErrCodeBreakerOpen, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(New(tt.code, "x")); got != tt.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestWithRetryableOverride(t *testing.T) {
	err := New(ErrCodeStorageRead, "flaky backend").WithRetryable(true)
	if !IsRetryable(err) {
		t.Error("override should make the error retryable")
	}
}

func TestCategories(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want ErrorCategory
	}{
		{ErrCodeObjectNotFound, CategoryStorage},
		{ErrCodeChannelClosed, CategoryChannel},
		{ErrCodeNetworkError, CategoryConnection},
		{ErrCodeRetryExhausted, CategoryOperation},
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeInternalError, CategoryInternal},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x").Category; got != tt.want {
			t.Errorf("category of %s = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestHelpers(t *testing.T) {
	h := types.ObjectHandle{Bucket: "b", Name: "o"}

	nf := ObjectNotFound(h)
	if nf.Code != ErrCodeObjectNotFound || nf.Bucket != "b" || nf.Object != "o" {
		t.Errorf("ObjectNotFound = %+v", nf)
	}
	if !strings.Contains(nf.Message, "b/o") {
		t.Errorf("message should identify the object: %q", nf.Message)
	}

	cc := ChannelClosed("read")
	if cc.Operation != "read" || cc.Code != ErrCodeChannelClosed {
		t.Errorf("ChannelClosed = %+v", cc)
	}

	cm := ChecksumMismatch(h, types.Range{Start: 0, End: 100}, 1, 2)
	if cm.Code != ErrCodeChecksumMismatch || IsRetryable(cm) {
		t.Errorf("ChecksumMismatch = %+v", cm)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := ObjectNotFound(types.ObjectHandle{Bucket: "b", Name: "o"})
	if !stderr.Is(err, New(ErrCodeObjectNotFound, "")) {
		t.Error("errors with the same code should match")
	}
	if stderr.Is(err, New(ErrCodeChannelClosed, "")) {
		t.Error("different codes should not match")
	}
}

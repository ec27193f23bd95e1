package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestExportError_Error(t *testing.T) {
	err := New(ErrCategoryUpload, CodeUploadFailed, "upload failed")
	expected := "[UPLOAD:UPLOAD_FAILED] upload failed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestExportError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryNetwork, CodeConnection, "dial failed", cause)
	expected := "[NETWORK:CONNECTION] dial failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestExportError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryAuth, CodeTokenAcquisition, "token", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestExportError_Is(t *testing.T) {
	err1 := New(ErrCategoryHTTP, CodeHTTPStatus, "first")
	err2 := New(ErrCategoryHTTP, CodeHTTPStatus, "second")
	err3 := New(ErrCategoryHTTP, CodeBadResponse, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryNetwork, CodeConnectionReset, true},
		{ErrCategoryNetwork, CodeTimeout, true},
		{ErrCategoryNetwork, CodeTruncated, true},
		{ErrCategoryNetwork, CodeConnection, true},
		{ErrCategoryNetwork, CodeRetriesExhausted, false},
		{ErrCategoryHTTP, CodeHTTPStatus, false},
		{ErrCategoryAuth, CodeTokenAcquisition, false},
		{ErrCategoryUpload, CodeUploadFailed, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestIsRetryable_Wrapped(t *testing.T) {
	inner := New(ErrCategoryNetwork, CodeTimeout, "deadline")
	outer := fmt.Errorf("page 3: %w", inner)
	if !IsRetryable(outer) {
		t.Error("retryable flag should be found through fmt wrapping")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain errors are never retryable")
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := NewHTTPError(404, "https://crm.example/Users")
	if GetCategory(err) != ErrCategoryHTTP {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryHTTP)
	}
	if GetCode(err) != CodeHTTPStatus {
		t.Errorf("got %q, want %q", GetCode(err), CodeHTTPStatus)
	}
	if err.Details["status"] != 404 {
		t.Errorf("expected status detail 404, got %v", err.Details["status"])
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-ExportError should return empty category")
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-ExportError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryExport, CodeWriteFailed, "write")
	detailed := err.WithDetails(map[string]interface{}{"domain": "quote"})

	if detailed.Details["domain"] != "quote" {
		t.Error("WithDetails should set details")
	}
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	n := NewNetworkError(CodeConnectionReset, "reset", cause)
	if n.Category != ErrCategoryNetwork || !n.Retryable || !errors.Is(n, cause) {
		t.Error("NewNetworkError mismatch")
	}

	a := NewAuthError(CodeTokenAcquisition, "token", cause)
	if a.Category != ErrCategoryAuth {
		t.Error("NewAuthError mismatch")
	}

	e := NewExportError(CodeWriteFailed, "xlsx", cause)
	if e.Category != ErrCategoryExport {
		t.Error("NewExportError mismatch")
	}

	u := NewUploadError(CodeShareResolution, "share", cause)
	if u.Category != ErrCategoryUpload {
		t.Error("NewUploadError mismatch")
	}

	m := NewMailError(CodeMessageSearch, "search", cause)
	if m.Category != ErrCategoryMail {
		t.Error("NewMailError mismatch")
	}

	c := NewConfigError("missing api key")
	if c.Category != ErrCategoryConfig || c.Code != CodeInvalidConfig {
		t.Error("NewConfigError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}

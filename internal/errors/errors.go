// Package errors provides the structured error type used across the export
// pipeline. Every error carries a category, a code and a retryable flag so
// the fetch layer can decide between backoff and degradation.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the boundary that produced them.
type ErrorCategory string

const (
	ErrCategoryNetwork  ErrorCategory = "NETWORK"
	ErrCategoryHTTP     ErrorCategory = "HTTP"
	ErrCategoryAuth     ErrorCategory = "AUTH"
	ErrCategoryExport   ErrorCategory = "EXPORT"
	ErrCategoryUpload   ErrorCategory = "UPLOAD"
	ErrCategoryMail     ErrorCategory = "MAIL"
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Network codes
	CodeConnectionReset  = "CONNECTION_RESET"
	CodeTimeout          = "TIMEOUT"
	CodeTruncated        = "TRUNCATED"
	CodeConnection       = "CONNECTION"
	CodeRetriesExhausted = "RETRIES_EXHAUSTED"

	// HTTP codes
	CodeHTTPStatus  = "HTTP_STATUS"
	CodeBadResponse = "BAD_RESPONSE"

	// Auth codes
	CodeTokenAcquisition   = "TOKEN_ACQUISITION"
	CodeMissingCredentials = "MISSING_CREDENTIALS"

	// Export codes
	CodeUnknownDomain = "UNKNOWN_DOMAIN"
	CodeLookupFailed  = "LOOKUP_FAILED"
	CodeWriteFailed   = "WRITE_FAILED"

	// Upload codes
	CodeShareResolution = "SHARE_RESOLUTION"
	CodeUploadFailed    = "UPLOAD_FAILED"

	// Mail codes
	CodeMessageSearch  = "MESSAGE_SEARCH"
	CodeReportDownload = "REPORT_DOWNLOAD"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// ExportError is the structured error type used throughout the pipeline.
type ExportError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *ExportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *ExportError) Is(target error) bool {
	var t *ExportError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new ExportError.
func New(category ErrorCategory, code, message string) *ExportError {
	return &ExportError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new ExportError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *ExportError {
	return &ExportError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *ExportError) WithDetails(details map[string]interface{}) *ExportError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ee *ExportError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an ExportError.
func GetCategory(err error) ErrorCategory {
	var ee *ExportError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an ExportError.
func GetCode(err error) string {
	var ee *ExportError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// isRetryable marks transport failures as retryable. HTTP status errors
// are terminal: the server answered.
func isRetryable(category ErrorCategory, code string) bool {
	if category != ErrCategoryNetwork {
		return false
	}
	switch code {
	case CodeConnectionReset, CodeTimeout, CodeTruncated, CodeConnection:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewNetworkError(code, message string, cause error) *ExportError {
	return Wrap(ErrCategoryNetwork, code, message, cause)
}

func NewHTTPError(status int, url string) *ExportError {
	return New(ErrCategoryHTTP, CodeHTTPStatus, fmt.Sprintf("status %d from %s", status, url)).
		WithDetails(map[string]interface{}{"status": status, "url": url})
}

func NewAuthError(code, message string, cause error) *ExportError {
	return Wrap(ErrCategoryAuth, code, message, cause)
}

func NewExportError(code, message string, cause error) *ExportError {
	return Wrap(ErrCategoryExport, code, message, cause)
}

func NewUploadError(code, message string, cause error) *ExportError {
	return Wrap(ErrCategoryUpload, code, message, cause)
}

func NewMailError(code, message string, cause error) *ExportError {
	return Wrap(ErrCategoryMail, code, message, cause)
}

func NewConfigError(message string) *ExportError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *ExportError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

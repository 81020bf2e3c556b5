// Package errors provides unified error handling for the transaction platform.
// It implements structured error types with error codes, HTTP status mapping,
// and retryable detection so callers can distinguish admission-control
// rejections from business failures.
package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Validation ---

// FieldViolation describes a single violated field in a command payload.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validation creates an AppError carrying the ordered list of violated fields.
// The violation order is preserved so the same invalid payload always produces
// the same message.
func Validation(violations []FieldViolation) *AppError {
	messages := make([]string, len(violations))
	for i, v := range violations {
		messages[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return &AppError{
		Code:       ErrCodeValidationFailed,
		Message:    strings.Join(messages, "; "),
		HTTPStatus: http.StatusBadRequest,
		Retryable:  false,
		Details:    map[string]any{"fields": violations},
	}
}

// Violations extracts the ordered field violations from a validation error.
// Returns nil if the error is not a validation AppError.
func Violations(err error) []FieldViolation {
	appErr, ok := AsAppError(err)
	if !ok || appErr.Code != ErrCodeValidationFailed {
		return nil
	}
	fields, _ := appErr.Details["fields"].([]FieldViolation)
	return fields
}

// --- Pipeline error constructors ---

// Precondition creates an AppError for a failed business precondition,
// e.g. a referenced record or template that does not exist.
func Precondition(resource, id string) *AppError {
	return &AppError{
		Code: ErrCodePreconditionFailed, Message: fmt.Sprintf("Referenced %s was not found.", resource),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"resource": resource, "id": id},
	}
}

// NotFound creates an AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Retryable: false, Details: details,
	}
}

// UnknownCommand creates an AppError for a command kind with no registered handler.
func UnknownCommand(kind string) *AppError {
	return &AppError{
		Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("No handler registered for command kind %q.", kind),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"kind": kind},
	}
}

// StoreWrite creates an AppError for a failed record write.
func StoreWrite(store string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeStoreWriteFailed, Message: fmt.Sprintf("Write to the %s store failed.", store),
		HTTPStatus: http.StatusInternalServerError, Retryable: true,
		Details: map[string]any{"store": store}, Cause: cause,
	}
}

// EventAppend creates an AppError for a failed event store append.
func EventAppend(aggregateID string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeEventAppendFailed, Message: "Appending the domain event failed.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"aggregate_id": aggregateID}, Cause: cause,
	}
}

// Publish creates an AppError for a failed broker publish.
func Publish(topic string, cause error) *AppError {
	return &AppError{
		Code: ErrCodePublishFailed, Message: fmt.Sprintf("Publishing to topic %q failed.", topic),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"topic": topic}, Cause: cause,
	}
}

// --- Admission-control constructors ---

// BreakerOpen creates an AppError for a call rejected by an open circuit breaker.
func BreakerOpen(dependency string) *AppError {
	return &AppError{
		Code: ErrCodeBreakerOpen, Message: fmt.Sprintf("The %s dependency is unavailable (circuit open).", dependency),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"dependency": dependency},
	}
}

// BulkheadTimeout creates an AppError for a task that timed out in a pool queue.
func BulkheadTimeout(pool string) *AppError {
	return &AppError{
		Code: ErrCodeBulkheadTimeout, Message: fmt.Sprintf("Timed out waiting for capacity in pool %q.", pool),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"pool": pool},
	}
}

// RateLimited creates an AppError for too many requests.
func RateLimited(key string) *AppError {
	return &AppError{
		Code: ErrCodeRateLimited, Message: "Too many requests. Please wait a moment and try again.",
		HTTPStatus: http.StatusTooManyRequests, Retryable: true,
		Details: map[string]any{"key": key},
	}
}

// Timeout creates an AppError for an operation that exceeded its deadline.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: "The operation took too long. Please try again.",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// ConnectionFailed creates an AppError for a failed connection to a backing service.
func ConnectionFailed(service string) *AppError {
	return &AppError{
		Code: ErrCodeConnectionFailed, Message: fmt.Sprintf("Unable to connect to %s.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service},
	}
}

// Internal creates an AppError for an unexpected internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

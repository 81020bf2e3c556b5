package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Admission-control rejections (retryable by the caller with backoff)
const (
	// ErrCodeBreakerOpen indicates the circuit breaker for a dependency is open.
	ErrCodeBreakerOpen ErrorCode = "BREAKER_OPEN"
	// ErrCodeBulkheadTimeout indicates a queued task timed out waiting for a pool slot.
	ErrCodeBulkheadTimeout ErrorCode = "BULKHEAD_TIMEOUT"
	// ErrCodeRateLimited indicates the caller exceeded its admission quota.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeTimeout indicates the operation exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Caller errors (never retried)
const (
	// ErrCodeValidationFailed indicates a command failed field validation.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrCodePreconditionFailed indicates a referenced record or template was not found.
	ErrCodePreconditionFailed ErrorCode = "PRECONDITION_FAILED"
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeUnknownCommand indicates a command kind with no registered handler.
	ErrCodeUnknownCommand ErrorCode = "UNKNOWN_COMMAND"
)

// Pipeline/infrastructure errors
const (
	// ErrCodeStoreWriteFailed indicates a record write failed in one or more stores.
	ErrCodeStoreWriteFailed ErrorCode = "STORE_WRITE_FAILED"
	// ErrCodeEventAppendFailed indicates the event store append failed.
	// This is the durability boundary: it always fails the handler call.
	ErrCodeEventAppendFailed ErrorCode = "EVENT_APPEND_FAILED"
	// ErrCodePublishFailed indicates the broker publish failed.
	ErrCodePublishFailed ErrorCode = "PUBLISH_FAILED"
	// ErrCodeConnectionFailed indicates a failed connection to a backing service.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeBreakerOpen:      true,
	ErrCodeBulkheadTimeout:  true,
	ErrCodeRateLimited:      true,
	ErrCodeTimeout:          true,
	ErrCodeStoreWriteFailed: true,
	ErrCodeConnectionFailed: true,
	ErrCodePublishFailed:    true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Success(t *testing.T) {
	err := New(ErrCodeNotFound, "not found", http.StatusNotFound)
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}
	if err.Message != "not found" {
		t.Errorf("expected message 'not found', got %q", err.Message)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, err.HTTPStatus)
	}
	if err.Retryable {
		t.Error("NOT_FOUND should not be retryable")
	}
}

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out", http.StatusGatewayTimeout)
	if !err.Retryable {
		t.Error("TIMEOUT should be retryable")
	}
}

func TestAppError_Validation_OrderedViolations(t *testing.T) {
	violations := []FieldViolation{
		{Field: "amount", Message: "must be greater than 0"},
		{Field: "currency", Message: "is required"},
		{Field: "to_account", Message: "is required"},
	}
	err := Validation(violations)

	if err.Code != ErrCodeValidationFailed {
		t.Errorf("expected VALIDATION_FAILED, got %s", err.Code)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", err.HTTPStatus)
	}
	if err.Retryable {
		t.Error("validation errors should not be retryable")
	}

	// Message must list every violation in order.
	want := "amount: must be greater than 0; currency: is required; to_account: is required"
	if err.Message != want {
		t.Errorf("expected %q, got %q", want, err.Message)
	}

	got := Violations(err)
	if len(got) != 3 {
		t.Fatalf("expected 3 violations, got %d", len(got))
	}
	if got[0].Field != "amount" || got[2].Field != "to_account" {
		t.Errorf("violation order not preserved: %v", got)
	}
}

func TestAppError_Violations_NonValidationError(t *testing.T) {
	if Violations(NotFound("payment", "p-1")) != nil {
		t.Error("expected nil violations for non-validation error")
	}
	if Violations(fmt.Errorf("plain")) != nil {
		t.Error("expected nil violations for plain error")
	}
}

func TestAppError_Precondition_Success(t *testing.T) {
	err := Precondition("template", "tmpl-9")
	if err.Code != ErrCodePreconditionFailed {
		t.Errorf("expected PRECONDITION_FAILED, got %s", err.Code)
	}
	if err.Retryable {
		t.Error("precondition errors should not be retryable")
	}
	if err.Details["resource"] != "template" {
		t.Errorf("expected resource=template, got %v", err.Details["resource"])
	}
}

func TestAppError_EventAppend_NotRetryable(t *testing.T) {
	err := EventAppend("agg-1", fmt.Errorf("disk full"))
	if err.Code != ErrCodeEventAppendFailed {
		t.Errorf("expected EVENT_APPEND_FAILED, got %s", err.Code)
	}
	if err.Retryable {
		t.Error("event append failure should fail the call, not be retried in place")
	}
	if err.Cause == nil {
		t.Error("expected cause to be preserved")
	}
}

func TestAppError_AdmissionRejections(t *testing.T) {
	cases := []struct {
		name string
		err  *AppError
		code ErrorCode
	}{
		{"breaker", BreakerOpen("payments-db"), ErrCodeBreakerOpen},
		{"bulkhead", BulkheadTimeout("db-writes"), ErrCodeBulkheadTimeout},
		{"ratelimit", RateLimited("user:42"), ErrCodeRateLimited},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("expected %s, got %s", tc.code, tc.err.Code)
			}
			if !tc.err.Retryable {
				t.Errorf("%s should be retryable", tc.code)
			}
			if !IsAdmissionRejection(tc.err) {
				t.Errorf("%s should classify as admission rejection", tc.code)
			}
		})
	}
}

func TestAppError_IsAdmissionRejection_BusinessError(t *testing.T) {
	if IsAdmissionRejection(NotFound("payment", "p-1")) {
		t.Error("NOT_FOUND is not an admission rejection")
	}
	if IsAdmissionRejection(fmt.Errorf("plain error")) {
		t.Error("plain errors are not admission rejections")
	}
}

func TestAppError_ErrorString(t *testing.T) {
	err := StoreWrite("document", fmt.Errorf("connection reset"))
	msg := err.Error()
	if !strings.Contains(msg, "STORE_WRITE_FAILED") {
		t.Errorf("expected code in message, got %q", msg)
	}
	if !strings.Contains(msg, "connection reset") {
		t.Errorf("expected cause in message, got %q", msg)
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Internal(cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestAppError_WithDetail(t *testing.T) {
	err := Timeout("dual-write").WithDetail("attempt", 3)
	if err.Details["attempt"] != 3 {
		t.Errorf("expected attempt=3, got %v", err.Details["attempt"])
	}
}

func TestAppError_ToResponse(t *testing.T) {
	err := RateLimited("user:7")
	resp := err.ToResponse()
	if resp.Error.Code != ErrCodeRateLimited {
		t.Errorf("expected RATE_LIMITED, got %s", resp.Error.Code)
	}
	if !resp.Error.Retryable {
		t.Error("expected retryable in response")
	}
}

func TestAppError_CodeOf(t *testing.T) {
	if CodeOf(Publish("tx.events", fmt.Errorf("broker down"))) != ErrCodePublishFailed {
		t.Error("expected PUBLISH_FAILED")
	}
	if CodeOf(fmt.Errorf("plain")) != ErrCodeInternal {
		t.Error("expected INTERNAL_ERROR fallback")
	}
}

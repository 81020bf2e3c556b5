package validation

import (
	"testing"

	"github.com/flowmint/txfabric/errors"
)

func TestValidator_AllChecksPass(t *testing.T) {
	v := New().
		Required("payment_id", "pay-1").
		PositiveAmount("amount", 100).
		OneOf("currency", "EUR", []string{"EUR", "USD", "GBP"})

	if v.HasViolations() {
		t.Errorf("expected no violations, got %v", v.Violations())
	}
	if v.Err() != nil {
		t.Errorf("expected nil error, got %v", v.Err())
	}
}

func TestValidator_ReportsEveryViolation(t *testing.T) {
	v := New().
		Required("payment_id", "").
		PositiveAmount("amount", -5).
		OneOf("currency", "XXX", []string{"EUR", "USD"})

	got := v.Violations()
	if len(got) != 3 {
		t.Fatalf("expected 3 violations, got %d: %v", len(got), got)
	}
	// Violations must come back in check order, every time.
	if got[0].Field != "payment_id" || got[1].Field != "amount" || got[2].Field != "currency" {
		t.Errorf("unexpected violation order: %v", got)
	}
}

func TestValidator_Deterministic(t *testing.T) {
	build := func() error {
		return New().
			Required("from_account", "").
			Required("to_account", "").
			PositiveAmount("amount", 0).
			Err()
	}
	first := build().Error()
	for i := 0; i < 10; i++ {
		if msg := build().Error(); msg != first {
			t.Fatalf("validation not deterministic: %q vs %q", first, msg)
		}
	}
}

func TestValidator_ErrIsValidationAppError(t *testing.T) {
	err := New().Required("user_id", "").Err()
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatal("expected AppError")
	}
	if appErr.Code != errors.ErrCodeValidationFailed {
		t.Errorf("expected VALIDATION_FAILED, got %s", appErr.Code)
	}
	if len(errors.Violations(err)) != 1 {
		t.Errorf("expected 1 violation, got %v", errors.Violations(err))
	}
}

func TestValidator_RequiredUUID(t *testing.T) {
	cases := []struct {
		name  string
		value string
		valid bool
	}{
		{"valid", "0d1f7f0a-8a3b-4c3f-9a65-0a9b1a2c3d4e", true},
		{"empty", "", false},
		{"garbage", "not-a-uuid", false},
		{"nil uuid", "00000000-0000-0000-0000-000000000000", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := New().RequiredUUID("id", tc.value)
			if v.HasViolations() == tc.valid {
				t.Errorf("value %q: expected valid=%v, got violations %v", tc.value, tc.valid, v.Violations())
			}
		})
	}
}

func TestValidator_OneOf_SkipsEmpty(t *testing.T) {
	v := New().OneOf("status", "", []string{"pending", "completed"})
	if v.HasViolations() {
		t.Error("OneOf should skip empty values")
	}
}

func TestValidator_Custom(t *testing.T) {
	v := New().Custom(false, "scheduled_at", "must be in the future")
	if !v.HasViolations() {
		t.Fatal("expected violation")
	}
	if v.Violations()[0].Message != "must be in the future" {
		t.Errorf("unexpected message: %v", v.Violations()[0])
	}
}

type paymentPayload struct {
	PaymentID string `json:"payment_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"gt=0"`
	Currency  string `json:"currency" validate:"required,oneof=EUR USD GBP"`
}

func TestStruct_Valid(t *testing.T) {
	err := Struct(paymentPayload{PaymentID: "pay-1", Amount: 100, Currency: "EUR"})
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestStruct_ReportsAllFields(t *testing.T) {
	err := Struct(paymentPayload{Amount: -1, Currency: "XXX"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	violations := errors.Violations(err)
	if len(violations) != 3 {
		t.Fatalf("expected 3 violations, got %d: %v", len(violations), violations)
	}
	if violations[0].Field != "payment_id" {
		t.Errorf("expected payment_id first, got %v", violations[0])
	}
}

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"PaymentID":   "payment_i_d",
		"FromAccount": "from_account",
		"amount":      "amount",
	}
	for in, want := range cases {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}

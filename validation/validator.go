// Package validation provides command payload validation: a fluent
// field-error collector for hand-written rules and struct-tag validation
// for declarative ones. Both report every violated field in order, never
// a partial list.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/flowmint/txfabric/errors"
)

// Validator collects field violations in the order checks are applied.
type Validator struct {
	violations []errors.FieldViolation
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{
		violations: make([]errors.FieldViolation, 0),
	}
}

// AddViolation records a violated field.
func (v *Validator) AddViolation(field, message string) {
	v.violations = append(v.violations, errors.FieldViolation{
		Field:   field,
		Message: message,
	})
}

// HasViolations returns true if any check failed.
func (v *Validator) HasViolations() bool {
	return len(v.violations) > 0
}

// Violations returns all recorded violations in check order.
func (v *Validator) Violations() []errors.FieldViolation {
	return v.violations
}

// Err returns a validation AppError listing every violated field,
// or nil when all checks passed.
func (v *Validator) Err() error {
	if !v.HasViolations() {
		return nil
	}
	return errors.Validation(v.violations)
}

// Required checks that a string is non-empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddViolation(field, "is required")
	}
	return v
}

// RequiredUUID checks that a string is a valid non-nil UUID.
func (v *Validator) RequiredUUID(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddViolation(field, "is required")
		return v
	}

	parsed, err := uuid.Parse(value)
	if err != nil {
		v.AddViolation(field, "must be a valid UUID")
		return v
	}

	if parsed == uuid.Nil {
		v.AddViolation(field, "must not be empty")
	}

	return v
}

// PositiveAmount checks that a monetary amount is strictly positive.
func (v *Validator) PositiveAmount(field string, value int64) *Validator {
	if value <= 0 {
		v.AddViolation(field, "must be greater than 0")
	}
	return v
}

// MaxLength checks that a string is within max length.
func (v *Validator) MaxLength(field, value string, maxLen int) *Validator {
	if len(value) > maxLen {
		v.AddViolation(field, fmt.Sprintf("must be %d characters or less", maxLen))
	}
	return v
}

// MinLength checks that a string meets a minimum length.
func (v *Validator) MinLength(field, value string, minLen int) *Validator {
	if len(value) < minLen {
		v.AddViolation(field, fmt.Sprintf("must be at least %d characters", minLen))
	}
	return v
}

// NotEmptySlice checks that a slice has at least one element.
func (v *Validator) NotEmptySlice(field string, length int) *Validator {
	if length == 0 {
		v.AddViolation(field, "must contain at least one entry")
	}
	return v
}

// Pattern checks that a string matches a regex pattern.
func (v *Validator) Pattern(field, value, pattern string) *Validator {
	if value == "" {
		return v
	}
	matched, err := regexp.MatchString(pattern, value)
	if err != nil || !matched {
		v.AddViolation(field, "does not match required format")
	}
	return v
}

// OneOf checks that a value is one of the allowed values.
// Empty values are skipped; combine with Required for mandatory fields.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" {
		return v
	}
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.AddViolation(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
	return v
}

// Custom applies a custom validation condition.
func (v *Validator) Custom(condition bool, field, message string) *Validator {
	if !condition {
		v.AddViolation(field, message)
	}
	return v
}

/*
errors.go - Centralized error types for the revenue engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure the engine can produce is an input validation error:
  it is raised before anything is computed and never partially applied.

ERROR CATEGORIES:
  1. Validation errors - bad contract or modification input
  2. Degenerate-but-valid states - NOT errors (empty ranges, unmet
     milestones, regressing progress) and therefore not listed here

USAGE:
  _, err := builder.Build(contract)
  var verr *revrec.ValidationError
  if errors.As(err, &verr) {
      fmt.Println(verr.ObligationID, verr.Field)
  }
  if errors.Is(err, revrec.ErrMilestoneSum) { ... }

SEE ALSO:
  - builder.go: Contract validation
  - methods.go: Per-method parameter validation
*/
package revrec

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation matches every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrMissingParameter is returned when a method lacks a required parameter.
	ErrMissingParameter = errors.New("missing required parameter")

	// ErrMilestoneSum is returned when milestone percentages do not sum to
	// 100% within tolerance. This is a strict business rule.
	ErrMilestoneSum = errors.New("milestone percentages must sum to 100%")

	// ErrNegativeAmount is returned for a negative currency amount.
	ErrNegativeAmount = errors.New("amount must not be negative")

	// ErrRateOutOfRange is returned for a rate or percentage outside [0,1].
	ErrRateOutOfRange = errors.New("rate must be between 0 and 1")

	// ErrDuplicateObligation is returned when two obligations share an ID.
	ErrDuplicateObligation = errors.New("duplicate obligation id")

	// ErrUnknownObligation is returned when a modification removes an
	// obligation the base contract does not have.
	ErrUnknownObligation = errors.New("unknown obligation id")

	// ErrUnknownMethod is returned for an unrecognised method tag.
	ErrUnknownMethod = errors.New("unknown recognition method")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError identifies the offending obligation (if any) and field.
type ValidationError struct {
	ObligationID string
	Field        string
	Reason       string
	Err          error
}

func (e *ValidationError) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.ObligationID != "" {
		return fmt.Sprintf("obligation %s: %s: %s", e.ObligationID, e.Field, msg)
	}
	return fmt.Sprintf("%s: %s", e.Field, msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field string, err error, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...), Err: err}
}

// forObligation stamps the obligation id on a validation error.
func forObligation(id string, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		if verr.ObligationID == "" {
			cp := *verr
			cp.ObligationID = id
			return &cp
		}
		return err
	}
	return &ValidationError{ObligationID: id, Field: "recognition", Reason: err.Error(), Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if err is an input validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

/*
errors.go - Centralized error types for the reconciliation core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context using %w,
  and the API layer maps them to HTTP status codes with the helpers below.

ERROR CATEGORIES:
  1. Validation errors - malformed input, surfaced immediately (4xx)
  2. Lookup errors     - unknown station, safe, customer (404)
  3. Ledger errors     - invariant violations, duplicates (fatal / 409)
  4. Store errors      - database-level failures (500)

RESOLUTION GAPS ARE NOT ERRORS:
  A missing price or an implausible meter reading is a data-quality issue.
  Those are reported as exclusions by the meter engine, never returned
  as errors from report generation.

SEE ALSO:
  - safe/ledger.go: Uses ErrInvariantViolation, ErrDuplicateIdempotencyKey
  - report/aggregator.go: Uses ValidationError for bad windows
  - api/handlers.go: statusFor maps these to HTTP
*/
package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced station, safe, customer or
	// record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidWindow is returned when a report window is malformed.
	ErrInvalidWindow = errors.New("invalid window")

	// ErrInvalidAmount is returned for negative or otherwise unusable amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidInput is returned for any other malformed request field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvariantViolation is returned when a ledger entry does not satisfy
	// balanceAfter = balanceBefore ± amount. Always fatal for the insert.
	ErrInvariantViolation = errors.New("ledger invariant violation")

	// ErrDuplicateIdempotencyKey is returned when a posting with the same
	// idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrAlreadyExists is returned when creating a record whose identity is taken
	// (a second safe for one station, for example).
	ErrAlreadyExists = errors.New("already exists")

	// ErrCreditLimitExceeded is returned when a credit sale would push the
	// customer's balance over the agreed limit.
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")

	// ErrStoreRequired is returned when an operation requires a store
	// capability the configured store does not provide.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
	Err     error // sentinel this error unwraps to; ErrInvalidInput when nil
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidInput
	}
	return e.Err
}

// Invalid is shorthand for a field-level validation failure.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvariantError describes a ledger entry whose balances do not add up.
type InvariantError struct {
	TransactionID string
	Expected      string
	Actual        string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger invariant violated for %s: expected balance after %s, got %s",
		e.TransactionID, e.Expected, e.Actual)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrCreditLimitExceeded)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the request clashes with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrAlreadyExists)
}

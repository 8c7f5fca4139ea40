/*
errors.go - Centralized error types for the fulfillment engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store and coordinator code wraps these with operation context using
  fmt.Errorf("...: %w", err); callers classify with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Schema errors     - migration step failed (fatal only for required tables)
  2. Not found         - prescription or catalog code does not exist
  3. Validation        - bad input, insufficient stock under the reject policy
  4. Invalid state     - lifecycle violation (dispense a draft, edit a dispensed)
  5. Lock timeout      - engine lock not acquired within the busy timeout

ALREADY DISPENSED:
  Re-dispensing is NOT an error. The coordinator reports it as a benign
  outcome (Outcome.AlreadyDispensed). ErrAlreadyDispensed exists so that
  mutations of a dispensed prescription can be matched precisely.

SEE ALSO:
  - dispensing/coordinator.go: produces InvalidStateError, InsufficientStockError
  - store/sqlite/sqlite.go: produces LockTimeoutError
  - store/sqlite/schema.go: produces SchemaError
*/
package pharmacy

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSchema is returned when a schema migration step fails.
	ErrSchema = errors.New("schema migration failed")

	// ErrNotFound is returned when a prescription or catalog entry is missing.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for invalid input. Never silently coerced.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock is returned when a dispense would take
	// quantity-on-hand below zero and the stock policy rejects it.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidState is returned for disallowed lifecycle transitions.
	ErrInvalidState = errors.New("invalid prescription state")

	// ErrAlreadyDispensed is wrapped by InvalidStateError when the
	// prescription in question is already dispensed.
	ErrAlreadyDispensed = errors.New("prescription already dispensed")

	// ErrLockTimeout is returned when the store lock could not be acquired
	// within the busy timeout. Safe to retry.
	ErrLockTimeout = errors.New("lock timeout")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SchemaError describes a failed migration step.
type SchemaError struct {
	Step   string
	Table  string
	Column string
	Err    error
}

func (e *SchemaError) Error() string {
	target := e.Table
	if e.Column != "" {
		target += "." + e.Column
	}
	return fmt.Sprintf("schema %s %s: %v", e.Step, target, e.Err)
}

func (e *SchemaError) Unwrap() []error { return []error{ErrSchema, e.Err} }

// NotFoundError names the missing thing.
type NotFoundError struct {
	Kind string // "prescription", "catalog entry"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientStockError provides details about a stock shortage.
// It is a validation error: the request asks for more than exists.
type InsufficientStockError struct {
	Code      string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.Code, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() []error {
	return []error{ErrValidation, ErrInsufficientStock}
}

// InvalidStateError reports an action attempted in the wrong state.
type InvalidStateError struct {
	PrescriptionID int64
	Status         Status
	Action         string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s prescription %d in status %s",
		e.Action, e.PrescriptionID, e.Status)
}

func (e *InvalidStateError) Unwrap() []error {
	if e.Status == StatusDispensed {
		return []error{ErrInvalidState, ErrAlreadyDispensed}
	}
	return []error{ErrInvalidState}
}

// LockTimeoutError wraps an engine busy/locked failure.
type LockTimeoutError struct {
	Op  string
	Err error
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("%s: lock timeout: %v", e.Op, e.Err)
}

func (e *LockTimeoutError) Unwrap() []error { return []error{ErrLockTimeout, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsClientError returns true if the error is due to invalid client input
// or a request that does not fit the prescription's current state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidState)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

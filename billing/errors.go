/*
errors.go - Error taxonomy for the billing engine

ERROR CATEGORIES:
  1. Validation - missing or out-of-range input fields
  2. NotFound   - client, balance, invoice, statement or payment absent
  3. Conflict   - a business rule blocks the operation
  4. Internal   - store failure or unexpected condition

USAGE:
  Every structured error unwraps to one sentinel, so callers branch with
  errors.Is:

    if errors.Is(err, billing.ErrConflict) {
        // unpaid statement blocks generation
    }

SEE ALSO:
  - api/handlers.go: Maps categories to HTTP status codes
*/
package billing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when input fields are missing or out of range.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a business rule blocks the operation.
	ErrConflict = errors.New("conflict")

	// ErrInternal is returned when the store fails mid-operation.
	ErrInternal = errors.New("internal error")

	// ErrUnpaidStatementExists blocks statement generation for a client.
	ErrUnpaidStatementExists = &ConflictError{Reason: "unpaid statement exists"}

	// ErrInvoiceBilled blocks deleting an invoice already on a statement.
	ErrInvoiceBilled = &ConflictError{Reason: "invoice already billed on a statement"}

	// ErrStatementNotLatest blocks deleting a statement a later one builds on.
	ErrStatementNotLatest = &ConflictError{Reason: "only the client's latest statement can be deleted"}
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError lists every offending field with its problem.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := e.FieldNames()
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + ": " + e.Fields[n]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FieldNames returns the offending field names, sorted.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for n := range e.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// validator collects field problems before any mutation begins.
type validator struct {
	fields map[string]string
}

func (v *validator) check(ok bool, field, problem string) {
	if ok {
		return
	}
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	if _, seen := v.fields[field]; !seen {
		v.fields[field] = problem
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

// NotFoundError names the kind and id of the missing record.
type NotFoundError struct {
	Kind string // "client", "balance", "invoice", "statement", "payment"
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError describes the business rule that blocked the operation.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InternalError wraps a store failure with the operation that hit it.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() []error { return []error{ErrInternal, e.Err} }

// internal wraps err as an InternalError unless it already carries one of
// the taxonomy sentinels.
func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrInternal) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict returns true if a business rule blocked the operation.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict)
}

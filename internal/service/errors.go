// Package service contains the business logic layer.
package service

import (
	"errors"
	"fmt"
	"strings"
)

// ReconcileErrorKind classifies a reconciliation failure.
type ReconcileErrorKind string

const (
	// MalformedPayload means the fetched records cannot be applied as-is
	// (missing natural key, unusable metadata). Permanent.
	MalformedPayload ReconcileErrorKind = "malformed_payload"

	// ReferencedResourceMissing means a parent entity the payload refers to
	// does not exist in the catalog. Permanent.
	ReferencedResourceMissing ReconcileErrorKind = "referenced_resource_missing"

	// DuplicateConflict means a unique-index race or a busy database got in
	// the way. The only retryable reconcile failure.
	DuplicateConflict ReconcileErrorKind = "duplicate_conflict"
)

// ReconcileError is a classified reconciliation failure.
type ReconcileError struct {
	Kind ReconcileErrorKind
	Err  error
}

func (e *ReconcileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reconcile: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("reconcile: %s", e.Kind)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// Retryable reports whether re-running the job could succeed.
func (e *ReconcileError) Retryable() bool {
	return e.Kind == DuplicateConflict
}

// NewReconcileError wraps err as a classified reconcile failure.
func NewReconcileError(kind ReconcileErrorKind, err error) *ReconcileError {
	return &ReconcileError{Kind: kind, Err: err}
}

// AsReconcileError extracts a ReconcileError from an error chain.
func AsReconcileError(err error) (*ReconcileError, bool) {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// classifyStoreError maps raw SQLite errors from the catalog writes onto the
// reconcile taxonomy. Unique races and busy locks are worth retrying.
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "UNIQUE constraint") {
		return NewReconcileError(DuplicateConflict, err)
	}
	return err
}

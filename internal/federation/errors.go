package federation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotPrimary is matched by NotPrimaryError.
	ErrNotPrimary = errors.New("local cluster is not the primary cluster in the federation")

	// ErrInvalidRequest is matched by ValidationError.
	ErrInvalidRequest = errors.New("invalid request")
)

// ValidationError reports caller input rejected before any remote call.
// Index is the offending member position, or -1 for request-level fields.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("member %d: invalid %s: %s", e.Index, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// ObservationError means the remote state could not be read, so no plan
// can be trusted.
type ObservationError struct {
	Resource string
	Err      error
}

func (e *ObservationError) Error() string {
	return fmt.Sprintf("observe %s: %v", e.Resource, e.Err)
}

func (e *ObservationError) Unwrap() error {
	return e.Err
}

// NotPrimaryError rejects a mutating request on a federation the local
// cluster does not own.
type NotPrimaryError struct {
	Local       string
	Federations []string
}

func (e *NotPrimaryError) Error() string {
	return fmt.Sprintf("%s: local cluster %q, federation(s) %s; cannot add/remove members",
		ErrNotPrimary, e.Local, strings.Join(e.Federations, ", "))
}

func (e *NotPrimaryError) Is(target error) bool {
	return target == ErrNotPrimary
}

// OperationError is a failed remote write. Operations before Index were
// applied and are not rolled back.
type OperationError struct {
	Index int
	Op    Operation
	Err   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %d (%s %s) failed: %v", e.Index, e.Op.Kind(), e.Op.Target(), e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

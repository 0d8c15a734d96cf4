package model

import (
	"errors"
	"fmt"
)

// ErrReferenceDataNotFound signals that no reference snapshot exists for the
// requested period. It is expected and recoverable: the run service treats
// it as a skipped run, not a failure.
var ErrReferenceDataNotFound = errors.New("reference data not found")

// IsReferenceDataNotFound reports whether err wraps ErrReferenceDataNotFound.
func IsReferenceDataNotFound(err error) bool {
	return errors.Is(err, ErrReferenceDataNotFound)
}

// InvalidArgumentError marks a caller contract violation. It is surfaced
// immediately and never silently swallowed.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

// IsInvalidArgument reports whether err has an InvalidArgumentError in its chain.
func IsInvalidArgument(err error) bool {
	var ia *InvalidArgumentError
	return errors.As(err, &ia)
}

// NotFoundError marks a reference to an entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// IsNotFound reports whether err has a NotFoundError in its chain.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ComparisonFailure wraps any other error raised during report generation or
// persistence. It is surfaced to the notification sink but does not abort
// sibling comparator runs for the same trigger.
type ComparisonFailure struct {
	RefType ReferenceType
	Err     error
}

func (e *ComparisonFailure) Error() string {
	return fmt.Sprintf("comparison failed for %s: %v", e.RefType, e.Err)
}

func (e *ComparisonFailure) Unwrap() error {
	return e.Err
}

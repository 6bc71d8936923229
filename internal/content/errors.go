package content

import (
	"errors"
	"fmt"
)

// ValidationError is a client-caused, pre-I/O rejection: malformed
// slug, unknown type/status/category, oversized input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that a (type, slug) does not exist. Get and
// search surface absence as a plain result; update/delete/publish/
// archive return this as a hard error because they require existence.
type NotFoundError struct {
	Type Type
	Slug string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("content %s/%s not found", e.Type, e.Slug)
}

// ConflictError reports a create against an existing slug.
type ConflictError struct {
	Type Type
	Slug string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("content %s/%s already exists", e.Type, e.Slug)
}

// StorageError wraps an I/O failure unrelated to "missing". Its Error
// string is safe to relay: the underlying cause (which may carry
// absolute paths) is only reachable via Unwrap, for sanitized logging.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("content storage failure during %s", e.Op)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var v *NotFoundError
	return errors.As(err, &v)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var v *ConflictError
	return errors.As(err, &v)
}

package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError reports malformed or out-of-range input. It is
// user-correctable and maps to a 400 at the API boundary.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// NotFoundError wraps a domain sentinel error for a referenced entity
// that does not exist. Maps to a 404 at the API boundary.
type NotFoundError struct {
	Err error
}

func NewNotFoundError(err error) error {
	return &NotFoundError{err}
}

func (err *NotFoundError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// ConflictError reports a state precondition violation: no copies in
// stock, already returned, fine not pending. Maps to a 409.
type ConflictError struct {
	Err error
}

func NewConflictError(err error) error {
	return &ConflictError{err}
}

func (err *ConflictError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

// NewShutdownError returns an error indicating the backing store (or another
// critical dependency) is unusable and the Server should shut down gracefully.
func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s *shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

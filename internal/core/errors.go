package core

import (
	"errors"
	"fmt"
)

// Error kinds. Wrap them with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrExternalService = errors.New("external service error")
	ErrPatternMismatch = errors.New("pattern mismatch")
	ErrLocked          = errors.New("period is locked by another run")
)

// UserError carries a message meant for the operator alongside its cause.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-facing error.
func NewUserError(userMessage string, err error) error {
	return &UserError{UserMessage: userMessage, Err: err}
}

// UserMessage returns the operator-facing text for err.
func UserMessage(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.UserMessage
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// KindOf names the error kind of err for logging.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrLocked), errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrExternalService):
		return "external_service_error"
	case errors.Is(err, ErrPatternMismatch):
		return "pattern_mismatch"
	default:
		return "internal_error"
	}
}

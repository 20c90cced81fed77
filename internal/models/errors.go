package models

import "errors"

var (
	ErrRuleNotFound    = errors.New("rule not found")
	ErrRuleDisabled    = errors.New("rule disabled")
	ErrContentNotFound = errors.New("content not found")
	ErrPostNotFound    = errors.New("scheduled post not found")
	ErrSlotConflict    = errors.New("slot conflicts with an existing scheduled post")
	ErrStaleRecord     = errors.New("scheduled post was modified concurrently")
	ErrTerminalPost    = errors.New("scheduled post is in a terminal state")
)

// ValidationError reports a request rejected before any state was touched.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// NewValidationError wraps a validation failure message.
func NewValidationError(msg string) error {
	return &ValidationError{Msg: msg}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

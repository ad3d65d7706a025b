package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an action is not legal in the current lifecycle state.
	ErrInvalidState = errors.New("action not allowed in current quiz state")
	// ErrNotAccepting is returned when the answer window for a question is closed.
	ErrNotAccepting = errors.New("answers are not being accepted")
	// ErrDuplicateAnswer is returned when a player answers the same question twice.
	ErrDuplicateAnswer = errors.New("question already answered")
	// ErrNotFound indicates an unknown player, question, option or question set.
	ErrNotFound = errors.New("not found")
	// ErrSessionClosed is returned once the session authority has stopped.
	ErrSessionClosed = errors.New("quiz session closed")
)

// ValidationError describes malformed question data coming from a loader.
type ValidationError struct {
	Row    int // 0 when the problem is not tied to a row
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("invalid question data: row %d: %s %s", e.Row, e.Field, e.Reason)
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid question data: %s %s", e.Field, e.Reason)
	}
	return "invalid question data: " + e.Reason
}

// Error codes carried on the wire.
const (
	CodeInvalidState    = "INVALID_STATE"
	CodeNotAccepting    = "NOT_ACCEPTING"
	CodeDuplicateAnswer = "DUPLICATE_ANSWER"
	CodeNotFound        = "NOT_FOUND"
	CodeValidation      = "VALIDATION_ERROR"
	CodeInternal        = "INTERNAL"
)

// Code maps err to its wire code.
func Code(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return CodeValidation
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrNotAccepting):
		return CodeNotAccepting
	case errors.Is(err, ErrDuplicateAnswer):
		return CodeDuplicateAnswer
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

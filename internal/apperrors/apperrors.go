// README: Shared error taxonomy for engine transitions and input validation.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel kinds. Module code wraps these so callers can branch with
// errors.Is without importing every module's own error set.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrIneligible    = errors.New("ineligible operation")
	ErrPrecondition  = errors.New("precondition not met")
	ErrStaleState    = errors.New("stale state")
	ErrTerminalState = errors.New("terminal state")
	ErrNotFound      = errors.New("not found")
)

// TransitionError carries enough structure for a host to decide whether
// to retry (stale state) or surface the failure to the user.
type TransitionError struct {
	Kind      error
	Entity    string
	Current   string
	Attempted string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s %s -> %s", e.Kind, e.Entity, e.Current, e.Attempted)
}

func (e *TransitionError) Unwrap() error { return e.Kind }

func Transition(kind error, entity, current, attempted string) error {
	return &TransitionError{Kind: kind, Entity: entity, Current: current, Attempted: attempted}
}

// TooEarlyError reports how long the caller has to wait before the
// operation becomes legal.
type TooEarlyError struct {
	Wait time.Duration
}

func (e *TooEarlyError) Error() string {
	return fmt.Sprintf("too early: retry in %s", e.Wait)
}

func (e *TooEarlyError) Unwrap() error { return ErrPrecondition }

func TooEarly(wait time.Duration) error {
	return &TooEarlyError{Wait: wait}
}

// HTTPStatus maps an engine error to a response status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStaleState), errors.Is(err, ErrTerminalState):
		return http.StatusConflict
	case errors.Is(err, ErrIneligible), errors.Is(err, ErrPrecondition):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

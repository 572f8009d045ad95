package marketplace

import (
	"errors"
	"fmt"
	"net/http"
)

// Store sentinels. Implementations of Store return these (possibly wrapped)
// so the engine can tell a lost race from a missing row.
var (
	ErrNotFound   = errors.New("record not found")
	ErrStaleWrite = errors.New("stale write")
	ErrDuplicate  = errors.New("duplicate record")
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InvalidTransitionError reports an event that is not legal from the
// current state. The entity is left untouched.
type InvalidTransitionError struct {
	From  Status
	Event Event
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a service request in status %s", e.Event, e.From)
}

type UnauthorizedError struct {
	ActorID string
	Event   Event
	Reason  string
}

func (e UnauthorizedError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("user %s not allowed: %s", e.ActorID, e.Reason)
	}
	return fmt.Sprintf("user %s not allowed to %s: %s", e.ActorID, e.Event, e.Reason)
}

// StoreUnavailableError wraps a collaborator failure. Callers may retry.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e StoreUnavailableError) Unwrap() error { return e.Err }

type ConflictError struct {
	Resource string
	Msg      string
}

func (e ConflictError) Error() string {
	if e.Resource == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
}

// StatusCode maps a core error onto the HTTP status the transport returns.
func StatusCode(err error) int {
	var (
		ve  ValidationError
		nf  NotFoundError
		ite InvalidTransitionError
		ue  UnauthorizedError
		ce  ConflictError
		su  StoreUnavailableError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ite), errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &ue):
		return http.StatusForbidden
	case errors.As(err, &su):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// storeErr translates a store failure for the given resource.
func storeErr(op, resource, id string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return NotFoundError{Resource: resource, ID: id}
	default:
		return StoreUnavailableError{Op: op, Err: err}
	}
}

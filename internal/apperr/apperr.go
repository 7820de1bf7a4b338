package apperr

import (
	"errors"
	"net/http"
)

// Error kinds surfaced by the attendance core.
var (
	ErrBadgeNotFound       = errors.New("badge not registered")
	ErrBadgeConflict       = errors.New("badge already assigned to another person")
	ErrPersonNotFound      = errors.New("person not found")
	ErrInvalidTimeOrdering = errors.New("check-out time precedes check-in time")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
)

// Kind is the wire name of an error kind.
type Kind string

const (
	KindBadgeNotFound       Kind = "badge_not_found"
	KindBadgeConflict       Kind = "badge_conflict"
	KindPersonNotFound      Kind = "person_not_found"
	KindInvalidTimeOrdering Kind = "invalid_time_ordering"
	KindStorageUnavailable  Kind = "storage_unavailable"
	KindInvalidInput        Kind = "invalid_input"
	KindUnauthorized        Kind = "unauthorized"
	KindInternal            Kind = "internal_error"
)

// StorageError wraps a persistence failure. It matches ErrStorageUnavailable
// under errors.Is while keeping the driver error reachable through Unwrap.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

// Storage wraps err as a StorageError for op. Nil stays nil, and errors that
// already carry a domain kind are returned untouched.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// KindOf reports the wire kind of err.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrBadgeNotFound):
		return KindBadgeNotFound
	case errors.Is(err, ErrBadgeConflict):
		return KindBadgeConflict
	case errors.Is(err, ErrPersonNotFound):
		return KindPersonNotFound
	case errors.Is(err, ErrInvalidTimeOrdering):
		return KindInvalidTimeOrdering
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrStorageUnavailable):
		return KindStorageUnavailable
	default:
		return KindInternal
	}
}

// HTTPStatus maps err to the status code used by the HTTP layer.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindBadgeNotFound, KindPersonNotFound:
		return http.StatusNotFound
	case KindBadgeConflict:
		return http.StatusConflict
	case KindInvalidTimeOrdering:
		return http.StatusUnprocessableEntity
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// IsBusiness reports whether err is an expected rule outcome rather than a fault.
func IsBusiness(err error) bool {
	return HTTPStatus(err) < http.StatusInternalServerError
}

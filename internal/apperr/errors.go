package apperr

import (
	"errors"
	"net/http"
)

// Kind groups errors by how the caller should react.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindNotFound    Kind = "not_found"
	KindAuth        Kind = "auth"
	KindStore       Kind = "store"
	KindUnavailable Kind = "unavailable"
)

// Error is a classified failure carrying the status and the short message
// that is safe to return to clients. The wrapped cause is only logged.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on Code so a freshly wrapped store failure still satisfies
// errors.Is(err, ErrStore).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrMissingFields      = &Error{Kind: KindValidation, Code: "MISSING_FIELDS", Message: "Missing required fields", Status: http.StatusBadRequest}
	ErrInvalidInput       = &Error{Kind: KindValidation, Code: "INVALID_INPUT", Message: "Invalid request body", Status: http.StatusBadRequest}
	ErrInvalidPhoto       = &Error{Kind: KindValidation, Code: "INVALID_PHOTO", Message: "Invalid or missing photo", Status: http.StatusBadRequest}
	ErrDuplicateEmail     = &Error{Kind: KindConflict, Code: "DUPLICATE_EMAIL", Message: "Email already exists", Status: http.StatusBadRequest}
	ErrInvalidTransition  = &Error{Kind: KindConflict, Code: "INVALID_TRANSITION", Message: "Attendance state does not allow this action", Status: http.StatusConflict}
	ErrUserNotFound       = &Error{Kind: KindNotFound, Code: "USER_NOT_FOUND", Message: "User not found", Status: http.StatusNotFound}
	ErrInvalidCredentials = &Error{Kind: KindAuth, Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", Status: http.StatusBadRequest}
	ErrPhotoMismatch      = &Error{Kind: KindAuth, Code: "PHOTO_MISMATCH", Message: "Photo does not match enrolled photo", Status: http.StatusUnauthorized}
	ErrUnauthorized       = &Error{Kind: KindAuth, Code: "UNAUTHORIZED", Message: "Missing or invalid bearer token", Status: http.StatusUnauthorized}
	ErrForbidden          = &Error{Kind: KindAuth, Code: "FORBIDDEN", Message: "Token does not belong to this user", Status: http.StatusForbidden}
	ErrStore              = &Error{Kind: KindStore, Code: "STORE_ERROR", Message: "Internal server error", Status: http.StatusInternalServerError}
	ErrUnavailable        = &Error{Kind: KindUnavailable, Code: "UNAVAILABLE", Message: "Photo verification unavailable", Status: http.StatusInternalServerError}
)

// Store wraps a persistence failure.
func Store(cause error) error {
	return wrap(ErrStore, cause)
}

// Unauthorized wraps a rejected bearer token.
func Unauthorized(cause error) error {
	return wrap(ErrUnauthorized, cause)
}

// Unavailable wraps a failure of an upstream dependency.
func Unavailable(cause error) error {
	return wrap(ErrUnavailable, cause)
}

func wrap(base *Error, cause error) error {
	e := *base
	e.cause = cause
	return &e
}

// From classifies any error. Unclassified errors are treated as store
// failures so raw causes never reach the client.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return wrap(ErrStore, err).(*Error)
}

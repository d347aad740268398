package authsphere

import (
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeNotAuthenticated   = "NOT_AUTHENTICATED"
	textCodePermissionDenied   = "PERMISSION_DENIED"
	textCodeLoginInProgress    = "LOGIN_IN_PROGRESS"
	textCodeLoginSuperseded    = "LOGIN_SUPERSEDED"
	textCodeConfirmationNeeded = "CONFIRMATION_DECLINED"
	textCodeBackendUnavailable = "BACKEND_UNAVAILABLE"
)

// ErrInvalidCredentials is returned when the backend rejects the username or
// password during the token exchange.
var ErrInvalidCredentials = goerrors.New("invalid username or password", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrNotAuthenticated is returned when an operation needs a session and none
// is established (no identity, or a token the backend no longer accepts).
var ErrNotAuthenticated = goerrors.New("not authenticated", goerrors.CategoryAuth).
	WithTextCode(textCodeNotAuthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrPermissionDenied is returned when an authenticated identity lacks a
// required permission.
var ErrPermissionDenied = goerrors.New("permission denied", goerrors.CategoryAuthz).
	WithTextCode(textCodePermissionDenied).
	WithCode(goerrors.CodeForbidden)

// ErrLoginInProgress is the deterministic rejection for a second concurrent
// login; SessionManager never queues logins.
var ErrLoginInProgress = goerrors.New("a login is already in progress", goerrors.CategoryConflict).
	WithTextCode(textCodeLoginInProgress).
	WithCode(goerrors.CodeConflict)

// ErrLoginSuperseded is returned when a logout lands while a login or refresh
// is in flight; the logged-out state always wins.
var ErrLoginSuperseded = goerrors.New("session was logged out while the operation was in flight", goerrors.CategoryConflict).
	WithTextCode(textCodeLoginSuperseded).
	WithCode(goerrors.CodeConflict)

// ErrConfirmationDeclined is returned when a destructive operation runs
// without interactive approval.
var ErrConfirmationDeclined = goerrors.New("operation was not confirmed", goerrors.CategoryOperation).
	WithTextCode(textCodeConfirmationNeeded).
	WithCode(goerrors.CodeBadRequest)

// WrapNetworkError marks a transport-level failure talking to the backend.
func WrapNetworkError(err error, msg string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(textCodeBackendUnavailable)
}

// ConflictKind narrows a 409 response to the field that collided.
type ConflictKind string

const (
	ConflictUsernameTaken ConflictKind = "username_taken"
	ConflictEmailTaken    ConflictKind = "email_taken"
	ConflictUnspecified   ConflictKind = "unspecified"
)

// ConflictError is the structured form of a 409 response from the
// registration contract.
type ConflictError struct {
	Kind   ConflictKind
	Detail string
}

func (e *ConflictError) Error() string {
	if e == nil {
		return "conflict"
	}
	if e.Detail != "" {
		return fmt.Sprintf("conflict (%s): %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("conflict (%s)", e.Kind)
}

// ClassifyConflict maps a raw 409 detail string onto a ConflictKind.
func ClassifyConflict(detail string) ConflictKind {
	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "username"):
		return ConflictUsernameTaken
	case strings.Contains(lower, "email"):
		return ConflictEmailTaken
	default:
		return ConflictUnspecified
	}
}

// FieldError is one entry of a 422-style structured validation response.
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors is the list form the backend returns for invalid payloads.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		if fe.Field != "" {
			parts = append(parts, fe.Field+": "+fe.Message)
			continue
		}
		parts = append(parts, fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsConflict reports whether err carries a ConflictError.
func IsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if goerrors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

// IsValidation reports whether err carries backend validation errors.
func IsValidation(err error) (ValidationErrors, bool) {
	var verrs ValidationErrors
	if goerrors.As(err, &verrs) {
		return verrs, true
	}
	return nil, false
}

// IsNotAuthenticated reports whether err means the session is anonymous or
// the backend no longer accepts its token.
func IsNotAuthenticated(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == textCodeNotAuthenticated
	}
	return false
}

// IsPermissionDenied reports whether err means the identity lacked a
// required permission.
func IsPermissionDenied(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == textCodePermissionDenied
	}
	return false
}

// IsTokenExpiredError will check for expired tokens.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message.
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

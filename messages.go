package authsphere

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// validationMessageTable maps fragments of raw backend validation strings to
// stable user-facing messages. Unmapped strings pass through verbatim.
var validationMessageTable = []struct {
	field    string
	fragment string
	message  string
}{
	{"username", "at least 3 characters", "Username must be at least 3 characters long."},
	{"username", "at most 50 characters", "Username must be at most 50 characters long."},
	{"password", "at least 8 characters", "Password must be at least 8 characters long."},
	{"password", "at most 128 characters", "Password must be at most 128 characters long."},
	{"email", "not a valid email", "Please enter a valid email address."},
	{"consent_lgpd", "", "You must accept the data-processing consent to register."},
}

// HumanizeFieldError maps one backend validation entry to a stable message.
func HumanizeFieldError(fe FieldError) string {
	field := strings.ToLower(fe.Field)
	msg := strings.ToLower(fe.Message)
	for _, row := range validationMessageTable {
		if row.field != "" && row.field != field {
			continue
		}
		if row.fragment != "" && !strings.Contains(msg, row.fragment) {
			continue
		}
		return row.message
	}
	return fe.Message
}

// HumanizeError renders any error from the session or the directory as a
// user-visible message. Structured validation and conflict errors get their
// mapped messages; everything else falls back to the taxonomy defaults or the
// raw error text.
func HumanizeError(err error) string {
	if err == nil {
		return ""
	}

	if conflict, ok := IsConflict(err); ok {
		switch conflict.Kind {
		case ConflictUsernameTaken:
			return "This username is already taken. Please choose another."
		case ConflictEmailTaken:
			return "This email address is already registered."
		default:
			if conflict.Detail != "" {
				return conflict.Detail
			}
			return "The record conflicts with an existing one."
		}
	}

	if verrs, ok := IsValidation(err); ok && len(verrs) > 0 {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, HumanizeFieldError(fe))
		}
		return strings.Join(parts, " ")
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.TextCode {
		case textCodeInvalidCredentials:
			return "Invalid username or password."
		case textCodeNotAuthenticated:
			return "Please sign in to continue."
		case textCodePermissionDenied:
			return "You do not have permission to perform this action."
		case textCodeLoginInProgress:
			return "A sign-in is already in progress."
		case textCodeConfirmationNeeded:
			return "The operation was cancelled."
		case textCodeBackendUnavailable:
			return "The service is temporarily unavailable. Please try again."
		}
	}

	return err.Error()
}

// Package apierror defines the wire-level error envelope. Handlers translate
// service sentinel errors into these; services never write HTTP responses.
package apierror

import (
	"fmt"
	"net/http"

	"github.com/lanternhq/lantern/pkg/httpx"
)

// Error represents a client-visible failure. It implements the error
// interface and knows how to render itself as a JSON response.
type Error struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the machine-readable error code (e.g. "email-already-in-use")
	Code string `json:"error"`

	// Message is a human-readable description of the error
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WriteError writes this error to an HTTP response writer.
func (e *Error) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, map[string]string{
		"error":   e.Code,
		"message": e.Message,
	})
}

// New builds a one-off error when none of the predefined ones fit.
func New(status int, code, message string) *Error {
	return &Error{StatusCode: status, Code: code, Message: message}
}

var (
	// ErrInvalidRequest covers malformed bodies and missing required fields.
	ErrInvalidRequest = &Error{
		StatusCode: http.StatusBadRequest,
		Code:       "invalid-request",
		Message:    "the request is malformed or missing required parameters",
	}

	// ErrEmailAlreadyInUse is returned when the email uniqueness constraint
	// rejects a signup or merge.
	ErrEmailAlreadyInUse = &Error{
		StatusCode: http.StatusConflict,
		Code:       "email-already-in-use",
		Message:    "email already in use",
	}

	// ErrInvalidCredentials covers bad email/password pairs and invalid,
	// rotated or revoked refresh tokens. Deliberately unspecific.
	ErrInvalidCredentials = &Error{
		StatusCode: http.StatusUnauthorized,
		Code:       "invalid-credentials",
		Message:    "invalid credentials",
	}

	// ErrUnverifiedUser is returned when sign-in requires a verified email.
	ErrUnverifiedUser = &Error{
		StatusCode: http.StatusUnauthorized,
		Code:       "unverified-user",
		Message:    "email is not verified",
	}

	// ErrDisabledUser is the administrative override at sign-in.
	ErrDisabledUser = &Error{
		StatusCode: http.StatusUnauthorized,
		Code:       "disabled-user",
		Message:    "user is disabled",
	}

	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = &Error{
		StatusCode: http.StatusBadRequest,
		Code:       "user-not-found",
		Message:    "no user with this email exists",
	}

	// ErrInvalidTicket covers unknown, expired, consumed and wrong-kind tickets.
	ErrInvalidTicket = &Error{
		StatusCode: http.StatusUnauthorized,
		Code:       "invalid-ticket",
		Message:    "ticket is invalid, expired or already used",
	}

	// ErrInvalidSignInMethod rejects unsupported deanonymization methods.
	ErrInvalidSignInMethod = &Error{
		StatusCode: http.StatusBadRequest,
		Code:       "invalid-sign-in-method",
		Message:    "unsupported sign-in method",
	}

	// ErrUserNotAnonymous is returned when deanonymizing a permanent user.
	ErrUserNotAnonymous = &Error{
		StatusCode: http.StatusBadRequest,
		Code:       "user-not-anonymous",
		Message:    "logged in user is not anonymous",
	}

	// ErrRoleNotAllowed is returned for role policy violations.
	ErrRoleNotAllowed = &Error{
		StatusCode: http.StatusBadRequest,
		Code:       "role-not-allowed",
		Message:    "requested role is not allowed",
	}

	// ErrSignupDisabled is returned when new-user creation is switched off.
	ErrSignupDisabled = &Error{
		StatusCode: http.StatusForbidden,
		Code:       "signup-disabled",
		Message:    "new user registration is disabled",
	}

	// ErrUnauthenticated is returned for missing or invalid bearer tokens.
	ErrUnauthenticated = &Error{
		StatusCode: http.StatusUnauthorized,
		Code:       "unauthenticated-user",
		Message:    "user is not authenticated",
	}

	// ErrInternal is the opaque server fault: store unavailability,
	// misconfiguration, broken invariants. Details go to the log only.
	ErrInternal = &Error{
		StatusCode: http.StatusInternalServerError,
		Code:       "internal-error",
		Message:    "internal server error",
	}
)

package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/lanternhq/lantern/internal/auth/notify"
	"github.com/lanternhq/lantern/internal/auth/service"
	"github.com/lanternhq/lantern/pkg/apierror"
	"github.com/lanternhq/lantern/pkg/slogx"
)

// writeServiceError maps service sentinel errors onto the wire envelope.
// Anything unmapped is a server fault: logged in full, reported opaquely.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		apierror.New(http.StatusBadRequest, "invalid-email", "email is not valid").WriteError(w)
	case errors.Is(err, service.ErrPasswordTooWeak):
		apierror.New(http.StatusBadRequest, "password-too-weak", "password does not meet the minimum requirements").WriteError(w)
	case errors.Is(err, service.ErrInvalidProfile):
		apierror.New(http.StatusBadRequest, "invalid-profile", "profile values must be scalar").WriteError(w)
	case errors.Is(err, service.ErrEmailTaken):
		apierror.ErrEmailAlreadyInUse.WriteError(w)
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidRefresh):
		apierror.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrUnverifiedUser):
		apierror.ErrUnverifiedUser.WriteError(w)
	case errors.Is(err, service.ErrDisabledUser):
		apierror.ErrDisabledUser.WriteError(w)
	case errors.Is(err, service.ErrUserNotFound):
		apierror.ErrUserNotFound.WriteError(w)
	case errors.Is(err, service.ErrInvalidTicket):
		apierror.ErrInvalidTicket.WriteError(w)
	case errors.Is(err, service.ErrInvalidSignInMethod):
		apierror.ErrInvalidSignInMethod.WriteError(w)
	case errors.Is(err, service.ErrUserNotAnonymous):
		apierror.ErrUserNotAnonymous.WriteError(w)
	case errors.Is(err, service.ErrRoleNotAllowed),
		errors.Is(err, service.ErrDefaultRoleNotAllowed):
		apierror.ErrRoleNotAllowed.WriteError(w)
	case errors.Is(err, service.ErrSignupDisabled),
		errors.Is(err, service.ErrAnonymousDisabled):
		apierror.ErrSignupDisabled.WriteError(w)
	case errors.Is(err, service.ErrInvalidTOTPCode):
		apierror.New(http.StatusUnauthorized, "invalid-totp-code", "the code is not valid").WriteError(w)
	case errors.Is(err, service.ErrMFAAlreadyEnabled):
		apierror.New(http.StatusBadRequest, "mfa-already-enabled", "multi-factor authentication is already enabled").WriteError(w)
	case errors.Is(err, service.ErrMFANotEnabled):
		apierror.New(http.StatusBadRequest, "mfa-not-enabled", "multi-factor authentication is not enabled").WriteError(w)
	case errors.Is(err, service.ErrMFANotEnrolled):
		apierror.New(http.StatusBadRequest, "mfa-not-enrolled", "no authenticator has been set up").WriteError(w)
	case errors.Is(err, notify.ErrNotConfigured):
		slogx.FromContext(ctx).Error("email delivery required but not configured")
		apierror.ErrInternal.WriteError(w)
	default:
		slogx.FromContext(ctx).Error("unhandled service error", "error", err)
		apierror.ErrInternal.WriteError(w)
	}
}

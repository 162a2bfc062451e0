package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/lanternhq/lantern/internal/auth/store"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	ErrMFANotEnabled     = errors.New("mfa_not_enabled")
	ErrMFAAlreadyEnabled = errors.New("mfa_already_enabled")
	ErrMFANotEnrolled    = errors.New("mfa_not_enrolled")
)

// MFAEnrollment is handed back when TOTP enrolment starts: the shared secret
// plus the otpauth:// URL authenticator apps consume.
type MFAEnrollment struct {
	Secret string `json:"totpSecret"`
	URL    string `json:"imageUrl"`
}

// MFAService manages per-user TOTP enrolment. Enrolment is two-phase: the
// secret is stored immediately but sign-in is only gated once the user
// proves they can produce a valid code.
type MFAService struct {
	Store  store.Store
	Issuer string
}

// Enroll generates a TOTP secret for the user. MFA is not active yet; the
// user must activate with a valid code first.
func (s *MFAService) Enroll(ctx context.Context, userID string) (MFAEnrollment, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return MFAEnrollment{}, err
	}
	if user.MFAEnabled {
		return MFAEnrollment{}, ErrMFAAlreadyEnabled
	}

	account := user.Email
	if account == "" {
		account = user.ID
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return MFAEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	if err := s.Store.Users().UpdateTOTPSecret(ctx, userID, key.Secret()); err != nil {
		return MFAEnrollment{}, err
	}

	return MFAEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// Activate turns the sign-in gate on once the user produces a valid code for
// their enrolled secret.
func (s *MFAService) Activate(ctx context.Context, userID, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFAEnabled {
		return ErrMFAAlreadyEnabled
	}
	if user.TOTPSecret == "" {
		return ErrMFANotEnrolled
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return ErrInvalidTOTPCode
	}
	return s.Store.Users().EnableMFA(ctx, userID)
}

// Disable removes the gate. A valid current code is required so a stolen
// session alone cannot strip the second factor.
func (s *MFAService) Disable(ctx context.Context, userID, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return ErrMFANotEnabled
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return ErrInvalidTOTPCode
	}
	return s.Store.Users().DisableMFA(ctx, userID)
}

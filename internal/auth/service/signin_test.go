package service

import (
	"context"
	"testing"
	"time"

	"github.com/lanternhq/lantern/internal/auth/notify"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestSignInEmailPassword(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()
	s.register(t, "alice@example.com", "correct-password")

	resp, err := s.signin.EmailPassword(ctx, "alice@example.com", "correct-password")
	require.NoError(t, err)
	require.NotNil(t, resp.Session)
	require.Nil(t, resp.MFA)

	_, err = s.signin.EmailPassword(ctx, "alice@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.signin.EmailPassword(ctx, "nobody@example.com", "correct-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignInPasswordMethodUnavailable(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()

	// Passwordless registration leaves no password hash behind.
	require.NoError(t, s.signin.PasswordlessEmail(ctx, "linkonly@example.com", PasswordlessLink, SignupInput{}))

	_, err := s.signin.EmailPassword(ctx, "linkonly@example.com", "whatever-long")
	require.ErrorIs(t, err, ErrInvalidSignInMethod)
}

func TestSignInAnonymous(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()

	resp, err := s.signin.Anonymous(ctx, "", "")
	require.NoError(t, err)
	require.NotNil(t, resp.Session)

	user := resp.Session.User
	require.True(t, user.IsAnonymous)
	require.Empty(t, user.Email)
	require.Equal(t, "anonymous", user.DefaultRole)
	require.Equal(t, []string{"anonymous"}, user.AllowedRoles)
	require.Equal(t, "Anonymous User", user.DisplayName)

	// Their refresh token works like any other.
	_, err = s.sessions.Refresh(ctx, resp.Session.RefreshToken)
	require.NoError(t, err)
}

func TestSignInAnonymousDisabled(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	s.signin.AnonymousEnabled = false

	_, err := s.signin.Anonymous(context.Background(), "", "")
	require.ErrorIs(t, err, ErrAnonymousDisabled)
}

func TestSignInPasswordlessCode(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()

	require.NoError(t, s.signin.PasswordlessEmail(ctx, "codes@example.com", PasswordlessCode, SignupInput{}))

	msg := s.mailer.Last()
	require.Equal(t, notify.TemplatePasswordlessCode, msg.Template)
	require.Len(t, msg.Ticket, 6)

	// Wrong code does not burn the real one.
	_, err := s.signin.OTP(ctx, "codes@example.com", "000000")
	if err == nil {
		t.Skip("generated code happened to be 000000")
	}
	require.ErrorIs(t, err, ErrInvalidTicket)

	resp, err := s.signin.OTP(ctx, "codes@example.com", msg.Ticket)
	require.NoError(t, err)
	require.NotNil(t, resp.Session)
	require.True(t, resp.Session.User.EmailVerified)

	// Codes are single-use.
	_, err = s.signin.OTP(ctx, "codes@example.com", msg.Ticket)
	require.ErrorIs(t, err, ErrInvalidTicket)
}

func TestSignInPasswordlessCodeWrongOwner(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()

	require.NoError(t, s.signin.PasswordlessEmail(ctx, "owner@example.com", PasswordlessCode, SignupInput{}))
	code := s.mailer.Last().Ticket
	s.register(t, "thief@example.com", "long-enough-pw")

	_, err := s.signin.OTP(ctx, "thief@example.com", code)
	require.ErrorIs(t, err, ErrInvalidTicket)
}

func TestSignInPasswordlessLink(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()

	require.NoError(t, s.signin.PasswordlessEmail(ctx, "magic@example.com", PasswordlessLink, SignupInput{}))

	msg := s.mailer.Last()
	require.Equal(t, notify.TemplatePasswordlessLink, msg.Template)
	require.Contains(t, msg.RedirectURL, "type=passwordless-link")

	resp, err := s.signin.CompletePasswordless(ctx, msg.Ticket)
	require.NoError(t, err)
	require.NotNil(t, resp.Session)
	require.Equal(t, "magic@example.com", resp.Session.User.Email)
	require.True(t, resp.Session.User.EmailVerified)

	_, err = s.signin.CompletePasswordless(ctx, msg.Ticket)
	require.ErrorIs(t, err, ErrInvalidTicket)
}

func TestSignInLinkTicketAcceptedAsOTP(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()

	// A client may pull the token out of the magic link and present it to
	// the OTP endpoint instead of following the redirect.
	require.NoError(t, s.signin.PasswordlessEmail(ctx, "extracted@example.com", PasswordlessLink, SignupInput{}))
	msg := s.mailer.Last()
	require.Equal(t, notify.TemplatePasswordlessLink, msg.Template)

	resp, err := s.signin.OTP(ctx, "extracted@example.com", msg.Ticket)
	require.NoError(t, err)
	require.Equal(t, "extracted@example.com", resp.Session.User.Email)
	require.True(t, resp.Session.User.EmailVerified)

	// Still single-use across both completion paths.
	_, err = s.signin.CompletePasswordless(ctx, msg.Ticket)
	require.ErrorIs(t, err, ErrInvalidTicket)
}

func TestSignInPasswordlessDisabled(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	s.signin.PasswordlessEnabled = false

	err := s.signin.PasswordlessEmail(context.Background(), "x@example.com", PasswordlessLink, SignupInput{})
	require.ErrorIs(t, err, ErrInvalidSignInMethod)
}

func TestSignInPasswordlessExistingUserKeepsIdentity(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()
	registered := s.register(t, "existing@example.com", "long-enough-pw")

	require.NoError(t, s.signin.PasswordlessEmail(ctx, "existing@example.com", PasswordlessCode, SignupInput{}))
	resp, err := s.signin.OTP(ctx, "existing@example.com", s.mailer.Last().Ticket)
	require.NoError(t, err)
	require.Equal(t, registered.ID, resp.Session.User.ID)
}

func TestSignInMFAFlow(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()
	user := s.register(t, "mfa@example.com", "long-enough-pw")

	enrollment, err := s.mfa.Enroll(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URL, "otpauth://")

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.mfa.Activate(ctx, user.ID, code))

	// Password alone now yields a challenge, not a session.
	resp, err := s.signin.EmailPassword(ctx, "mfa@example.com", "long-enough-pw")
	require.NoError(t, err)
	require.Nil(t, resp.Session)
	require.NotNil(t, resp.MFA)
	require.NotEmpty(t, resp.MFA.Ticket)

	// A wrong TOTP code leaves the challenge intact.
	_, err = s.signin.MFATOTP(ctx, resp.MFA.Ticket, "000000")
	require.ErrorIs(t, err, ErrInvalidTOTPCode)

	code, err = totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	completed, err := s.signin.MFATOTP(ctx, resp.MFA.Ticket, code)
	require.NoError(t, err)
	require.NotNil(t, completed.Session)

	// The challenge ticket is single-use.
	code, err = totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	_, err = s.signin.MFATOTP(ctx, resp.MFA.Ticket, code)
	require.ErrorIs(t, err, ErrInvalidTicket)
}

func TestMFALifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()
	user := s.register(t, "mfa-lifecycle@example.com", "long-enough-pw")

	// Activation without enrolment fails.
	require.ErrorIs(t, s.mfa.Activate(ctx, user.ID, "123456"), ErrMFANotEnrolled)

	enrollment, err := s.mfa.Enroll(ctx, user.ID)
	require.NoError(t, err)

	// A wrong code does not activate.
	require.ErrorIs(t, s.mfa.Activate(ctx, user.ID, "000000"), ErrInvalidTOTPCode)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.mfa.Activate(ctx, user.ID, code))

	// Double enroll/activate are rejected.
	_, err = s.mfa.Enroll(ctx, user.ID)
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)
	require.ErrorIs(t, s.mfa.Activate(ctx, user.ID, code), ErrMFAAlreadyEnabled)

	// Disable needs a valid current code.
	require.ErrorIs(t, s.mfa.Disable(ctx, user.ID, "000000"), ErrInvalidTOTPCode)
	code, err = totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.mfa.Disable(ctx, user.ID, code))

	// Plain password sign-in is back.
	resp, err := s.signin.EmailPassword(ctx, "mfa-lifecycle@example.com", "long-enough-pw")
	require.NoError(t, err)
	require.NotNil(t, resp.Session)
}

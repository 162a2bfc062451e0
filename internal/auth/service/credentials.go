package service

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/lanternhq/lantern/internal/auth/domain"
	"github.com/lanternhq/lantern/internal/auth/notify"
	"github.com/lanternhq/lantern/internal/auth/store"
	"github.com/lanternhq/lantern/pkg/cryptox"
	"github.com/lanternhq/lantern/pkg/idx"
)

var (
	ErrInvalidEmail    = errors.New("invalid_email")
	ErrPasswordTooWeak = errors.New("password_too_weak")
	ErrInvalidProfile  = errors.New("invalid_profile")
	ErrEmailTaken      = errors.New("email_already_in_use")
	ErrSignupDisabled  = errors.New("signup_disabled")
)

// DefaultPasswordMinLength applies when no policy length is configured.
const DefaultPasswordMinLength = 9

// CredentialPolicy validates caller-supplied credentials before any storage
// work happens.
type CredentialPolicy struct {
	PasswordMinLength int
}

// ValidateEmail requires a parseable, bare address (no display name part).
func (p CredentialPolicy) ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePassword enforces the configured minimum length.
func (p CredentialPolicy) ValidatePassword(password string) error {
	min := p.PasswordMinLength
	if min <= 0 {
		min = DefaultPasswordMinLength
	}
	if len(password) < min {
		return ErrPasswordTooWeak
	}
	return nil
}

// ValidateProfile accepts only scalar values, matching what the access-token
// extension claims can carry.
func (p CredentialPolicy) ValidateProfile(profile map[string]any) error {
	for _, v := range profile {
		switch v.(type) {
		case string, bool, float64, int, int64:
		default:
			return ErrInvalidProfile
		}
	}
	return nil
}

// GravatarURL derives the avatar URL for an email address.
func GravatarURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?d=blank&r=g", sum)
}

// SignupInput is the caller-supplied registration payload.
type SignupInput struct {
	Email        string
	Password     string
	DisplayName  string
	Locale       string
	DefaultRole  string
	AllowedRoles []string
	Profile      map[string]any
}

// SignupService registers permanent identities. Whether the new user gets a
// session immediately or must verify email first is deployment policy.
type SignupService struct {
	Store    store.Store
	Roles    *RolesService
	Tickets  *TicketService
	Sessions *SessionService
	Mailer   notify.Mailer

	Policy        CredentialPolicy
	Argon         cryptox.Argon2Params
	DefaultLocale string
	ServerURL     string

	// DisableSignup rejects all registration. DisableNewUsers admits the
	// row but leaves it unable to sign in until an operator clears the
	// flag. RequireVerifiedEmail withholds the session until the
	// verify-email ticket is consumed.
	DisableSignup        bool
	DisableNewUsers      bool
	RequireVerifiedEmail bool
}

// Register creates a permanent email+password identity. When email
// verification is required the response carries no session and a
// verify-email ticket goes out by mail; otherwise a session is issued
// immediately.
func (s *SignupService) Register(ctx context.Context, in SignupInput) (*domain.SignInResponse, error) {
	if s.DisableSignup {
		return nil, ErrSignupDisabled
	}
	if err := s.Policy.ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := s.Policy.ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := s.Policy.ValidateProfile(in.Profile); err != nil {
		return nil, err
	}

	defaultRole, allowedRoles, err := s.Roles.Resolve(in.DefaultRole, in.AllowedRoles)
	if err != nil {
		return nil, err
	}

	hash, err := cryptox.HashPassword(in.Password, s.Argon)
	if err != nil {
		return nil, err
	}

	displayName := in.DisplayName
	if displayName == "" {
		displayName = in.Email
	}
	locale := in.Locale
	if locale == "" {
		locale = s.DefaultLocale
	}

	now := time.Now()
	user := domain.User{
		ID:            idx.New().String(),
		Email:         in.Email,
		PasswordHash:  hash,
		DisplayName:   displayName,
		AvatarURL:     GravatarURL(in.Email),
		Locale:        locale,
		DefaultRole:   defaultRole,
		AllowedRoles:  allowedRoles,
		EmailVerified: false,
		Disabled:      s.DisableNewUsers,
		Profile:       in.Profile,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// The partial unique index on email makes this race-safe: two
	// concurrent registrations for one address cannot both insert.
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if s.DisableNewUsers {
		return &domain.SignInResponse{}, nil
	}

	if s.RequireVerifiedEmail {
		if err := s.sendVerifyEmail(ctx, user); err != nil {
			return nil, err
		}
		return &domain.SignInResponse{}, nil
	}

	session, err := s.Sessions.Issue(ctx, user)
	if err != nil {
		return nil, err
	}
	return &domain.SignInResponse{Session: session}, nil
}

// ResendVerification issues a fresh verify-email ticket for an unverified
// user and mails it.
func (s *SignupService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if user.EmailVerified {
		return nil
	}
	return s.sendVerifyEmail(ctx, user)
}

func (s *SignupService) sendVerifyEmail(ctx context.Context, user domain.User) error {
	token, err := s.Tickets.Issue(ctx, user.ID, domain.TicketVerifyEmail, VerifyEmailTTL)
	if err != nil {
		return err
	}
	return s.Mailer.Send(ctx, notify.Message{
		To:          user.Email,
		Template:    notify.TemplateVerifyEmail,
		Locale:      user.Locale,
		DisplayName: user.DisplayName,
		Ticket:      token,
		RedirectURL: verifyURL(s.ServerURL, token, domain.TicketVerifyEmail),
	})
}

func verifyURL(serverURL, token string, kind domain.TicketKind) string {
	return fmt.Sprintf("%s/verify?ticket=%s&type=%s", serverURL, token, kind)
}

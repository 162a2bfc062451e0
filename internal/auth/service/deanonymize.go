package service

import (
	"context"
	"errors"
	"time"

	"github.com/lanternhq/lantern/internal/auth/domain"
	"github.com/lanternhq/lantern/internal/auth/notify"
	"github.com/lanternhq/lantern/internal/auth/store"
	"github.com/lanternhq/lantern/pkg/cryptox"
)

var ErrUserNotAnonymous = errors.New("user_not_anonymous")

// Deanonymization methods.
const (
	MethodEmailPassword = "email-password"
	MethodPasswordless  = "passwordless"
)

// DeanonymizeInput carries the permanent credentials an anonymous user binds
// to their identity.
type DeanonymizeInput struct {
	Method       string
	Email        string
	Password     string
	Mode         PasswordlessMode
	DefaultRole  string
	AllowedRoles []string
}

// DeanonymizeService upgrades anonymous identities into permanent ones. The
// user keeps their id and everything attached to it; their email, password,
// and roles are written in a single atomic conversion, and every session
// issued while anonymous is revoked.
type DeanonymizeService struct {
	Store    store.Store
	Roles    *RolesService
	Tickets  *TicketService
	Sessions *SessionService
	Mailer   notify.Mailer

	Policy CredentialPolicy
	Argon  cryptox.Argon2Params

	ServerURL            string
	RequireVerifiedEmail bool
	PasswordlessEnabled  bool
}

// Deanonymize converts the calling anonymous user. With the email-password
// method and verification required, the response carries no session and a
// verify-email ticket goes out; with the passwordless method a challenge
// mail goes out instead. Either way the caller's old refresh tokens stop
// working immediately.
func (s *DeanonymizeService) Deanonymize(ctx context.Context, userID string, in DeanonymizeInput) (*domain.SignInResponse, error) {
	switch in.Method {
	case MethodEmailPassword:
	case MethodPasswordless:
		if !s.PasswordlessEnabled {
			return nil, ErrInvalidSignInMethod
		}
	default:
		return nil, ErrInvalidSignInMethod
	}

	if err := s.Policy.ValidateEmail(in.Email); err != nil {
		return nil, err
	}

	var passwordHash string
	if in.Method == MethodEmailPassword {
		if err := s.Policy.ValidatePassword(in.Password); err != nil {
			return nil, err
		}
		h, err := cryptox.HashPassword(in.Password, s.Argon)
		if err != nil {
			return nil, err
		}
		passwordHash = h
	}

	defaultRole, allowedRoles, err := s.Roles.Resolve(in.DefaultRole, in.AllowedRoles)
	if err != nil {
		return nil, err
	}

	var user domain.User

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		u, err := tx.Users().GetUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidCredentials
			}
			return err
		}
		if !u.IsAnonymous {
			return ErrUserNotAnonymous
		}

		up := domain.AnonymousUpgrade{
			Email:        in.Email,
			PasswordHash: passwordHash,
			DisplayName:  in.Email,
			AvatarURL:    GravatarURL(in.Email),
			DefaultRole:  defaultRole,
			AllowedRoles: allowedRoles,
			Locale:       u.Locale,
			Profile:      u.Profile,
		}
		// The conditional update only matches while is_anonymous still
		// holds, so two racing conversions cannot both win, and the
		// email unique index arbitrates against concurrent signups.
		if err := tx.Users().ConvertAnonymousUser(ctx, userID, up); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrEmailTaken
			}
			if errors.Is(err, store.ErrNotFound) {
				return ErrUserNotAnonymous
			}
			return err
		}

		// Sessions minted while anonymous die with the upgrade.
		if err := tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID); err != nil {
			return err
		}

		u.Email = in.Email
		u.PasswordHash = passwordHash
		u.DisplayName = in.Email
		u.AvatarURL = GravatarURL(in.Email)
		u.DefaultRole = defaultRole
		u.AllowedRoles = allowedRoles
		u.IsAnonymous = false
		u.EmailVerified = false
		u.UpdatedAt = time.Now()
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	if in.Method == MethodPasswordless {
		if err := s.sendPasswordless(ctx, user, in.Mode); err != nil {
			return nil, err
		}
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

func (s *DeanonymizeService) sendVerifyEmail(ctx context.Context, user domain.User) error {
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

func (s *DeanonymizeService) sendPasswordless(ctx context.Context, user domain.User, mode PasswordlessMode) error {
	kind := domain.TicketPasswordlessLink
	template := notify.TemplatePasswordlessLink
	if mode == PasswordlessCode {
		kind = domain.TicketPasswordlessCode
		template = notify.TemplatePasswordlessCode
	}

	token, err := s.Tickets.Issue(ctx, user.ID, kind, PasswordlessTTL)
	if err != nil {
		return err
	}
	return s.Mailer.Send(ctx, notify.Message{
		To:          user.Email,
		Template:    template,
		Locale:      user.Locale,
		DisplayName: user.DisplayName,
		Ticket:      token,
		RedirectURL: verifyURL(s.ServerURL, token, kind),
	})
}

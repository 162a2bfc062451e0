package service

import (
	"context"
	"errors"

	"github.com/lanternhq/lantern/internal/auth/domain"
	"github.com/lanternhq/lantern/internal/auth/notify"
	"github.com/lanternhq/lantern/internal/auth/store"
	"github.com/lanternhq/lantern/pkg/cryptox"
)

var ErrUserNotFound = errors.New("user_not_found")

// PasswordService changes passwords, either for an authenticated caller or
// through an emailed reset ticket.
type PasswordService struct {
	Store    store.Store
	Tickets  *TicketService
	Sessions *SessionService
	Mailer   notify.Mailer

	Policy    CredentialPolicy
	Argon     cryptox.Argon2Params
	ServerURL string
}

// RequestReset mails a reset-password ticket to a registered address.
func (s *PasswordService) RequestReset(ctx context.Context, email string) error {
	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if user.Disabled {
		return ErrDisabledUser
	}

	token, err := s.Tickets.Issue(ctx, user.ID, domain.TicketResetPassword, ResetPasswordTTL)
	if err != nil {
		return err
	}
	return s.Mailer.Send(ctx, notify.Message{
		To:          user.Email,
		Template:    notify.TemplateResetPassword,
		Locale:      user.Locale,
		DisplayName: user.DisplayName,
		Ticket:      token,
		RedirectURL: verifyURL(s.ServerURL, token, domain.TicketResetPassword),
	})
}

// ResetWithTicket burns a reset-password ticket and installs the new
// password, atomically. Every outstanding session dies with the old
// password, including the one that leaked badly enough to need the reset.
func (s *PasswordService) ResetWithTicket(ctx context.Context, token, newPassword string) error {
	if err := s.Policy.ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := cryptox.HashPassword(newPassword, s.Argon)
	if err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		t, err := consumeTx(ctx, tx, token, domain.TicketResetPassword)
		if err != nil {
			return err
		}
		if err := tx.Users().UpdatePasswordHash(ctx, t.UserID, hash); err != nil {
			return err
		}
		return tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, t.UserID)
	})
}

// Change sets a new password for an authenticated caller.
func (s *PasswordService) Change(ctx context.Context, userID, newPassword string) error {
	if err := s.Policy.ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := cryptox.HashPassword(newPassword, s.Argon)
	if err != nil {
		return err
	}

	if _, err := s.Store.Users().GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return s.Store.Users().UpdatePasswordHash(ctx, userID, hash)
}

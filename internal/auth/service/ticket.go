package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/lanternhq/lantern/internal/auth/domain"
	"github.com/lanternhq/lantern/internal/auth/store"
	"github.com/lanternhq/lantern/pkg/cryptox"
	"github.com/lanternhq/lantern/pkg/idx"
)

var ErrInvalidTicket = errors.New("invalid_ticket")

// Default ticket lifetimes, matched to how quickly each flow is acted on.
const (
	VerifyEmailTTL   = 24 * time.Hour
	PasswordlessTTL  = 15 * time.Minute
	ResetPasswordTTL = 1 * time.Hour
	MFATicketTTL     = 5 * time.Minute

	passwordlessCodeDigits = 6
)

// TicketService issues and consumes single-use expiring tickets. Tickets are
// opaque: the caller-visible value is random, only its fingerprint is stored,
// and consumption is an atomic conditional update so two racing presenters
// can never both succeed.
type TicketService struct {
	Store store.Store
}

// Issue creates a ticket of the given kind for a user and returns the opaque
// value to hand to the delivery channel. Any outstanding ticket of the same
// kind for the user is dropped first, so exactly one challenge is live per
// flow.
func (s *TicketService) Issue(ctx context.Context, userID string, kind domain.TicketKind, ttl time.Duration) (string, error) {
	var token string
	var err error
	if kind == domain.TicketPasswordlessCode {
		token, err = cryptox.GenerateNumericCode(passwordlessCodeDigits)
	} else {
		token, err = cryptox.GenerateToken(32)
	}
	if err != nil {
		return "", err
	}

	now := time.Now()
	ticket := domain.Ticket{
		ID:        idx.New().String(),
		Kind:      kind,
		TokenHash: cryptox.FingerprintToken(token),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Tickets().DeleteUserTickets(ctx, userID, kind); err != nil {
			return err
		}
		return tx.Tickets().CreateTicket(ctx, ticket)
	})
	if err != nil {
		return "", err
	}

	return token, nil
}

// Consume burns a ticket presented by its opaque value and returns it. The
// kind must match what the flow expects. Returns ErrInvalidTicket for
// unknown, expired, wrong-kind, and already-consumed tickets alike, so the
// caller leaks nothing about which check failed.
func (s *TicketService) Consume(ctx context.Context, token string, kind domain.TicketKind) (domain.Ticket, error) {
	var out domain.Ticket
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		t, err := consumeTx(ctx, tx, token, kind)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	return out, nil
}

// consumeTx is the transaction-composable form of Consume, for flows that
// must pair ticket consumption with a dependent mutation atomically. Flows
// that honour more than one ticket kind pass the full accepted set.
func consumeTx(ctx context.Context, tx store.Tx, token string, kinds ...domain.TicketKind) (domain.Ticket, error) {
	hash := cryptox.FingerprintToken(token)

	t, err := tx.Tickets().GetTicketByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Ticket{}, ErrInvalidTicket
		}
		return domain.Ticket{}, err
	}

	now := time.Now()
	if !slices.Contains(kinds, t.Kind) || t.Consumed() || now.After(t.ExpiresAt) {
		return domain.Ticket{}, ErrInvalidTicket
	}

	// The conditional update is the exactly-once gate: zero rows means a
	// concurrent presenter burned the ticket between our read and here.
	if err := tx.Tickets().ConsumeTicket(ctx, t.ID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Ticket{}, ErrInvalidTicket
		}
		return domain.Ticket{}, err
	}

	consumed := now
	t.ConsumedAt = &consumed
	return t, nil
}

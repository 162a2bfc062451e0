package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lanternhq/lantern/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestTicketIssueAndConsume(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()
	user := s.register(t, "tickets@example.com", "long-enough-pw")

	token, err := s.tickets.Issue(ctx, user.ID, domain.TicketVerifyEmail, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ticket, err := s.tickets.Consume(ctx, token, domain.TicketVerifyEmail)
	require.NoError(t, err)
	require.Equal(t, user.ID, ticket.UserID)
	require.True(t, ticket.Consumed())
}

func TestTicketConsumeRejectsReplay(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()
	user := s.register(t, "replay@example.com", "long-enough-pw")

	token, err := s.tickets.Issue(ctx, user.ID, domain.TicketVerifyEmail, time.Hour)
	require.NoError(t, err)

	_, err = s.tickets.Consume(ctx, token, domain.TicketVerifyEmail)
	require.NoError(t, err)

	_, err = s.tickets.Consume(ctx, token, domain.TicketVerifyEmail)
	require.ErrorIs(t, err, ErrInvalidTicket)
}

func TestTicketConsumeRejectsWrongKind(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()
	user := s.register(t, "kind@example.com", "long-enough-pw")

	token, err := s.tickets.Issue(ctx, user.ID, domain.TicketResetPassword, time.Hour)
	require.NoError(t, err)

	_, err = s.tickets.Consume(ctx, token, domain.TicketVerifyEmail)
	require.ErrorIs(t, err, ErrInvalidTicket)

	// The failed attempt must not have burned it.
	_, err = s.tickets.Consume(ctx, token, domain.TicketResetPassword)
	require.NoError(t, err)
}

func TestTicketConsumeRejectsExpired(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()
	user := s.register(t, "expired@example.com", "long-enough-pw")

	token, err := s.tickets.Issue(ctx, user.ID, domain.TicketVerifyEmail, -time.Minute)
	require.NoError(t, err)

	_, err = s.tickets.Consume(ctx, token, domain.TicketVerifyEmail)
	require.ErrorIs(t, err, ErrInvalidTicket)
}

func TestTicketConsumeRejectsUnknown(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)

	_, err := s.tickets.Consume(context.Background(), "never-issued", domain.TicketVerifyEmail)
	require.ErrorIs(t, err, ErrInvalidTicket)
}

// Two racing presenters of one ticket: exactly one wins.
func TestTicketConsumeExactlyOnceUnderConcurrency(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()
	user := s.register(t, "race@example.com", "long-enough-pw")

	token, err := s.tickets.Issue(ctx, user.ID, domain.TicketVerifyEmail, time.Hour)
	require.NoError(t, err)

	const presenters = 8
	errs := make([]error, presenters)
	var wg sync.WaitGroup
	for i := range presenters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.tickets.Consume(ctx, token, domain.TicketVerifyEmail)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrInvalidTicket)
		}
	}
	require.Equal(t, 1, wins)
}

func TestTicketIssueSupersedesOutstanding(t *testing.T) {
	t.Parallel()
	s := newTestStack(t)
	ctx := context.Background()
	user := s.register(t, "supersede@example.com", "long-enough-pw")

	first, err := s.tickets.Issue(ctx, user.ID, domain.TicketPasswordlessCode, time.Hour)
	require.NoError(t, err)
	second, err := s.tickets.Issue(ctx, user.ID, domain.TicketPasswordlessCode, time.Hour)
	require.NoError(t, err)

	_, err = s.tickets.Consume(ctx, first, domain.TicketPasswordlessCode)
	require.ErrorIs(t, err, ErrInvalidTicket)

	_, err = s.tickets.Consume(ctx, second, domain.TicketPasswordlessCode)
	require.NoError(t, err)
}

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/lanternhq/lantern/internal/auth/domain"
	"github.com/lanternhq/lantern/internal/auth/store"
)

type ticketsRepo struct {
	db querier
}

func (r *ticketsRepo) CreateTicket(ctx context.Context, t domain.Ticket) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tickets (id, kind, token_hash, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Kind), t.TokenHash, t.UserID, t.ExpiresAt, time.Now().UTC(),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *ticketsRepo) GetTicketByHash(ctx context.Context, hash string) (domain.Ticket, error) {
	var (
		t        domain.Ticket
		kind     string
		consumed sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, kind, token_hash, user_id, expires_at, consumed_at, created_at
		FROM tickets WHERE token_hash = ?`, hash).
		Scan(&t.ID, &kind, &t.TokenHash, &t.UserID, &t.ExpiresAt, &consumed, &t.CreatedAt)
	if err != nil {
		return domain.Ticket{}, mapNotFound(err)
	}

	t.Kind = domain.TicketKind(kind)
	t.ConsumedAt = mapNullTimePtr(consumed)
	return t, nil
}

// ConsumeTicket is the exactly-once gate: the `consumed_at IS NULL` guard
// means at most one caller ever observes a row change.
func (r *ticketsRepo) ConsumeTicket(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL`,
		now.UTC(), id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ticketsRepo) DeleteUserTickets(
	ctx context.Context,
	userID string,
	kind domain.TicketKind,
) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tickets WHERE user_id = ? AND kind = ?`,
		userID, string(kind))
	return err
}

func (r *ticketsRepo) DeleteExpiredTickets(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tickets WHERE expires_at < ?`, time.Now().UTC())
	return err
}

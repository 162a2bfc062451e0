// Package store defines the narrow, typed data-access interface the identity
// core needs. The backing store's query language is an implementation detail
// behind these interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/lanternhq/lantern/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Users() Users
	Tickets() Tickets
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. This is the
	// recommended way to run multi-step operations that must be atomic
	// (ticket consumption plus its dependent mutation, refresh rotation,
	// anonymous-user conversion).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used during sign-in and conflict checks.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists if the email is already taken; the unique
	// index makes the check-and-insert race-safe.
	CreateUser(ctx context.Context, u domain.User) error

	// ConvertAnonymousUser atomically flips an anonymous user into a
	// permanent one. Returns ErrNotFound if the user does not exist or is
	// not anonymous, ErrAlreadyExists if the target email is taken.
	ConvertAnonymousUser(ctx context.Context, userID string, up domain.AnonymousUpgrade) error

	// SetEmailVerified flips the email-verified flag.
	SetEmailVerified(ctx context.Context, userID string, verified bool) error

	// UpdatePasswordHash sets the password hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// UpdateTOTPSecret stores a pending TOTP secret for MFA enrolment.
	UpdateTOTPSecret(ctx context.Context, userID string, secret string) error

	// EnableMFA / DisableMFA toggle the MFA gate at sign-in. Disabling
	// also clears the stored secret.
	EnableMFA(ctx context.Context, userID string) error
	DisableMFA(ctx context.Context, userID string) error
}

type Tickets interface {
	// CreateTicket writes a new ticket (token_hash is the SHA-256
	// fingerprint of the opaque value).
	CreateTicket(ctx context.Context, t domain.Ticket) error

	// GetTicketByHash returns a ticket by fingerprint, consumed or not.
	GetTicketByHash(ctx context.Context, hash string) (domain.Ticket, error)

	// ConsumeTicket sets consumed_at iff the ticket is still unconsumed.
	// Returns ErrNotFound when zero rows change, i.e. a concurrent caller
	// burned the ticket first. This is the exactly-once gate.
	ConsumeTicket(ctx context.Context, id string, now time.Time) error

	// DeleteUserTickets removes outstanding tickets of one kind for a
	// user, so at most one such challenge is live at a time.
	DeleteUserTickets(ctx context.Context, userID string, kind domain.TicketKind) error

	// DeleteExpiredTickets is housekeeping.
	DeleteExpiredTickets(ctx context.Context) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the token row by fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeCurrentRefreshToken revokes the row iff it is still current.
	// Returns ErrNotFound when zero rows change; during rotation that
	// means a concurrent refresh won, and the caller must treat the
	// presented token as replayed.
	RevokeCurrentRefreshToken(ctx context.Context, hash string) error

	// RevokeFamily revokes every token in a session family.
	RevokeFamily(ctx context.Context, familyID string) error

	// RevokeAllUserRefreshTokens revokes every session of a user
	// (deanonymization, password change, sign-out everywhere).
	RevokeAllUserRefreshTokens(ctx context.Context, userID string) error

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context) error
}

package domain

import "time"

// TicketKind tags a ticket with the single operation it authorizes. The kind
// is carried as a typed column and checked against the caller's expectation;
// it is never parsed out of the opaque token value.
type TicketKind string

const (
	TicketVerifyEmail      TicketKind = "verify-email"
	TicketResetPassword    TicketKind = "reset-password"
	TicketPasswordlessLink TicketKind = "passwordless-link"
	TicketPasswordlessCode TicketKind = "passwordless-code"
	TicketMFA              TicketKind = "mfa"
)

// Valid reports whether k is one of the known kinds.
func (k TicketKind) Valid() bool {
	switch k {
	case TicketVerifyEmail, TicketResetPassword,
		TicketPasswordlessLink, TicketPasswordlessCode, TicketMFA:
		return true
	}
	return false
}

// Ticket is a single-use expiring challenge. Only the SHA-256 fingerprint of
// the opaque value is stored; once ConsumedAt is set the ticket can never be
// consumed again.
type Ticket struct {
	ID         string
	Kind       TicketKind
	TokenHash  string
	UserID     string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Consumed reports whether the ticket has been burned.
func (t Ticket) Consumed() bool { return t.ConsumedAt != nil }

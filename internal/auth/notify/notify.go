// Package notify delivers verification and passwordless email. Services hand
// it a Message naming a template; the mailer renders and sends it. Delivery
// headers expose the ticket and redirect values so integration harnesses can
// drive the flows without a real inbox.
package notify

import (
	"context"
	"errors"
)

// Template identifiers. Each maps to a subject/body pair.
const (
	TemplateVerifyEmail      = "verify-email"
	TemplatePasswordlessLink = "passwordless-link"
	TemplatePasswordlessCode = "passwordless-code"
	TemplateResetPassword    = "reset-password"
)

// ErrNotConfigured is returned when a flow requires email delivery but no
// mailer transport was configured. Callers surface this as a server fault,
// not a client error.
var ErrNotConfigured = errors.New("notify: mailer not configured")

// Message is one outbound mail. Ticket carries the opaque single-use value
// (or numeric code for the code template); RedirectURL is where the link in
// the body points.
type Message struct {
	To          string
	Template    string
	Locale      string
	DisplayName string
	Ticket      string
	RedirectURL string
}

// Mailer sends a rendered message. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Disabled is a Mailer that rejects every send. It is the default when no
// SMTP transport is configured, so flows that need mail fail loudly instead
// of silently dropping tickets.
type Disabled struct{}

func (Disabled) Send(context.Context, Message) error { return ErrNotConfigured }

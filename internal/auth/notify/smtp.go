package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPConfig configures the SMTP mailer. Host empty means mail is disabled.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers messages over plain SMTP with optional AUTH.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer builds a mailer from config.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// NewMailer returns the SMTP mailer when a host is configured and the
// Disabled mailer otherwise.
func NewMailer(cfg SMTPConfig) Mailer {
	if cfg.Host == "" {
		return Disabled{}
	}
	return NewSMTPMailer(cfg)
}

// Send renders and delivers one message. The ticket and template travel in
// custom headers alongside the body so test harnesses can intercept them.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body := render(msg)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "X-Email-Template: %s\r\n", msg.Template)
	if msg.Ticket != "" {
		if msg.Template == TemplatePasswordlessCode {
			fmt.Fprintf(&b, "X-Otp: %s\r\n", msg.Ticket)
		} else {
			fmt.Fprintf(&b, "X-Ticket: %s\r\n", msg.Ticket)
		}
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	return smtp.SendMail(addr, auth, m.cfg.From, []string{msg.To}, []byte(b.String()))
}

func render(msg Message) (subject, body string) {
	name := msg.DisplayName
	if name == "" {
		name = msg.To
	}

	switch msg.Template {
	case TemplateVerifyEmail:
		return "Verify your email",
			fmt.Sprintf("Hi %s,\r\n\r\nVerify your email address by following this link:\r\n%s\r\n", name, msg.RedirectURL)
	case TemplatePasswordlessLink:
		return "Your sign-in link",
			fmt.Sprintf("Hi %s,\r\n\r\nSign in by following this link:\r\n%s\r\n", name, msg.RedirectURL)
	case TemplatePasswordlessCode:
		return "Your sign-in code",
			fmt.Sprintf("Hi %s,\r\n\r\nYour one-time sign-in code is: %s\r\n", name, msg.Ticket)
	case TemplateResetPassword:
		return "Reset your password",
			fmt.Sprintf("Hi %s,\r\n\r\nReset your password by following this link:\r\n%s\r\n", name, msg.RedirectURL)
	}
	return "Notification", fmt.Sprintf("Hi %s,\r\n", name)
}

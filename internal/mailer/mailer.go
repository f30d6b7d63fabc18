// Package mailer delivers account emails over SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
	"net/url"
	"strconv"
	"time"

	"github.com/jordan-wright/email"
)

var ErrNoRecipient = errors.New("mailer: recipient is empty")

const defaultPoolSize = 4

// Config holds the SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username.
	From string
	// FrontendURL is the base of the links placed in emails.
	FrontendURL string
	PoolSize    int
	Timeout     time.Duration
}

type message struct {
	subject string
	tmpl    *template.Template
}

var (
	verificationMessage = message{
		subject: "Verify your email",
		tmpl: template.Must(template.New("verify").Parse(layout(
			`<p>Please verify your email by clicking the button below:</p>`,
			"Verify Email",
			``,
		))),
	}
	resetMessage = message{
		subject: "Reset your password",
		tmpl: template.Must(template.New("reset").Parse(layout(
			`<p>You requested a password reset. Click the button below to set a new password:</p>`,
			"Reset Password",
			`<p>If you did not request this, you can safely ignore this email.</p>`,
		))),
	}
)

func layout(intro, button, outro string) string {
	return `<div style="font-family: Arial, sans-serif; text-align: center; padding: 20px;">
  <h2>Hello {{.FirstName}},</h2>
  ` + intro + `
  <a href="{{.Link}}" style="display: inline-block; padding: 10px 20px; color: white; background-color: #0070f3; border-radius: 5px; text-decoration: none;">` + button + `</a>
  <p>If the button does not work, copy and paste this link in your browser:</p>
  <p>{{.Link}}</p>
  ` + outro + `
</div>`
}

type templateData struct {
	FirstName string
	Link      string
}

// Mailer sends verification and password reset emails through a pooled
// SMTP connection.
type Mailer struct {
	cfg  Config
	pool *email.Pool
	send func(e *email.Email, timeout time.Duration) error
}

// New creates a Mailer. Connections are opened lazily on first send.
func New(cfg Config) (*Mailer, error) {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	pool, err := email.NewPool(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), cfg.PoolSize, auth)
	if err != nil {
		return nil, fmt.Errorf("creating smtp pool: %w", err)
	}

	return &Mailer{cfg: cfg, pool: pool, send: pool.Send}, nil
}

// Close releases the pooled SMTP connections.
func (m *Mailer) Close() {
	if m.pool != nil {
		m.pool.Close()
	}
}

// SendVerificationEmail sends the link that confirms ownership of to.
func (m *Mailer) SendVerificationEmail(ctx context.Context, to, firstName, token string) error {
	return m.deliver(ctx, to, verificationMessage, firstName, VerificationLink(m.cfg.FrontendURL, token))
}

// SendPasswordResetEmail sends the link that opens the reset form.
func (m *Mailer) SendPasswordResetEmail(ctx context.Context, to, firstName, token string) error {
	return m.deliver(ctx, to, resetMessage, firstName, ResetLink(m.cfg.FrontendURL, token))
}

func (m *Mailer) deliver(ctx context.Context, to string, msg message, firstName, link string) error {
	if to == "" {
		return ErrNoRecipient
	}

	timeout := m.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	body, err := render(msg.tmpl, templateData{FirstName: firstName, Link: link})
	if err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = []string{to}
	e.Subject = msg.subject
	e.HTML = body

	if err := m.send(e, timeout); err != nil {
		return fmt.Errorf("sending %q to %s: %w", msg.subject, to, err)
	}

	slog.InfoContext(ctx, "email sent", "subject", msg.subject, "to", to)
	return nil
}

func render(tmpl *template.Template, data templateData) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering %s email: %w", tmpl.Name(), err)
	}
	return buf.Bytes(), nil
}

// VerificationLink returns {frontendURL}/verify-email?token=...
func VerificationLink(frontendURL, token string) string {
	return link(frontendURL, "verify-email", token)
}

// ResetLink returns {frontendURL}/reset-password?token=...
func ResetLink(frontendURL, token string) string {
	return link(frontendURL, "reset-password", token)
}

func link(base, path, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		u = &url.URL{}
	}
	u = u.JoinPath(path)
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}

// LogMailer logs the links instead of sending them. It is used when no SMTP
// host is configured.
type LogMailer struct {
	FrontendURL string
}

func (l LogMailer) SendVerificationEmail(ctx context.Context, to, firstName, token string) error {
	slog.InfoContext(ctx, "verification email", "to", to, "link", VerificationLink(l.FrontendURL, token))
	return nil
}

func (l LogMailer) SendPasswordResetEmail(ctx context.Context, to, firstName, token string) error {
	slog.InfoContext(ctx, "password reset email", "to", to, "link", ResetLink(l.FrontendURL, token))
	return nil
}

package accounts

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
)

// Mailer delivers the transactional emails the account flows produce.
// Verification and reset emails are load bearing, their tokens are the only
// way forward, so senders treat their errors as fatal. The welcome email is
// decorative and callers swallow its failures.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, name, token string) error
	SendPasswordResetEmail(ctx context.Context, to, name, token string) error
	SendWelcomeEmail(ctx context.Context, to, name string) error
}

// SMTPConfig carries the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer renders django templates to HTML and ships them over an
// implicit-TLS SMTP connection (port 465 style).
type SMTPMailer struct {
	config SMTPConfig
	engine *django.Engine
	logger Logger
}

// SMTPMailerOption customizes mailer construction.
type SMTPMailerOption func(*SMTPMailer)

// WithMailerLogger overrides the mailer logger.
func WithMailerLogger(logger Logger) SMTPMailerOption {
	return func(m *SMTPMailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewSMTPMailer loads the email templates from templateDir and returns a
// ready mailer. Template loading failures surface here, at startup, not on
// the first send.
func NewSMTPMailer(config SMTPConfig, templateDir string, opts ...SMTPMailerOption) (*SMTPMailer, error) {
	engine := django.New(templateDir, ".html")
	if err := engine.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load email templates")
	}

	m := &SMTPMailer{
		config: config,
		engine: engine,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m, nil
}

var _ Mailer = (*SMTPMailer)(nil)

func (m *SMTPMailer) SendVerificationEmail(ctx context.Context, to, name, token string) error {
	return m.send(ctx, to, "Verify your account", "verification_email", map[string]any{
		"name":  name,
		"token": token,
	})
}

func (m *SMTPMailer) SendPasswordResetEmail(ctx context.Context, to, name, token string) error {
	return m.send(ctx, to, "Password reset request", "password_reset_email", map[string]any{
		"name":  name,
		"token": token,
	})
}

func (m *SMTPMailer) SendWelcomeEmail(ctx context.Context, to, name string) error {
	return m.send(ctx, to, "Welcome aboard", "welcome_email", map[string]any{
		"name": name,
	})
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, template string, binding map[string]any) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled before sending email")
	default:
	}

	var body bytes.Buffer
	if err := m.engine.Render(&body, template, binding); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render email template").
			WithMetadata(map[string]any{"template": template})
	}

	msg := m.buildMessage(to, subject, body.Bytes())

	if err := m.deliver(to, msg); err != nil {
		m.logger.Error("failed to send %s email to %s: %v", template, to, err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send email").
			WithTextCode(TextCodeEmailSendFailed).
			WithMetadata(map[string]any{"template": template})
	}

	m.logger.Debug("sent %s email to %s", template, to)

	return nil
}

func (m *SMTPMailer) buildMessage(to, subject string, body []byte) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.Write(body)
	return msg.Bytes()
}

// deliver speaks SMTP over an implicit TLS connection. STARTTLS relays are
// not supported; the upstream relay listens on 465.
func (m *SMTPMailer) deliver(to string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.config.Host})
	if err != nil {
		return err
	}

	client, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if m.config.Username != "" {
		auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(m.config.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}

// LogMailer is the development fallback: it logs instead of sending, so the
// flows stay exercisable without an SMTP relay.
type LogMailer struct {
	logger Logger
}

// NewLogMailer builds a mailer that only logs.
func NewLogMailer(logger Logger) *LogMailer {
	return &LogMailer{logger: normalizeLogger(logger)}
}

var _ Mailer = (*LogMailer)(nil)

func (m *LogMailer) SendVerificationEmail(_ context.Context, to, name, token string) error {
	m.logger.Info("verification email for %s (%s): token %s", to, name, token)
	return nil
}

func (m *LogMailer) SendPasswordResetEmail(_ context.Context, to, name, token string) error {
	m.logger.Info("password reset email for %s (%s): token %s", to, name, token)
	return nil
}

func (m *LogMailer) SendWelcomeEmail(_ context.Context, to, name string) error {
	m.logger.Info("welcome email for %s (%s)", to, name)
	return nil
}

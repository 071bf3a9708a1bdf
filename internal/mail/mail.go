// Package mail delivers transactional email for account flows. Delivery is
// best-effort: callers commit their own state before sending and surface, but
// never roll back on, delivery failures.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/gantry-app/gantry/internal/config"
)

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender sends through a configured SMTP relay using PLAIN auth.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
		from: from,
	}
}

func (s *SMTPSender) Send(_ context.Context, to, subject, htmlBody string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}

// LogSender logs messages instead of delivering them. Used when no SMTP host
// is configured, which keeps local development working without a relay.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, to, subject, htmlBody string) error {
	s.logger.Info("mail delivery skipped, no smtp host configured",
		"to", to,
		"subject", subject,
		"body_bytes", len(htmlBody),
	)
	return nil
}

// Service builds the account-flow messages and hands them to a Sender. It
// satisfies the session manager's Mailer interface.
type Service struct {
	sender  Sender
	baseURL string
}

func NewService(cfg config.MailConfig, logger *slog.Logger) *Service {
	var sender Sender
	if cfg.Host != "" {
		sender = NewSMTPSender(cfg)
	} else {
		sender = NewLogSender(logger)
	}
	return &Service{
		sender:  sender,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

func (s *Service) SendEmailVerification(ctx context.Context, to, rawToken string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, rawToken)
	body := fmt.Sprintf(`<p>Welcome to Gantry.</p>
<p>Confirm your email address by opening the link below. It expires in 24 hours.</p>
<p><a href="%s">%s</a></p>
<p>If you did not create this account, ignore this message.</p>`, link, link)
	return s.sender.Send(ctx, to, "Verify your email address", body)
}

func (s *Service) SendPasswordReset(ctx context.Context, to, rawToken string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, rawToken)
	body := fmt.Sprintf(`<p>A password reset was requested for your account.</p>
<p>Open the link below to choose a new password. It expires in 1 hour.</p>
<p><a href="%s">%s</a></p>
<p>If you did not request this, ignore this message and your password stays unchanged.</p>`, link, link)
	return s.sender.Send(ctx, to, "Reset your password", body)
}

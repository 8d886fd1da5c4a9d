// Package notify delivers outbound mail for the auth service. Delivery is
// best-effort by contract: callers log and continue when Send fails.
package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"aegisid.org/internal/obs"
)

// SMTPConfig holds the relay settings, read once at startup.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTP sends mail through a single relay using the stdlib smtp client.
type SMTP struct {
	cfg SMTPConfig
}

// NewSMTP constructs an SMTP notifier.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("notify: smtp host and sender are required")
	}
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	return &SMTP{cfg: cfg}, nil
}

// Send delivers a plain-text message. The context deadline is not honored
// mid-dial; the surrounding operation treats the call as best-effort.
func (s *SMTP) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg))
}

// LogSink writes messages to the structured log instead of sending them.
// Used in development and tests when no relay is configured.
type LogSink struct{}

// Send records the message as a log event and always succeeds.
func (LogSink) Send(ctx context.Context, to, subject, body string) error {
	obs.LogEvent("info", "mail (log sink)", map[string]any{
		"to":      to,
		"subject": subject,
		"body":    body,
	})
	return nil
}

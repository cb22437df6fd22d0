package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/gotham-cipher/internal/config"
)

// ErrNotConfigured is returned when the SMTP settings are incomplete
var ErrNotConfigured = errors.New("smtp mailer not configured")

// Mailer sends transactional email to players
type Mailer interface {
	SendCongrats(ctx context.Context, to string) error
}

// SMTPMailer delivers mail through a plain SMTP relay
type SMTPMailer struct {
	host   string
	port   int
	user   string
	pass   string
	from   string
	logger *slog.Logger
}

// NewSMTPMailer creates a mailer from configuration
func NewSMTPMailer(cfg *config.SMTPConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		host:   cfg.Host,
		port:   cfg.Port,
		user:   cfg.User,
		pass:   cfg.Password,
		from:   cfg.From,
		logger: logger,
	}
}

// IsConfigured reports whether the mailer has everything it needs to send
func (m *SMTPMailer) IsConfigured() bool {
	return m.host != "" && m.user != "" && m.pass != "" && m.from != ""
}

// SendCongrats sends the all-levels-completed congratulations message
func (m *SMTPMailer) SendCongrats(ctx context.Context, to string) error {
	if !m.IsConfigured() {
		return ErrNotConfigured
	}

	subject := "Gotham Cipher - Congratulations!"
	body := "Congratulations! You've completed all levels. Thanks for playing Gotham Cipher!\n\n" +
		"You've proven yourself worthy of protecting Gotham City."

	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := smtp.PlainAuth("", m.user, m.pass, m.host)
	if err := smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("sending congrats mail: %w", err)
	}

	m.logger.Info("congrats mail sent", "to", to)
	return nil
}

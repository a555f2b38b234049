package mailer

import (
	"fmt"
	"log/slog"
	"net/smtp"

	internal "github.com/stayswap/stayswap/internal"
)

// SMTPMailer delivers transactional email over plain SMTP. It implements
// jobs.Mailer; all sending happens from the worker, never from request
// handlers.
type SMTPMailer struct {
	cfg    internal.MailConfig
	logger *slog.Logger
}

func New(cfg internal.MailConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger}
}

func (m *SMTPMailer) Send(to, subject, html, previewText string) error {
	if m.cfg.SMTPHost == "" {
		return fmt.Errorf("smtp host is not configured")
	}

	sender := m.cfg.Sender
	if sender == "" {
		sender = "no-reply@stayswap.local"
	}

	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	}

	addr := fmt.Sprintf("%s:%s", m.cfg.SMTPHost, m.cfg.SMTPPort)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			previewBlock(previewText) +
			html,
	)

	if err := smtp.SendMail(addr, auth, sender, []string{to}, msg); err != nil {
		m.logger.Error("smtp send failed", "to", to, "host", addr, "error", err)
		return err
	}

	m.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}

// previewBlock renders the hidden inbox preview line most clients show
// under the subject.
func previewBlock(text string) string {
	if text == "" {
		return ""
	}
	return fmt.Sprintf(`<div style="display:none;max-height:0;overflow:hidden;">%s</div>`, text)
}

package util

import (
	"fmt"
	"net/smtp"

	"github.com/mkobayashi/kaitori-backend/config"
	"github.com/mkobayashi/kaitori-backend/pkg/logger"
)

// Mailer sends customer-facing emails. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends mail through a plain SMTP relay
type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	// 開発モード: SMTP未設定ならログ出力のみ
	if m.cfg.Username == "" || m.cfg.Password == "" {
		logger.Info("[DEV MODE] Email suppressed, SMTP not configured", map[string]interface{}{
			"to":      to,
			"subject": subject,
		})
		return nil
	}

	message := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		m.cfg.From, to, subject, body,
	))

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	if err := smtp.SendMail(
		m.cfg.Host+":"+m.cfg.Port,
		auth,
		m.cfg.From,
		[]string{to},
		message,
	); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.Info("Email sent successfully", map[string]interface{}{
		"to":      to,
		"subject": subject,
	})
	return nil
}

// Package notify sends the transactional emails the pipeline emits:
// buyer receipts, organizer sale alerts and refund notices.
package notify

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"accezzpay/internal/config"
	"accezzpay/internal/logger"
)

// Attachment is an inline file (QR PNGs, PDF receipts) carried on an
// email.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Mailer is the send surface services depend on. Tests swap in a mock;
// deployments without SMTP credentials get the no-op.
type Mailer interface {
	Send(to, subject, htmlBody string, attachments []Attachment) error
}

type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
	from     string
	log      *logger.Logger
}

func NewSMTPMailer(cfg config.EmailConfig, log *logger.Logger) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.FromAddress,
		log:      log,
	}
}

// Send delivers a single HTML email. Attachments are base64-encoded
// into a multipart body.
func (m *SMTPMailer) Send(to, subject, htmlBody string, attachments []Attachment) error {
	message := buildMessage(m.from, to, subject, htmlBody, attachments)

	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	if err := smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{to}, message); err != nil {
		m.log.Error("MAIL", fmt.Sprintf("Failed to send %q to %s: %v", subject, to, err))
		return err
	}

	m.log.Info("MAIL", fmt.Sprintf("✅ Sent %q to %s", subject, to))
	return nil
}

func buildMessage(from, to, subject, htmlBody string, attachments []Attachment) []byte {
	var sb strings.Builder

	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")

	if len(attachments) == 0 {
		sb.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		sb.WriteString(htmlBody)
		return []byte(sb.String())
	}

	boundary := "accezzpay-mail-boundary"
	sb.WriteString("Content-Type: multipart/mixed; boundary=\"" + boundary + "\"\r\n\r\n")

	sb.WriteString("--" + boundary + "\r\n")
	sb.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	sb.WriteString(htmlBody)
	sb.WriteString("\r\n")

	for _, att := range attachments {
		sb.WriteString("--" + boundary + "\r\n")
		sb.WriteString("Content-Type: " + att.ContentType + "\r\n")
		sb.WriteString("Content-Transfer-Encoding: base64\r\n")
		sb.WriteString("Content-Disposition: attachment; filename=\"" + att.Filename + "\"\r\n\r\n")
		sb.WriteString(chunkBase64(att.Data))
		sb.WriteString("\r\n")
	}
	sb.WriteString("--" + boundary + "--\r\n")

	return []byte(sb.String())
}

// chunkBase64 wraps encoded data at 76 columns per RFC 2045.
func chunkBase64(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var sb strings.Builder
	for len(encoded) > 76 {
		sb.WriteString(encoded[:76])
		sb.WriteString("\r\n")
		encoded = encoded[76:]
	}
	sb.WriteString(encoded)
	return sb.String()
}

// NoopMailer swallows sends when SMTP is not configured.
type NoopMailer struct{}

func (NoopMailer) Send(string, string, string, []Attachment) error { return nil }

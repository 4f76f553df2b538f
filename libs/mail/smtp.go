package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

// SMTPSender sends email via unauthenticated SMTP (Mailpit-compatible).
type SMTPSender struct {
	addr string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(host string, port string, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	if host == "" {
		host = "localhost"
	}
	port = strings.TrimSpace(port)
	if port == "" {
		port = "1025"
	}
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@slotconfirm.local"
	}
	return &SMTPSender{
		addr: net.JoinHostPort(host, port),
		from: from,
		send: smtp.SendMail,
	}
}

// Send ignores ctx deadlines; net/smtp has no context support.
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if err := s.send(s.addr, nil, s.from, []string{msg.To}, []byte(buildMessage(s.from, msg))); err != nil {
		return fmt.Errorf("mail: smtp send: %w", err)
	}
	return nil
}

func buildMessage(from string, msg Message) string {
	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%q <%s>", msg.ToName, msg.To)
	}
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		msg.Subject,
		strings.ReplaceAll(msg.Body, "\n", "\r\n"),
	)
}

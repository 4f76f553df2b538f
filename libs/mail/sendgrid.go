package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *slog.Logger
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *slog.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Slot Confirm"
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if s.client == nil {
		return fmt.Errorf("mail: sendgrid client not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	message := sgmail.NewSingleEmail(
		sgmail.NewEmail(s.fromName, s.fromEmail),
		msg.Subject,
		sgmail.NewEmail(msg.ToName, msg.To),
		msg.Body,
		msg.Body,
	)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("mail: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Warn("sendgrid rejected message", "status", resp.StatusCode, "body", resp.Body)
		return fmt.Errorf("mail: sendgrid returned status %d", resp.StatusCode)
	}
	s.logger.Debug("email sent via sendgrid", "status", resp.StatusCode)
	return nil
}

var _ Sender = (*SendGridSender)(nil)

package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the part of *sesv2.Client the sender uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESSender struct {
	client    SESAPI
	fromEmail string
	fromName  string
	logger    *slog.Logger
}

type SESConfig struct {
	FromEmail string
	FromName  string
}

func NewSESSender(client SESAPI, cfg SESConfig, logger *slog.Logger) *SESSender {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Slot Confirm"
	}
	return &SESSender{client: client, fromEmail: cfg.FromEmail, fromName: cfg.FromName, logger: logger}
}

func (s *SESSender) Send(ctx context.Context, msg Message) error {
	if s.client == nil {
		return fmt.Errorf("mail: SES client not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("mail: SES send: %w", err)
	}
	s.logger.Debug("email sent via SES", "message_id", aws.ToString(out.MessageId))
	return nil
}

var _ Sender = (*SESSender)(nil)

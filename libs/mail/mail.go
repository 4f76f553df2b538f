package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

// Sender delivers one plain-text email. Implementations can be swapped
// (SMTP, SendGrid, SES) without changing callers.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("mail: recipient required")
	}
	if strings.ContainsAny(m.To+m.Subject, "\r\n") {
		return fmt.Errorf("mail: header values must not contain line breaks")
	}
	return nil
}

type Config struct {
	Provider       string // smtp, sendgrid, ses or log
	SMTPHost       string
	SMTPPort       string
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	AWSRegion      string
}

// New builds the sender selected by cfg.Provider.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Sender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "smtp":
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.FromEmail), nil
	case "sendgrid":
		s := NewSendGridSender(SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		}, logger)
		if s == nil {
			return nil, fmt.Errorf("mail: SENDGRID_API_KEY is required for the sendgrid provider")
		}
		return s, nil
	case "ses":
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("mail: load aws config: %w", err)
		}
		return NewSESSender(sesv2.NewFromConfig(awsCfg), SESConfig{
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		}, logger), nil
	case "log":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("mail: unknown provider %q", cfg.Provider)
	}
}

package mail

import (
	"context"
	"log/slog"
)

// LogSender records messages in the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("email (log only)", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}

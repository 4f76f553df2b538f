// Package notify implements booking.Notifier.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotconfirm/libs/mail"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/booking"
)

const EventEmailRequested = "notification.email.requested.v1"

// EmailRequested is the payload notification-service consumes.
type EmailRequested struct {
	MessageID string `json:"message_id"`
	To        string `json:"to"`
	ToName    string `json:"to_name,omitempty"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type eventRecorder interface {
	Record(ctx context.Context, eventType string, aggregateID string, payload any) error
}

// OutboxNotifier hands messages to notification-service through the outbox.
// Send returns once the event is stored; delivery happens asynchronously.
type OutboxNotifier struct {
	events eventRecorder
}

func NewOutboxNotifier(events eventRecorder) *OutboxNotifier {
	return &OutboxNotifier{events: events}
}

func (n *OutboxNotifier) Send(ctx context.Context, msg booking.Message) error {
	id := uuid.NewString()
	return n.events.Record(ctx, EventEmailRequested, id, EmailRequested{
		MessageID: id,
		To:        msg.To,
		ToName:    msg.ToName,
		Subject:   msg.Subject,
		Body:      msg.Body,
	})
}

// MailNotifier sends directly from the booking process.
type MailNotifier struct {
	sender mail.Sender
}

func NewMailNotifier(sender mail.Sender) *MailNotifier {
	return &MailNotifier{sender: sender}
}

func (n *MailNotifier) Send(ctx context.Context, msg booking.Message) error {
	return n.sender.Send(ctx, mail.Message{
		To:      msg.To,
		ToName:  msg.ToName,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
}

type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg booking.Message) error {
	// The body carries confirmation links; never log it.
	n.logger.Info("notification", "to", msg.To, "subject", msg.Subject, "body_bytes", len(msg.Body))
	return nil
}

var (
	_ booking.Notifier = (*OutboxNotifier)(nil)
	_ booking.Notifier = (*MailNotifier)(nil)
	_ booking.Notifier = (*LogNotifier)(nil)
)

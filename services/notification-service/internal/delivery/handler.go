// Package delivery turns notification.email.requested events into emails.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotconfirm/libs/kafkax"
	"github.com/md-rashed-zaman/slotconfirm/libs/mail"
	"github.com/md-rashed-zaman/slotconfirm/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type emailRequested struct {
	MessageID string `json:"message_id"`
	To        string `json:"to"`
	ToName    string `json:"to_name"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type notificationStore interface {
	Insert(ctx context.Context, n storage.Notification) error
}

type Observer interface {
	Delivered(provider, status string)
}

type Config struct {
	Provider    string
	SendTimeout time.Duration
}

type Handler struct {
	sender   mail.Sender
	store    notificationStore
	observer Observer
	logger   *slog.Logger
	cfg      Config
}

func NewHandler(sender mail.Sender, store notificationStore, observer Observer, logger *slog.Logger, cfg Config) *Handler {
	if cfg.Provider == "" {
		cfg.Provider = "smtp"
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sender: sender, store: store, observer: observer, logger: logger, cfg: cfg}
}

// Handle sends the requested email and records the attempt. Malformed
// payloads are dropped; only a failure to persist the attempt is returned.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var payload emailRequested
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		h.logger.Error("invalid email payload", "err", err)
		return nil
	}
	payload.To = strings.TrimSpace(payload.To)
	if payload.To == "" || payload.Subject == "" {
		h.logger.Error("missing email fields", "message_id", payload.MessageID)
		return nil
	}

	eventID := kafkax.ExtractEventMeta(msg).EventID
	if eventID == "" {
		eventID = payload.MessageID
	}

	sendCtx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
	sendErr := h.sender.Send(sendCtx, mail.Message{
		To:      payload.To,
		ToName:  payload.ToName,
		Subject: payload.Subject,
		Body:    payload.Body,
	})
	cancel()

	n := storage.Notification{
		EventID:   eventID,
		Recipient: payload.To,
		Subject:   payload.Subject,
		Provider:  h.cfg.Provider,
		Status:    storage.StatusSent,
	}
	if sendErr != nil {
		n.Status = storage.StatusFailed
		n.Error = sendErr.Error()
		h.logger.Warn("email send failed", "err", sendErr, "recipient", payload.To, "event_id", eventID)
	}
	if h.observer != nil {
		h.observer.Delivered(n.Provider, string(n.Status))
	}

	if err := h.store.Insert(ctx, n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	h.logger.Info("email processed", "event_id", eventID, "status", n.Status)
	return nil
}

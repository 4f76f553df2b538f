package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotconfirm/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

type Inbox interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader  messageReader
	logger  *slog.Logger
	inbox   Inbox
	handler Handler
	backoff time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(reader, logger, inbox, handler)
}

func newConsumer(reader messageReader, logger *slog.Logger, inbox Inbox, handler Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inbox,
		handler: handler,
		backoff: time.Second,
	}
}

// Run reads until ctx is cancelled. Each message is recorded in the inbox
// before the handler runs, so a redelivery is dropped even if the handler
// failed the first time.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err)
		span.RecordError(err)
		return
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
	}
}

package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotconfirm/libs/db"
	"github.com/md-rashed-zaman/slotconfirm/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotconfirm/libs/otel"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// RelayObserver is told how many events each batch relayed.
type RelayObserver interface {
	OutboxRelayed(published int, err error)
}

type Publisher struct {
	db        db.Querier
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
	observer  RelayObserver
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
	Observer  RelayObserver
}

func NewPublisher(q db.Querier, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		db:        q,
		repo:      repo,
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		observer:  cfg.Observer,
	}
}

// Run relays unpublished events until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx, writer)
			if p.observer != nil {
				p.observer.OutboxRelayed(n, err)
			}
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// PublishBatch relays one batch inside a transaction. Rows stay locked
// (SKIP LOCKED) until they are marked published, so concurrent publishers
// never send the same event twice in the happy path.
func (p *Publisher) PublishBatch(ctx context.Context, w MessageWriter) (int, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
		msgs = append(msgs, kafka.Message{
			Topic: r.EventType,
			Key:   []byte(r.AggregateID),
			Value: r.Payload,
			Headers: kafkax.InjectTraceHeaders(msgCtx, kafkax.MetaHeaders(kafkax.EventMeta{
				EventID:   r.EventID,
				EventType: r.EventType,
			})),
		})
		ids = append(ids, r.ID)
	}
	if err := w.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(records), nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotconfirm/libs/config"
	"github.com/md-rashed-zaman/slotconfirm/libs/db"
	"github.com/md-rashed-zaman/slotconfirm/libs/httpx"
	"github.com/md-rashed-zaman/slotconfirm/libs/kafkax"
	"github.com/md-rashed-zaman/slotconfirm/libs/mail"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
)

type stores struct {
	pool         *db.Pool
	slots        booking.SlotStore
	appointments booking.AppointmentStore
}

func (s stores) close() {
	s.pool.Close()
}

// openStores uses Postgres when DATABASE_URL is set and in-memory stores
// otherwise. The in-memory slots can be seeded from SEED_SLOTS_FILE.
func openStores(ctx context.Context, logger *slog.Logger) (stores, error) {
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.Open(ctx, dbURL, db.Options{
			MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		})
		if err != nil {
			return stores{}, fmt.Errorf("db connection failed: %w", err)
		}
		return stores{
			pool:         pool,
			slots:        storage.NewSlotRepository(pool),
			appointments: storage.NewAppointmentRepository(pool),
		}, nil
	}

	logger.Warn("DATABASE_URL not set; using in-memory stores")
	mem := storage.NewMemory()
	if path := config.String("SEED_SLOTS_FILE", ""); path != "" {
		if err := seedMemory(ctx, mem.Slots(), path); err != nil {
			return stores{}, err
		}
	}
	return stores{slots: mem.Slots(), appointments: mem.Appointments()}, nil
}

func seedMemory(ctx context.Context, slots *storage.MemorySlots, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	intervals, err := availability.Decode(f)
	if err != nil {
		return err
	}
	if intervals, err = availability.Validate(intervals); err != nil {
		return err
	}
	for _, iv := range intervals {
		if _, err := slots.Insert(ctx, iv.Start, iv.End); err != nil {
			return err
		}
	}
	return nil
}

// buildNotifier selects NOTIFY_MODE: outbox (default with a database and
// Kafka brokers), email (send from this process) or log.
func buildNotifier(ctx context.Context, logger *slog.Logger, st stores, brokers string) (booking.Notifier, error) {
	hasBrokers := len(kafkax.SplitBrokers(brokers)) > 0
	mode := "log"
	if st.pool != nil && hasBrokers {
		mode = "outbox"
	}
	mode = strings.ToLower(config.String("NOTIFY_MODE", mode))
	if mode == "log" {
		logger.Warn("NOTIFY_MODE=log; emails are logged, not delivered")
	}

	switch mode {
	case "outbox":
		if st.pool == nil {
			return nil, fmt.Errorf("NOTIFY_MODE=outbox requires DATABASE_URL")
		}
		if !hasBrokers {
			return nil, fmt.Errorf("NOTIFY_MODE=outbox requires KAFKA_BROKERS")
		}
		return notify.NewOutboxNotifier(outbox.NewRecorder(outbox.NewRepository(), st.pool, "email")), nil
	case "email":
		sender, err := mail.New(ctx, mailConfigFromEnv(), logger)
		if err != nil {
			return nil, err
		}
		return notify.NewMailNotifier(sender), nil
	case "log":
		return notify.NewLogNotifier(logger), nil
	default:
		return nil, fmt.Errorf("unknown NOTIFY_MODE %q", mode)
	}
}

func mailConfigFromEnv() mail.Config {
	return mail.Config{
		Provider:       config.String("EMAIL_PROVIDER", "smtp"),
		SMTPHost:       config.String("SMTP_HOST", "localhost"),
		SMTPPort:       config.String("SMTP_PORT", "1025"),
		SendGridAPIKey: config.String("SENDGRID_API_KEY", ""),
		FromEmail:      config.String("EMAIL_FROM", config.String("SMTP_FROM", "")),
		FromName:       config.String("EMAIL_FROM_NAME", ""),
		AWSRegion:      config.String("AWS_REGION", ""),
	}
}

type limiter struct {
	httpx.Limiter
	ready func(context.Context) error
}

// buildLimiter uses Redis when REDIS_ADDR is set so the limit holds across
// instances, and a per-process limiter otherwise.
func buildLimiter(ctx context.Context, logger *slog.Logger) (limiter, func(), error) {
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		return limiter{Limiter: httpx.NewMemoryRateLimiter(perMinute, time.Minute)}, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed at startup", "err", err)
	}
	return limiter{
			Limiter: httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "slotconfirm:rl"),
			ready:   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}, func() {
			_ = rdb.Close()
		}, nil
}

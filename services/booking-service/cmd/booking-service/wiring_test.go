package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/md-rashed-zaman/slotconfirm/libs/db"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/notify"
)

func TestBuildNotifierModes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	withDB := stores{pool: &db.Pool{}}
	ctx := context.Background()

	t.Setenv("NOTIFY_MODE", "")
	n, err := buildNotifier(ctx, logger, withDB, "")
	if err != nil {
		t.Fatalf("build without brokers: %v", err)
	}
	if _, ok := n.(*notify.LogNotifier); !ok {
		t.Fatalf("without brokers expected log notifier, got %T", n)
	}

	n, err = buildNotifier(ctx, logger, withDB, "kafka:9092")
	if err != nil {
		t.Fatalf("build with brokers: %v", err)
	}
	if _, ok := n.(*notify.OutboxNotifier); !ok {
		t.Fatalf("with database and brokers expected outbox notifier, got %T", n)
	}

	t.Setenv("NOTIFY_MODE", "outbox")
	if _, err := buildNotifier(ctx, logger, withDB, " , "); err == nil {
		t.Fatal("outbox without brokers should fail at startup")
	}
	if _, err := buildNotifier(ctx, logger, stores{}, "kafka:9092"); err == nil {
		t.Fatal("outbox without a database should fail at startup")
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"time"

	"github.com/md-rashed-zaman/slotconfirm/libs/config"
	"github.com/md-rashed-zaman/slotconfirm/libs/db"
	"github.com/md-rashed-zaman/slotconfirm/libs/runtime"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/storage"
)

// slot-import loads free slots from a JSON file (or stdin with -file -).
// Slots whose start already exists are skipped.
func main() {
	file := flag.String("file", "-", "JSON file of [{\"start\",\"end\"}] ranges, - for stdin")
	dryRun := flag.Bool("dry-run", false, "validate only")
	flag.Parse()

	_ = config.LoadDotEnv()
	logger := runtime.NewLogger("slot-import", config.String("LOG_LEVEL", "info"))

	var src io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			logger.Error("open input failed", "err", err)
			os.Exit(1)
		}
		defer f.Close()
		src = f
	}

	intervals, err := availability.Decode(src)
	if err == nil {
		intervals, err = availability.Validate(intervals)
	}
	if err != nil {
		logger.Error("invalid slot file", "err", err)
		os.Exit(1)
	}
	if *dryRun {
		logger.Info("slot file valid", "slots", len(intervals))
		return
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("config error", "err", err)
		os.Exit(1)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: 2})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	inserted, skipped, err := importSlots(ctx, storage.NewSlotRepository(pool), intervals)
	if err != nil {
		logger.Error("import failed", "err", err, "inserted", inserted)
		os.Exit(1)
	}
	logger.Info("slots imported", "inserted", inserted, "skipped", skipped)
}

type slotInserter interface {
	Insert(ctx context.Context, start, end time.Time) (booking.Slot, error)
}

func importSlots(ctx context.Context, repo slotInserter, intervals []availability.Interval) (inserted, skipped int, err error) {
	for _, iv := range intervals {
		_, err := repo.Insert(ctx, iv.Start, iv.End)
		switch {
		case errors.Is(err, booking.ErrDuplicateSlot):
			skipped++
		case err != nil:
			return inserted, skipped, err
		default:
			inserted++
		}
	}
	return inserted, skipped, nil
}

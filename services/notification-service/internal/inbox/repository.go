package inbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/slotconfirm/libs/db"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository records consumed event ids so redelivered messages are skipped.
type Repository struct {
	q execer
}

func NewRepository(q execer) *Repository {
	return &Repository{q: q}
}

// Record reports false when eventID was already seen.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

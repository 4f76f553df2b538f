package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Notification is one delivery attempt.
type Notification struct {
	EventID   string
	Recipient string
	Subject   string
	Provider  string
	Status    Status
	Error     string
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository struct {
	q execer
}

func NewRepository(q execer) *Repository {
	return &Repository{q: q}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO notifications (event_id, recipient, subject, provider, status, error)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.EventID, n.Recipient, n.Subject, n.Provider, string(n.Status), n.Error)
	return err
}

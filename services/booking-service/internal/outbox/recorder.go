package outbox

import (
	"context"
	"encoding/json"
	"strings"
)

// Recorder writes JSON payloads to the outbox as standalone events.
type Recorder struct {
	repo          *Repository
	q             Execer
	aggregateType string
}

func NewRecorder(repo *Repository, q Execer, aggregateType string) *Recorder {
	return &Recorder{repo: repo, q: q, aggregateType: aggregateType}
}

func (r *Recorder) Record(ctx context.Context, eventType string, aggregateID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	aggregateType := r.aggregateType
	if aggregateType == "" {
		aggregateType, _, _ = strings.Cut(eventType, ".")
	}
	return r.repo.Insert(ctx, r.q, Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	})
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/auctionbay/settlement/internal/clock"
	"github.com/auctionbay/settlement/internal/event"
)

// EventStore implements event.Store backed by the events outbox table.
type EventStore struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewEventStore returns a new EventStore.
func NewEventStore(db *sqlx.DB, clk clock.Clock) *EventStore {
	return &EventStore{db: db, clock: clk}
}

func (s *EventStore) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	var events []event.Event
	err := s.db.SelectContext(ctx, &events,
		`SELECT * FROM events WHERE aggregate_id = $1 ORDER BY created_at ASC, id ASC`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	return events, nil
}

func (s *EventStore) LoadUndispatched(ctx context.Context, limit int) ([]event.Event, error) {
	var events []event.Event
	err := s.db.SelectContext(ctx, &events,
		`SELECT * FROM events WHERE dispatched_at IS NULL ORDER BY created_at ASC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("loading undispatched events: %w", err)
	}
	return events, nil
}

func (s *EventStore) MarkDispatched(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET dispatched_at = $1 WHERE id = ANY($2)`,
		s.clock.Now().UTC(), pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("marking events dispatched: %w", err)
	}
	return nil
}

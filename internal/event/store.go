package event

import "context"

// Store reads and acknowledges outbox events. Appending happens inside the
// owning transaction through the store layer, never through this interface.
type Store interface {
	// Load returns all events for an aggregate, oldest first.
	Load(ctx context.Context, aggregateID string) ([]Event, error)
	// LoadUndispatched returns up to limit events not yet dispatched,
	// oldest first.
	LoadUndispatched(ctx context.Context, limit int) ([]Event, error)
	// MarkDispatched records that the given events have been handed to the
	// notification subsystem.
	MarkDispatched(ctx context.Context, ids ...string) error
}

package webhook

import (
	"context"
	"time"
)

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// Reader provides read operations for webhook records and their events
type Reader interface {
	/* Context is always the first parameter in functions that do I/O
	 * This allows for cancellation, timeouts, and shared values
	 */
	Get(ctx context.Context, id string) (Webhook, error)

	/* GetByTokenAndModel resolves the record an inbound callback belongs
	 * to. Returns ErrNotFound when the (token, model) pair is unknown.
	 */
	GetByTokenAndModel(ctx context.Context, authToken, modelID string) (Webhook, error)

	List(ctx context.Context) ([]Webhook, error)

	// ListEvents returns the most recent events for a record, newest first
	ListEvents(ctx context.Context, webhookID string, limit int) ([]CallbackEvent, error)
}

// Writer provides write operations for webhook records and their events
type Writer interface {
	/* Store persists a record, inserting or updating by id. It owns the
	 * timestamps: CreatedAt is set once on first persist, LastUpdatedAt on
	 * every persist. Persisting never triggers remote synchronization -
	 * that is the sync engine's job, invoked explicitly.
	 */
	Store(ctx context.Context, w Webhook) (Webhook, error)

	// Touch bumps LastUpdatedAt without rewriting the rest of the record
	Touch(ctx context.Context, id string, at time.Time) error

	/* Delete removes a record. Historical callback events are kept - they
	 * are an append-only log.
	 */
	Delete(ctx context.Context, id string) error

	// StoreEvent appends one callback event. Events are immutable once written.
	StoreEvent(ctx context.Context, e CallbackEvent) (CallbackEvent, error)
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type Repository interface {
	Reader
	Writer
	Close(ctx context.Context) error
}

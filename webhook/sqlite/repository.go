package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/trellohooks/trellohooks/webhook"
)

/* SQLite implementation of webhook.Repository
 *
 * Two tables: webhook_records and callback_events. The events table
 * references webhook_records but deletion does not cascade - callback
 * events are an append-only log and survive deletion of the record that
 * received them.
 */

type Repository struct {
	DB *sql.DB
}

// NewRepository opens (and if necessary initializes) the database at path
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	r := &Repository{DB: db}
	if err := r.createTables(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS webhook_records (
			id TEXT PRIMARY KEY,
			model_id TEXT NOT NULL,
			trello_id TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			auth_token TEXT NOT NULL,
			is_active INTEGER,
			created_at TIMESTAMP NOT NULL,
			last_updated_at TIMESTAMP NOT NULL,
			UNIQUE (model_id, auth_token)
		);

		CREATE TABLE IF NOT EXISTS callback_events (
			id TEXT PRIMARY KEY,
			webhook_id TEXT NOT NULL REFERENCES webhook_records (id),
			event_type TEXT NOT NULL,
			event_payload TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_callback_events_webhook
			ON callback_events (webhook_id);
	`
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

/* Store inserts or updates a record by id. CreatedAt is set once on first
 * persist, LastUpdatedAt on every persist. Persisting a record never talks
 * to Trello.
 */
func (r *Repository) Store(ctx context.Context, w webhook.Webhook) (webhook.Webhook, error) {
	now := time.Now().UTC()
	w.LastUpdatedAt = now
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}

	active := activationToNull(w.Active)

	query := `
		INSERT INTO webhook_records
			(id, model_id, trello_id, description, auth_token, is_active, created_at, last_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			model_id = excluded.model_id,
			trello_id = excluded.trello_id,
			description = excluded.description,
			auth_token = excluded.auth_token,
			is_active = excluded.is_active,
			last_updated_at = excluded.last_updated_at
	`
	_, err := r.DB.ExecContext(ctx, query,
		w.ID, w.ModelID, w.TrelloID, w.Description, w.AuthToken,
		active, w.CreatedAt, w.LastUpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return webhook.Webhook{}, fmt.Errorf("storing webhook: %w", webhook.ErrDuplicate)
		}
		return webhook.Webhook{}, fmt.Errorf("storing webhook: %w", err)
	}
	return w, nil
}

// Get returns one record by id
func (r *Repository) Get(ctx context.Context, id string) (webhook.Webhook, error) {
	query := selectRecords + ` WHERE id = ?`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, id))
}

// GetByTokenAndModel resolves the record an inbound callback belongs to
func (r *Repository) GetByTokenAndModel(ctx context.Context, authToken, modelID string) (webhook.Webhook, error) {
	query := selectRecords + ` WHERE auth_token = ? AND model_id = ?`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, authToken, modelID))
}

// List returns all records, oldest first
func (r *Repository) List(ctx context.Context) ([]webhook.Webhook, error) {
	query := selectRecords + ` ORDER BY created_at, id`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []webhook.Webhook
	for rows.Next() {
		w, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating webhooks: %w", err)
	}
	return hooks, nil
}

// Touch bumps last_updated_at without rewriting the record
func (r *Repository) Touch(ctx context.Context, id string, at time.Time) error {
	result, err := r.DB.ExecContext(ctx,
		`UPDATE webhook_records SET last_updated_at = ? WHERE id = ?`,
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("touching webhook: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

// Delete removes a record. Callback events are kept.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM webhook_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return webhook.ErrNotFound
	}
	return nil
}

// StoreEvent appends one callback event, stamping it with the ingestion time
func (r *Repository) StoreEvent(ctx context.Context, e webhook.CallbackEvent) (webhook.CallbackEvent, error) {
	e.Timestamp = time.Now().UTC()

	query := `
		INSERT INTO callback_events (id, webhook_id, event_type, event_payload, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.DB.ExecContext(ctx, query,
		e.ID, e.WebhookID, e.EventType, string(e.Payload), e.Timestamp,
	)
	if err != nil {
		return webhook.CallbackEvent{}, fmt.Errorf("storing callback event: %w", err)
	}
	return e, nil
}

// ListEvents returns the most recent events for a record, newest first
func (r *Repository) ListEvents(ctx context.Context, webhookID string, limit int) ([]webhook.CallbackEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, webhook_id, event_type, event_payload, timestamp
		FROM callback_events
		WHERE webhook_id = ?
		ORDER BY timestamp DESC, id
		LIMIT ?
	`
	rows, err := r.DB.QueryContext(ctx, query, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []webhook.CallbackEvent
	for rows.Next() {
		var e webhook.CallbackEvent
		var body string
		if err := rows.Scan(&e.ID, &e.WebhookID, &e.EventType, &body, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Payload = []byte(body)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

/* StateCounts returns the number of records per lifecycle state. Feeds the
 * metrics collector.
 */
func (r *Repository) StateCounts(ctx context.Context) (map[string]int64, error) {
	hooks, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	counts := map[string]int64{
		webhook.Unregistered.String(): 0,
		webhook.Registered.String():   0,
		webhook.Orphaned.String():     0,
	}
	for _, w := range hooks {
		counts[w.State().String()]++
	}
	return counts, nil
}

// EventCount returns the total number of persisted callback events
func (r *Repository) EventCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM callback_events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

// Close closes the underlying database
func (r *Repository) Close(ctx context.Context) error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

const selectRecords = `
	SELECT id, model_id, trello_id, description, auth_token, is_active, created_at, last_updated_at
	FROM webhook_records`

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanOne(row *sql.Row) (webhook.Webhook, error) {
	w, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return webhook.Webhook{}, webhook.ErrNotFound
	}
	return w, err
}

func scanRecord(s scanner) (webhook.Webhook, error) {
	var w webhook.Webhook
	var active sql.NullBool

	err := s.Scan(
		&w.ID, &w.ModelID, &w.TrelloID, &w.Description, &w.AuthToken,
		&active, &w.CreatedAt, &w.LastUpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return webhook.Webhook{}, err
	}
	if err != nil {
		return webhook.Webhook{}, fmt.Errorf("scanning webhook: %w", err)
	}

	w.Active = activationFromNull(active)
	return w, nil
}

func activationToNull(a webhook.Activation) sql.NullBool {
	value, known := a.Bool()
	return sql.NullBool{Bool: value, Valid: known}
}

func activationFromNull(b sql.NullBool) webhook.Activation {
	if !b.Valid {
		return webhook.Unknown
	}
	return webhook.ActivationFromRemote(b.Bool)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

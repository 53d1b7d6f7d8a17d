package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trellohooks/trellohooks/webhook/payload"
)

/* Service represents the business logic layer
 * Uses pointer semantics as it's an API, not data
 */

// UseCase defines the business operations for webhook management and
// callback ingestion
type UseCase interface {
	Create(ctx context.Context, w Webhook) (Webhook, error)
	Get(ctx context.Context, id string) (Webhook, error)
	List(ctx context.Context) ([]Webhook, error)
	ListEvents(ctx context.Context, id string, limit int) ([]CallbackEvent, error)
	Update(ctx context.Context, w Webhook) (Webhook, error)
	Delete(ctx context.Context, id string) error
	Sync(ctx context.Context, id string) (Webhook, error)
	SyncFleet(ctx context.Context, extraTokens []string) (FleetReport, error)
	Receive(ctx context.Context, authToken, modelID string, body []byte) (CallbackEvent, error)
}

// Recorder receives operational counters. Implemented by the metrics
// package; a nil recorder disables instrumentation.
type Recorder interface {
	RecordCallback(ctx context.Context, result string)
	RecordSync(ctx context.Context, outcome string)
}

type Service struct {
	Repo     Repository
	Engine   *SyncEngine
	Notifier *Notifier
	Logger   *slog.Logger
	Recorder Recorder
}

// NewService creates a new webhook service with dependency injection
func NewService(repo Repository, engine *SyncEngine, notifier *Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Repo:     repo,
		Engine:   engine,
		Notifier: notifier,
		Logger:   logger,
	}
}

/* Create persists a new record and immediately reconciles it with Trello.
 * Persistence and synchronization are separate, explicit steps: the sync
 * engine is told to persist the reconciled copy itself.
 */
func (s *Service) Create(ctx context.Context, w Webhook) (Webhook, error) {
	if err := w.Validate(); err != nil {
		return Webhook{}, fmt.Errorf("validating webhook: %w", err)
	}

	w.ID = uuid.New().String()
	w.TrelloID = ""
	w.Active = Unknown

	w, err := s.Repo.Store(ctx, w)
	if err != nil {
		return Webhook{}, fmt.Errorf("storing webhook: %w", err)
	}

	synced, err := s.Engine.Sync(ctx, w, true)
	if err != nil {
		// the record exists locally either way; surface the sync failure
		// so the caller can retry later
		s.recordSync(ctx, "error")
		return w, fmt.Errorf("syncing new webhook: %w", err)
	}

	s.recordSync(ctx, synced.State().String())
	return synced, nil
}

// Get returns one record by id
func (s *Service) Get(ctx context.Context, id string) (Webhook, error) {
	w, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Webhook{}, fmt.Errorf("getting webhook: %w", err)
	}
	return w, nil
}

// List returns all records
func (s *Service) List(ctx context.Context) ([]Webhook, error) {
	hooks, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	return hooks, nil
}

// ListEvents returns the most recent events for a record, newest first
func (s *Service) ListEvents(ctx context.Context, id string, limit int) ([]CallbackEvent, error) {
	if _, err := s.Repo.Get(ctx, id); err != nil {
		return nil, fmt.Errorf("getting webhook: %w", err)
	}
	events, err := s.Repo.ListEvents(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

/* Update persists field changes and, when the record is registered, pushes
 * the new description to the existing remote registration. A failed remote
 * update is logged, not fatal - the next sync reconciles.
 */
func (s *Service) Update(ctx context.Context, w Webhook) (Webhook, error) {
	if err := w.Validate(); err != nil {
		return Webhook{}, fmt.Errorf("validating webhook: %w", err)
	}

	current, err := s.Repo.Get(ctx, w.ID)
	if err != nil {
		return Webhook{}, fmt.Errorf("getting webhook: %w", err)
	}

	// remote identity and activation are owned by the sync engine
	w.TrelloID = current.TrelloID
	w.Active = current.Active
	w.CreatedAt = current.CreatedAt

	w, err = s.Repo.Store(ctx, w)
	if err != nil {
		return Webhook{}, fmt.Errorf("storing webhook: %w", err)
	}

	if w.State() == Registered {
		if err := s.Engine.UpdateRemote(ctx, w); err != nil {
			s.Logger.Warn("unable to update remote webhook",
				"webhook_id", w.ID,
				"error", err,
			)
		}
	}
	return w, nil
}

/* Delete removes the local record and attempts to delete the remote
 * registration as a best-effort side effect.
 */
func (s *Service) Delete(ctx context.Context, id string) error {
	w, err := s.Repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("getting webhook: %w", err)
	}

	if err := s.Repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}

	s.Engine.DeleteRemote(ctx, w)
	return nil
}

// Sync reconciles one record with Trello and persists the result
func (s *Service) Sync(ctx context.Context, id string) (Webhook, error) {
	w, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Webhook{}, fmt.Errorf("getting webhook: %w", err)
	}

	synced, err := s.Engine.Sync(ctx, w, true)
	if err != nil {
		s.recordSync(ctx, "error")
		return Webhook{}, fmt.Errorf("syncing webhook: %w", err)
	}

	s.recordSync(ctx, synced.State().String())
	return synced, nil
}

// SyncFleet runs the batch reconciliation job
func (s *Service) SyncFleet(ctx context.Context, extraTokens []string) (FleetReport, error) {
	return s.Engine.SyncFleet(ctx, extraTokens)
}

/* Receive ingests one callback delivery.
 *
 * The matched record authenticates the request: an unknown (token, model)
 * pair is ErrNotFound, an unparseable body is ErrMalformedPayload - both
 * client errors, never retried. The event write is the one fatal step;
 * the touch is advisory and the fan-out must not affect the response.
 *
 * Trello may redeliver; a redelivery produces a duplicate event. The
 * payload carries no stable event identifier to deduplicate on, and
 * consumers are expected to tolerate duplicates.
 */
func (s *Service) Receive(ctx context.Context, authToken, modelID string, body []byte) (CallbackEvent, error) {
	w, err := s.Repo.GetByTokenAndModel(ctx, authToken, modelID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.recordCallback(ctx, "not_found")
		} else {
			s.recordCallback(ctx, "error")
		}
		return CallbackEvent{}, fmt.Errorf("resolving webhook: %w", err)
	}

	doc, err := payload.Parse(body)
	if err != nil {
		s.recordCallback(ctx, "malformed")
		s.Logger.Warn("malformed callback payload",
			"webhook_id", w.ID,
			"model_id", modelID,
			"error", err,
		)
		return CallbackEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	eventType, ok := doc.ActionType()
	if !ok {
		s.recordCallback(ctx, "malformed")
		s.Logger.Warn("callback payload missing action type",
			"webhook_id", w.ID,
			"model_id", modelID,
		)
		return CallbackEvent{}, fmt.Errorf("%w: missing action.type", ErrMalformedPayload)
	}

	event := CallbackEvent{
		ID:        uuid.New().String(),
		WebhookID: w.ID,
		EventType: eventType,
		Payload:   doc.Raw(),
	}
	event, err = s.Repo.StoreEvent(ctx, event)
	if err != nil {
		s.recordCallback(ctx, "error")
		return CallbackEvent{}, fmt.Errorf("storing callback event: %w", err)
	}

	// advisory only - the event is already durable
	if err := s.Repo.Touch(ctx, w.ID, time.Now()); err != nil {
		s.Logger.Warn("unable to touch webhook", "webhook_id", w.ID, "error", err)
	}

	if s.Notifier != nil {
		s.Notifier.Emit(ctx, event)
	}

	s.recordCallback(ctx, "ok")
	return event, nil
}

func (s *Service) recordCallback(ctx context.Context, result string) {
	if s.Recorder != nil {
		s.Recorder.RecordCallback(ctx, result)
	}
}

func (s *Service) recordSync(ctx context.Context, outcome string) {
	if s.Recorder != nil {
		s.Recorder.RecordSync(ctx, outcome)
	}
}

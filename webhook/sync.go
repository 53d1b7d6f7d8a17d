package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/trellohooks/trellohooks/trello"
)

/* SyncEngine reconciles a local record against the remote Trello
 * registration: pull current remote state, decide create vs adopt vs
 * conflict, push when still unregistered, persist.
 *
 * Sync is idempotent: repeated calls on a registered record with no remote
 * drift change nothing beyond the pull round trip.
 */
type SyncEngine struct {
	repo   Repository
	remote RemoteClient

	// callbackDomain is the public base URL Trello calls back on
	callbackDomain string

	logger *slog.Logger

	/* Per-record locks. Pull-then-push is not atomic across the remote
	 * round trip, so two concurrent syncs of the same unregistered record
	 * could register it twice remotely. Syncs of different records run
	 * without coordination.
	 */
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSyncEngine creates a sync engine
func NewSyncEngine(repo Repository, remote RemoteClient, callbackDomain string, logger *slog.Logger) *SyncEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncEngine{
		repo:           repo,
		remote:         remote,
		callbackDomain: callbackDomain,
		logger:         logger,
		locks:          make(map[string]*sync.Mutex),
	}
}

// CallbackDomain returns the configured public callback base URL
func (e *SyncEngine) CallbackDomain() string {
	return e.callbackDomain
}

func (e *SyncEngine) lock(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

/* Sync reconciles one record and returns the updated copy.
 *
 * When persist is false the record is reconciled but not written - used
 * when the caller is itself inside a persist operation and will write the
 * record afterwards.
 */
func (e *SyncEngine) Sync(ctx context.Context, w Webhook, persist bool) (Webhook, error) {
	if w.ID != "" {
		unlock := e.lock(w.ID)
		defer unlock()
	}

	w, err := e.pull(ctx, w)
	if err != nil {
		return w, err
	}

	if !w.HasTrelloID() {
		w, err = e.push(ctx, w)
		if err != nil {
			return w, err
		}
	}

	if persist {
		w, err = e.repo.Store(ctx, w)
		if err != nil {
			return w, fmt.Errorf("persisting synced webhook: %w", err)
		}
	}
	return w, nil
}

/* pull fetches the remote registrations for the record's token and folds
 * the matching one, if any, into the local copy:
 *
 *   - no remote entry for the model: clear TrelloID (unregistered)
 *   - entry with the same callback URL: adopt its id and activation; a
 *     blank local description is filled from the remote one (one-way,
 *     never overwrites a non-blank local value)
 *   - entry with a different callback URL: mark the record conflicted and
 *     leave it for the operator - delete and recreate is the only fix
 */
func (e *SyncEngine) pull(ctx context.Context, w Webhook) (Webhook, error) {
	hooks, err := e.remote.List(ctx, w.AuthToken)
	if err != nil {
		return w, fmt.Errorf("pulling remote webhooks: %w", err)
	}

	var match *trello.Webhook
	for i := range hooks {
		if hooks[i].IDModel == w.ModelID {
			match = &hooks[i]
			break
		}
	}

	if match == nil {
		w.TrelloID = ""
		return w, nil
	}

	if match.CallbackURL != w.CallbackURL(e.callbackDomain) {
		w.TrelloID = TrelloIDConflict
		e.logger.Warn("remote webhook callback URL mismatch",
			"webhook_id", w.ID,
			"model_id", w.ModelID,
			"remote_id", match.ID,
			"remote_callback_url", match.CallbackURL,
		)
		return w, nil
	}

	w.TrelloID = match.ID
	w.Active = ActivationFromRemote(match.Active)
	if w.Description == "" && match.Description != "" {
		w.Description = match.Description
	}
	return w, nil
}

/* push registers the record with Trello. A rejected create (typically a
 * duplicate registration) is terminal for this attempt: the record is left
 * unregistered and inactive, and the next scheduled sync decides what to
 * do. Transport failures propagate to the caller.
 */
func (e *SyncEngine) push(ctx context.Context, w Webhook) (Webhook, error) {
	hook, err := e.remote.Create(ctx, w.AuthToken, trello.Webhook{
		IDModel:     w.ModelID,
		CallbackURL: w.CallbackURL(e.callbackDomain),
		Description: w.Description,
	})
	if errors.Is(err, trello.ErrRejected) {
		w.TrelloID = ""
		w.Active = Inactive
		e.logger.Warn("remote webhook registration rejected",
			"webhook_id", w.ID,
			"model_id", w.ModelID,
			"error", err,
		)
		return w, nil
	}
	if err != nil {
		return w, fmt.Errorf("pushing webhook: %w", err)
	}

	w.TrelloID = hook.ID
	w.Active = Active
	e.logger.Debug("webhook registered with Trello",
		"webhook_id", w.ID,
		"model_id", w.ModelID,
		"trello_id", hook.ID,
	)
	return w, nil
}

/* DeleteRemote removes the remote registration, best effort. Failure is
 * logged, never fatal - local deletion proceeds regardless. The conflict
 * sentinel is not a real remote id, so conflicted records are skipped.
 */
func (e *SyncEngine) DeleteRemote(ctx context.Context, w Webhook) {
	if !w.HasTrelloID() || w.TrelloID == TrelloIDConflict {
		return
	}
	if err := e.remote.Delete(ctx, w.AuthToken, w.TrelloID); err != nil {
		e.logger.Warn("unable to delete remote webhook",
			"webhook_id", w.ID,
			"trello_id", w.TrelloID,
			"error", err,
		)
		return
	}
	e.logger.Debug("remote webhook deleted",
		"webhook_id", w.ID,
		"trello_id", w.TrelloID,
	)
}

/* UpdateRemote pushes the current callback URL and description to an
 * existing registration. Callers must only invoke it for records with a
 * real remote id.
 */
func (e *SyncEngine) UpdateRemote(ctx context.Context, w Webhook) error {
	if !w.HasTrelloID() || w.TrelloID == TrelloIDConflict {
		return fmt.Errorf("updating remote webhook: record has no remote id")
	}
	_, err := e.remote.Update(ctx, w.AuthToken, trello.Webhook{
		ID:          w.TrelloID,
		CallbackURL: w.CallbackURL(e.callbackDomain),
		Description: w.Description,
	})
	if err != nil {
		return fmt.Errorf("updating remote webhook: %w", err)
	}
	return nil
}

package webhook_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trellohooks/trellohooks/trello"
	"github.com/trellohooks/trellohooks/webhook"
)

/* In-memory fakes for the repository and the remote client.
 * Stateful on purpose: sync behavior depends on what earlier calls
 * registered, so the fakes model the remote side rather than replaying
 * canned responses.
 */

type fakeRepo struct {
	mu     sync.Mutex
	hooks  map[string]webhook.Webhook
	events []webhook.CallbackEvent

	storeErr  error
	eventErr  error
	touchErr  error
	lookupErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{hooks: make(map[string]webhook.Webhook)}
}

func (r *fakeRepo) Store(ctx context.Context, w webhook.Webhook) (webhook.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeErr != nil {
		return webhook.Webhook{}, r.storeErr
	}

	for id, existing := range r.hooks {
		if id != w.ID && existing.ModelID == w.ModelID && existing.AuthToken == w.AuthToken {
			return webhook.Webhook{}, webhook.ErrDuplicate
		}
	}

	now := time.Now().UTC()
	w.LastUpdatedAt = now
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	r.hooks[w.ID] = w
	return w, nil
}

func (r *fakeRepo) Get(ctx context.Context, id string) (webhook.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.hooks[id]
	if !ok {
		return webhook.Webhook{}, webhook.ErrNotFound
	}
	return w, nil
}

func (r *fakeRepo) GetByTokenAndModel(ctx context.Context, authToken, modelID string) (webhook.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookupErr != nil {
		return webhook.Webhook{}, r.lookupErr
	}
	for _, w := range r.hooks {
		if w.AuthToken == authToken && w.ModelID == modelID {
			return w, nil
		}
	}
	return webhook.Webhook{}, webhook.ErrNotFound
}

func (r *fakeRepo) List(ctx context.Context) ([]webhook.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hooks := make([]webhook.Webhook, 0, len(r.hooks))
	for _, w := range r.hooks {
		hooks = append(hooks, w)
	}
	return hooks, nil
}

func (r *fakeRepo) Touch(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.touchErr != nil {
		return r.touchErr
	}
	w, ok := r.hooks[id]
	if !ok {
		return webhook.ErrNotFound
	}
	w.LastUpdatedAt = at
	r.hooks[id] = w
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hooks[id]; !ok {
		return webhook.ErrNotFound
	}
	delete(r.hooks, id)
	return nil
}

func (r *fakeRepo) StoreEvent(ctx context.Context, e webhook.CallbackEvent) (webhook.CallbackEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.eventErr != nil {
		return webhook.CallbackEvent{}, r.eventErr
	}
	e.Timestamp = time.Now().UTC()
	r.events = append(r.events, e)
	return e, nil
}

func (r *fakeRepo) ListEvents(ctx context.Context, webhookID string, limit int) ([]webhook.CallbackEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var events []webhook.CallbackEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].WebhookID == webhookID {
			events = append(events, r.events[i])
		}
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

func (r *fakeRepo) Close(ctx context.Context) error { return nil }

func (r *fakeRepo) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fakeRemote struct {
	mu     sync.Mutex
	hooks  map[string][]trello.Webhook // keyed by token
	nextID int

	listErr      error
	listErrFor   map[string]error
	createErr    error
	updateErr    error
	deleteErr    error
	createDelay  time.Duration
	listCalls    int
	createCalls  int
	updateCalls  int
	deleteCalls  int
	deletedHooks []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		hooks:      make(map[string][]trello.Webhook),
		listErrFor: make(map[string]error),
	}
}

func (r *fakeRemote) register(token string, hook trello.Webhook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[token] = append(r.hooks[token], hook)
}

func (r *fakeRemote) List(ctx context.Context, token string) ([]trello.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	if err := r.listErrFor[token]; err != nil {
		return nil, err
	}
	hooks := make([]trello.Webhook, len(r.hooks[token]))
	copy(hooks, r.hooks[token])
	return hooks, nil
}

func (r *fakeRemote) Create(ctx context.Context, token string, hook trello.Webhook) (trello.Webhook, error) {
	r.mu.Lock()
	r.createCalls++
	err := r.createErr
	delay := r.createDelay
	r.mu.Unlock()

	if err != nil {
		return trello.Webhook{}, err
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	hook.ID = fmt.Sprintf("remote-%d", r.nextID)
	hook.Active = true
	r.hooks[token] = append(r.hooks[token], hook)
	return hook, nil
}

func (r *fakeRemote) Update(ctx context.Context, token string, hook trello.Webhook) (trello.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	if r.updateErr != nil {
		return trello.Webhook{}, r.updateErr
	}
	for i, existing := range r.hooks[token] {
		if existing.ID == hook.ID {
			r.hooks[token][i].CallbackURL = hook.CallbackURL
			r.hooks[token][i].Description = hook.Description
			return r.hooks[token][i], nil
		}
	}
	return trello.Webhook{}, trello.ErrNotFound
}

func (r *fakeRemote) Delete(ctx context.Context, token, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteCalls++
	r.deletedHooks = append(r.deletedHooks, id)
	if r.deleteErr != nil {
		return r.deleteErr
	}
	hooks := r.hooks[token]
	for i, existing := range hooks {
		if existing.ID == id {
			r.hooks[token] = append(hooks[:i], hooks[i+1:]...)
			return nil
		}
	}
	return trello.ErrNotFound
}

// fakeRecorder captures metric recordings for assertions
type fakeRecorder struct {
	mu        sync.Mutex
	callbacks []string
	syncs     []string
}

func (r *fakeRecorder) RecordCallback(ctx context.Context, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, result)
}

func (r *fakeRecorder) RecordSync(ctx context.Context, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs = append(r.syncs, outcome)
}

func (r *fakeRecorder) callbackResults() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := make([]string, len(r.callbacks))
	copy(results, r.callbacks)
	return results
}

// recordingConsumer captures emitted events for assertions
type recordingConsumer struct {
	mu     sync.Mutex
	events []webhook.CallbackEvent
	err    error
}

func (c *recordingConsumer) HandleCallback(ctx context.Context, event webhook.CallbackEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *recordingConsumer) received() []webhook.CallbackEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]webhook.CallbackEvent, len(c.events))
	copy(events, c.events)
	return events
}

package webhook

import (
	"context"
	"log/slog"
	"sync"
)

// Consumer handles a CallbackReceived notification
type Consumer interface {
	HandleCallback(ctx context.Context, event CallbackEvent) error
}

// ConsumerFunc adapts a plain function to the Consumer interface
type ConsumerFunc func(ctx context.Context, event CallbackEvent) error

func (f ConsumerFunc) HandleCallback(ctx context.Context, event CallbackEvent) error {
	return f(ctx, event)
}

/* Notifier fans a CallbackReceived notification out to registered consumers,
 * synchronously and in registration order. It runs inside the callback
 * request, so consumers must not perform long-running work.
 *
 * Consumer errors and panics are logged and swallowed: by the time the
 * fan-out runs the event is already persisted and the HTTP response must
 * not be affected.
 */
type Notifier struct {
	logger *slog.Logger

	mu        sync.RWMutex
	consumers []Consumer
}

// NewNotifier creates an empty notifier
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// Register appends a consumer to the fan-out list
func (n *Notifier) Register(c Consumer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.consumers = append(n.consumers, c)
}

// Emit delivers the event to every consumer in registration order
func (n *Notifier) Emit(ctx context.Context, event CallbackEvent) {
	n.mu.RLock()
	consumers := make([]Consumer, len(n.consumers))
	copy(consumers, n.consumers)
	n.mu.RUnlock()

	for _, c := range consumers {
		n.deliver(ctx, c, event)
	}
}

func (n *Notifier) deliver(ctx context.Context, c Consumer, event CallbackEvent) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("callback consumer panicked",
				"event_id", event.ID,
				"event_type", event.EventType,
				"panic", r,
			)
		}
	}()

	if err := c.HandleCallback(ctx, event); err != nil {
		n.logger.Error("callback consumer failed",
			"event_id", event.ID,
			"event_type", event.EventType,
			"error", err,
		)
	}
}

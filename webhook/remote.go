package webhook

import (
	"context"

	"github.com/trellohooks/trellohooks/trello"
)

/* RemoteClient is the slice of the Trello API the sync engine needs.
 * Defined on the consumer side so the engine can be exercised against a
 * fake remote in tests. *trello.Client satisfies it.
 */
type RemoteClient interface {
	List(ctx context.Context, token string) ([]trello.Webhook, error)
	Create(ctx context.Context, token string, hook trello.Webhook) (trello.Webhook, error)
	Update(ctx context.Context, token string, hook trello.Webhook) (trello.Webhook, error)
	Delete(ctx context.Context, token, id string) error
}

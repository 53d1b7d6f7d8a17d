package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trellohooks/trellohooks/webhook"
)

/* Redis Streams publisher for CallbackReceived notifications
 *
 * Registered as a webhook.Consumer: every ingested callback event is
 * appended to a stream so out-of-process consumers (notification bridges,
 * backfill jobs) can follow the callback log without polling the database.
 * Delivery is best effort - the event is already durable in the store by
 * the time the publisher runs, and a failed XADD only costs downstream
 * consumers this one notification.
 */

// DefaultStream is the stream events are published to
const DefaultStream = "trello:callbacks"

type Publisher struct {
	client *redis.Client
	stream string
}

// NewPublisher creates a publisher and verifies the connection
func NewPublisher(addr, password string, db int, stream string) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{client: client, stream: stream}, nil
}

// HandleCallback appends the event to the stream
func (p *Publisher) HandleCallback(ctx context.Context, event webhook.CallbackEvent) error {
	values := map[string]interface{}{
		"event_id":   event.ID,
		"webhook_id": event.WebhookID,
		"event_type": event.EventType,
		"payload":    string(event.Payload),
		"timestamp":  event.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	if _, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result(); err != nil {
		return fmt.Errorf("publishing callback event: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (p *Publisher) Close(ctx context.Context) error {
	return p.client.Close()
}

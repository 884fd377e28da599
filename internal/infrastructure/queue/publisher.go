package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher appends messages to the stock-change stream. The HTTP intake
// endpoint and tests go through it; external systems write the same entry
// shape directly.
type Publisher struct {
	client *redis.Client
	stream string
}

// NewPublisher creates a new stream publisher
func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{client: client, stream: stream}
}

// Publish appends one message with the given kind and JSON-encoded payload,
// returning the assigned stream entry ID.
func (p *Publisher) Publish(ctx context.Context, kind MessageKind, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: failed to marshal payload: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			fieldKind:    string(kind),
			fieldPayload: string(body),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("queue: failed to publish message: %w", err)
	}
	return id, nil
}

package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// PendingMessageChannel is the pub/sub channel carrying ids of
// newly-inserted pending outgoing messages. Delivery is best-effort; the
// dispatcher's poll fallback covers missed notifications.
const PendingMessageChannel = "outgoing_messages:pending"

func (c *Client) NotifyPending(ctx context.Context, messageID string) error {
	return c.Publish(ctx, PendingMessageChannel, messageID).Err()
}

// SubscribePending subscribes to the pending-message channel and adapts it to
// a plain stream of message ids. The returned stop function tears the
// subscription down, which also closes the stream.
func (c *Client) SubscribePending(ctx context.Context) (<-chan string, func() error) {
	pubsub := c.Subscribe(ctx, PendingMessageChannel)

	ids := make(chan string)
	go func() {
		defer close(ids)
		for msg := range pubsub.Channel() {
			select {
			case ids <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ids, pubsub.Close
}

package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/stock-console/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const streamBodyField = "body"

var _ NotificationChannel = (*RedisStreamChannel)(nil)

// RedisStreamChannel uses a Redis stream as the notification channel. Reads
// are non-destructive XRANGE scans; entries leave the stream only via XDEL.
type RedisStreamChannel struct {
	client    goredis.UniversalClient
	stream    string
	pollEvery time.Duration
}

func NewRedisStreamChannel(client goredis.UniversalClient, stream string) (*RedisStreamChannel, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(stream) == "" {
		return nil, fmt.Errorf("stream name is required")
	}

	return &RedisStreamChannel{
		client:    client,
		stream:    stream,
		pollEvery: defaultReceivePollEvery,
	}, nil
}

// Send appends a message body to the stream and returns its entry id.
func (c *RedisStreamChannel) Send(ctx context.Context, body string) (string, error) {
	id, err := c.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: c.stream,
		Values: map[string]any{streamBodyField: body},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to stream %q: %w", c.stream, err)
	}
	return id, nil
}

func (c *RedisStreamChannel) Receive(ctx context.Context, max int, wait time.Duration) ([]domain.NotificationMessage, error) {
	max = clampBatch(max)
	deadline := time.Now().Add(wait)

	for {
		entries, err := c.client.XRangeN(ctx, c.stream, "-", "+", int64(max)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read stream %q: %w", c.stream, err)
		}

		if len(entries) > 0 || !time.Now().Before(deadline) {
			messages := make([]domain.NotificationMessage, 0, len(entries))
			for _, entry := range entries {
				body, _ := entry.Values[streamBodyField].(string)
				messages = append(messages, domain.NotificationMessage{ID: entry.ID, Body: body})
			}
			return messages, nil
		}

		if err := sleepWithContext(ctx, c.pollEvery); err != nil {
			return nil, err
		}
	}
}

func (c *RedisStreamChannel) Delete(ctx context.Context, id string) error {
	n, err := c.client.XDel(ctx, c.stream, id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete stream entry %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: stream entry %q", domain.ErrNotFound, id)
	}
	return nil
}

func (c *RedisStreamChannel) Close() error {
	return nil
}

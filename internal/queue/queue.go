package queue

import (
	"context"
	"time"

	"github.com/kursadbilgin/stock-console/internal/domain"
)

// NotificationChannel is the completion-signal bus external workers write to.
// Receive returns up to max messages, waiting at most wait for the first one.
// Messages stay on the channel until deleted; Delete of an unknown id returns
// domain.ErrNotFound.
type NotificationChannel interface {
	Receive(ctx context.Context, max int, wait time.Duration) ([]domain.NotificationMessage, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Publisher publishes events to a named event bus.
type Publisher interface {
	Publish(ctx context.Context, bus string, msg EventMessage) error
	Close() error
}

const (
	// DefaultNotificationQueue is where downstream lambdas report completion.
	DefaultNotificationQueue = "rtg-automotive-lambda-queue"
	// DefaultEventBus receives eBay table generation requests.
	DefaultEventBus = "rtg-automotive-generate-ebay-table-lambda-event-bus"

	// MaxReceiveBatch is the largest batch a single Receive hands back.
	MaxReceiveBatch = 10

	defaultReceivePollEvery = 200 * time.Millisecond
)

func clampBatch(max int) int {
	if max < 1 {
		return 1
	}
	if max > MaxReceiveBatch {
		return MaxReceiveBatch
	}
	return max
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/stock-console/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var _ NotificationChannel = (*RabbitMQChannel)(nil)

// amqpGetter is the slice of *amqp.Channel the notification channel uses.
type amqpGetter interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	IsClosed() bool
	Close() error
}

// RabbitMQChannel reads completion messages with basic.get. Messages handed
// out by Receive stay unacknowledged until Delete acks them; closing the
// channel returns anything not deleted to the queue.
type RabbitMQChannel struct {
	open      func(ctx context.Context) (amqpGetter, error)
	queue     string
	pollEvery time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	ch      amqpGetter
	pending map[string]amqp.Delivery
}

func NewRabbitMQChannel(client *RabbitMQ, queueName string, logger *zap.Logger) (*RabbitMQChannel, error) {
	if client == nil {
		return nil, fmt.Errorf("rabbitmq client is required")
	}
	if strings.TrimSpace(queueName) == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQChannel{
		open: func(ctx context.Context) (amqpGetter, error) {
			ch, err := client.channel(ctx)
			if err != nil {
				return nil, err
			}
			return ch, nil
		},
		queue:     queueName,
		pollEvery: defaultReceivePollEvery,
		logger:    logger,
		pending:   make(map[string]amqp.Delivery),
	}, nil
}

func (c *RabbitMQChannel) Receive(ctx context.Context, max int, wait time.Duration) ([]domain.NotificationMessage, error) {
	if c == nil || c.open == nil {
		return nil, fmt.Errorf("notification channel is not initialized")
	}

	max = clampBatch(max)
	deadline := time.Now().Add(wait)

	for {
		messages, err := c.getBatch(ctx, max)
		if err != nil {
			return nil, err
		}
		if len(messages) > 0 || !time.Now().Before(deadline) {
			return messages, nil
		}

		if err := sleepWithContext(ctx, c.pollEvery); err != nil {
			return nil, err
		}
	}
}

func (c *RabbitMQChannel) getBatch(ctx context.Context, max int) ([]domain.NotificationMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.channelLocked(ctx)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.NotificationMessage, 0, max)
	for len(messages) < max {
		d, ok, err := ch.Get(c.queue, false)
		if err != nil {
			c.resetLocked()
			return nil, fmt.Errorf("failed to get message from queue %q: %w", c.queue, err)
		}
		if !ok {
			break
		}

		id := strconv.FormatUint(d.DeliveryTag, 10)
		c.pending[id] = d
		messages = append(messages, domain.NotificationMessage{
			ID:   id,
			Body: string(d.Body),
		})
	}

	return messages, nil
}

func (c *RabbitMQChannel) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.pending[id]
	if !ok {
		return fmt.Errorf("%w: message %q is not pending on queue %q", domain.ErrNotFound, id, c.queue)
	}
	delete(c.pending, id)

	if err := d.Ack(false); err != nil {
		c.resetLocked()
		return fmt.Errorf("failed to ack message %q: %w", id, err)
	}
	return nil
}

func (c *RabbitMQChannel) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()
	return nil
}

// channelLocked reuses the open AMQP channel or opens a new one. Delivery
// tags restart on a new channel, so pending deliveries are forgotten.
func (c *RabbitMQChannel) channelLocked(ctx context.Context) (amqpGetter, error) {
	if c.ch != nil && !c.ch.IsClosed() {
		return c.ch, nil
	}

	ch, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	c.ch = ch
	c.pending = make(map[string]amqp.Delivery)
	return ch, nil
}

// resetLocked drops the AMQP channel; the broker requeues unacked deliveries.
func (c *RabbitMQChannel) resetLocked() {
	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			c.logger.Debug("notification channel close failed", zap.Error(err))
		}
	}
	c.ch = nil
	c.pending = make(map[string]amqp.Delivery)
}

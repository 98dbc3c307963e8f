// Package completion implements the fire-and-poll protocol used to wait for
// asynchronous backend jobs: drain the notification channel, fire the
// trigger, poll for a completion signal, and correlate what was read.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/observability"
	"github.com/kursadbilgin/stock-console/internal/queue"
	"go.uber.org/zap"
)

const (
	DefaultReceiveWait  = 5 * time.Second
	DefaultWaitPerUnit  = 4 * time.Second
	DefaultPollInterval = 10 * time.Second
	DefaultMaxWait      = 15 * time.Minute
)

// Options tunes the poll timings. Zero values take the defaults.
// MaxPollInterval greater than PollInterval enables exponential backoff
// between signal reads.
type Options struct {
	ReceiveWait     time.Duration
	WaitPerUnit     time.Duration
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	MaxWait         time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReceiveWait <= 0 {
		o.ReceiveWait = DefaultReceiveWait
	}
	if o.WaitPerUnit < 0 {
		o.WaitPerUnit = 0
	} else if o.WaitPerUnit == 0 {
		o.WaitPerUnit = DefaultWaitPerUnit
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxPollInterval < o.PollInterval {
		o.MaxPollInterval = o.PollInterval
	}
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	return o
}

// Trigger performs the side effect being tracked. An error aborts the run
// before any poll.
type Trigger func(ctx context.Context) error

// Result is what a completed run observed.
type Result struct {
	Signal    domain.CompletionSignal
	StartedAt time.Time
	Elapsed   time.Duration
	Messages  []domain.NotificationMessage
	Lines     []Line
	Matched   *domain.NotificationMessage
}

// Protocol runs tracked operations against one notification channel.
// Concurrent runs against the same channel can steal each other's messages.
type Protocol struct {
	channel queue.NotificationChannel
	opts    Options
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewProtocol(channel queue.NotificationChannel, opts Options, logger *zap.Logger) (*Protocol, error) {
	if channel == nil {
		return nil, fmt.Errorf("notification channel is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Protocol{
		channel: channel,
		opts:    opts.withDefaults(),
		logger:  logger,
		now:     time.Now,
		sleep:   sleepWithContext,
	}, nil
}

func (p *Protocol) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

func (p *Protocol) Options() Options {
	return p.opts
}

// Run drains the channel, fires trigger and waits for signal. A trigger
// error is returned unchanged and no poll happens.
func (p *Protocol) Run(ctx context.Context, signal domain.CompletionSignal, trigger Trigger) (*Result, error) {
	if err := signal.Validate(); err != nil {
		return nil, err
	}
	if trigger == nil {
		return nil, fmt.Errorf("%w: trigger is required", domain.ErrValidation)
	}

	if _, err := p.Drain(ctx); err != nil {
		return nil, err
	}

	startedAt := p.now()
	if err := trigger(ctx); err != nil {
		return nil, err
	}

	switch signal.Kind {
	case domain.SignalCount:
		messages, err := p.AwaitCount(ctx, signal.Count)
		if err != nil {
			return nil, err
		}
		return &Result{
			Signal:    signal,
			StartedAt: startedAt,
			Elapsed:   p.now().Sub(startedAt),
			Messages:  messages,
			Lines:     CorrelateCount(messages),
		}, nil
	default:
		matched, elapsed, err := p.AwaitSignal(ctx, signal, startedAt)
		if err != nil {
			return nil, err
		}
		return &Result{
			Signal:    signal,
			StartedAt: startedAt,
			Elapsed:   elapsed,
			Messages:  []domain.NotificationMessage{*matched},
			Matched:   matched,
		}, nil
	}
}

// Drain deletes every message currently on the channel and returns how many
// were removed. Draining an empty channel is a no-op.
func (p *Protocol) Drain(ctx context.Context) (int, error) {
	deleted := 0
	for {
		messages, err := p.channel.Receive(ctx, queue.MaxReceiveBatch, p.opts.ReceiveWait)
		if err != nil {
			return deleted, fmt.Errorf("failed to drain notification channel: %w", err)
		}
		if len(messages) == 0 {
			break
		}

		for _, msg := range messages {
			if err := p.delete(ctx, msg.ID); err != nil {
				return deleted, fmt.Errorf("failed to drain notification channel: %w", err)
			}
			deleted++
		}
	}

	p.metrics.AddDrainedMessages(deleted)
	if deleted > 0 {
		observability.WithContextLogger(p.logger, ctx).Info("notification channel drained",
			zap.Int("deleted", deleted),
		)
	}

	return deleted, nil
}

// ReadAll consumes every message currently available, deleting each one,
// and returns them ordered by body timestamp.
func (p *Protocol) ReadAll(ctx context.Context) ([]domain.TimestampedMessage, error) {
	var all []domain.NotificationMessage
	for {
		messages, err := p.channel.Receive(ctx, queue.MaxReceiveBatch, p.opts.ReceiveWait)
		if err != nil {
			return nil, fmt.Errorf("failed to read notification channel: %w", err)
		}
		if len(messages) == 0 {
			break
		}

		for _, msg := range messages {
			if err := p.delete(ctx, msg.ID); err != nil {
				return nil, fmt.Errorf("failed to read notification channel: %w", err)
			}
		}
		all = append(all, messages...)
	}

	return SortByTimestamp(all), nil
}

// AwaitCount sleeps WaitPerUnit per expected unit, reads once and keeps the
// last n messages. Fewer than n available is not an error.
func (p *Protocol) AwaitCount(ctx context.Context, n int) ([]domain.NotificationMessage, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: count must be >= 0 (got %d)", domain.ErrValidation, n)
	}

	policy := strings.ToLower(domain.SignalCount.String())
	start := p.now()

	if err := p.sleep(ctx, time.Duration(n)*p.opts.WaitPerUnit); err != nil {
		p.metrics.IncPollOutcome(policy, "canceled")
		return nil, err
	}

	sorted, err := p.ReadAll(ctx)
	if err != nil {
		p.metrics.IncPollOutcome(policy, "error")
		return nil, err
	}

	if len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}

	messages := make([]domain.NotificationMessage, 0, len(sorted))
	for _, tm := range sorted {
		messages = append(messages, tm.NotificationMessage)
	}

	p.metrics.ObservePollDuration(policy, p.now().Sub(start))
	p.metrics.IncPollOutcome(policy, "done")

	return messages, nil
}

// AwaitSignal reads the channel until a message body contains the signal's
// marker, sleeping between reads. It gives up with domain.ErrPollTimeout
// once MaxWait has passed since startedAt.
func (p *Protocol) AwaitSignal(
	ctx context.Context,
	signal domain.CompletionSignal,
	startedAt time.Time,
) (*domain.NotificationMessage, time.Duration, error) {
	if signal.Kind != domain.SignalMarker {
		return nil, 0, fmt.Errorf("%w: marker signal required", domain.ErrValidation)
	}
	if err := signal.Validate(); err != nil {
		return nil, 0, err
	}

	policy := strings.ToLower(domain.SignalMarker.String())
	logger := observability.WithContextLogger(p.logger, ctx)
	interval := p.opts.PollInterval

	for attempt := 1; ; attempt++ {
		messages, err := p.ReadAll(ctx)
		if err != nil {
			p.metrics.IncPollOutcome(policy, "error")
			return nil, 0, err
		}

		for i := range messages {
			if signal.Matches(messages[i].Body) {
				elapsed := p.now().Sub(startedAt)
				matched := messages[i].NotificationMessage
				p.metrics.ObservePollDuration(policy, elapsed)
				p.metrics.IncPollOutcome(policy, "done")
				logger.Info("completion signal observed",
					zap.String("marker", signal.Marker),
					zap.Int("attempt", attempt),
					zap.Duration("elapsed", elapsed),
				)
				return &matched, elapsed, nil
			}
		}

		elapsed := p.now().Sub(startedAt)
		remaining := p.opts.MaxWait - elapsed
		if remaining <= 0 {
			p.metrics.ObservePollDuration(policy, elapsed)
			p.metrics.IncPollOutcome(policy, "timeout")
			logger.Warn("completion signal not observed before max wait",
				zap.String("marker", signal.Marker),
				zap.Int("attempts", attempt),
				zap.Duration("maxWait", p.opts.MaxWait),
			)
			return nil, elapsed, fmt.Errorf("%w: %q not seen after %s", domain.ErrPollTimeout, signal.Marker, p.opts.MaxWait)
		}

		wait := interval
		if wait > remaining {
			wait = remaining
		}

		logger.Debug("completion signal not yet observed",
			zap.String("marker", signal.Marker),
			zap.Int("attempt", attempt),
			zap.Int("messagesRead", len(messages)),
			zap.Duration("nextWait", wait),
		)

		if err := p.sleep(ctx, wait); err != nil {
			p.metrics.IncPollOutcome(policy, "canceled")
			return nil, p.now().Sub(startedAt), err
		}

		interval = nextInterval(interval, p.opts.MaxPollInterval)
	}
}

func (p *Protocol) delete(ctx context.Context, id string) error {
	err := p.channel.Delete(ctx, id)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func nextInterval(current time.Duration, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

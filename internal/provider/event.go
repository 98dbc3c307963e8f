package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/stock-console/internal/queue"
)

// EventSource identifies this dashboard on the event bus.
const EventSource = "com.oxforddataprocesses"

var _ JobTrigger = (*EventTrigger)(nil)

// EventTrigger starts a remote job by publishing its detail on an event bus.
// The request's EventType doubles as the event detail type.
type EventTrigger struct {
	publisher queue.Publisher
	bus       string
	source    string
}

func NewEventTrigger(publisher queue.Publisher, bus, source string) (*EventTrigger, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if strings.TrimSpace(bus) == "" {
		return nil, fmt.Errorf("event bus is required")
	}
	if strings.TrimSpace(source) == "" {
		source = EventSource
	}

	return &EventTrigger{publisher: publisher, bus: bus, source: source}, nil
}

func (t *EventTrigger) Trigger(ctx context.Context, req JobRequest) (*JobResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job request: %w", err)
	}

	detail, err := json.Marshal(req.Detail())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event detail: %w", err)
	}

	msg := queue.EventMessage{
		ID:         uuid.NewString(),
		Source:     t.source,
		DetailType: req.EventType,
		Time:       req.Timestamp.UTC(),
		Detail:     detail,
	}

	if err := t.publisher.Publish(ctx, t.bus, msg); err != nil {
		return nil, deliveryError(fmt.Sprintf("failed to publish %s to %s", req.EventType, t.bus), err)
	}

	return &JobResponse{
		TriggerID: req.TriggerID,
		MessageID: msg.ID,
	}, nil
}

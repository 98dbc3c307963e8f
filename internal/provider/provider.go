package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DetailTimeLayout is the timestamp format carried in job request details.
const DetailTimeLayout = "2006-01-02T15:04:05"

// JobTrigger is the outbound port that starts a remote batch job.
// Trigger returns once the job has been issued, not when it completes.
type JobTrigger interface {
	Trigger(ctx context.Context, req JobRequest) (*JobResponse, error)
}

// JobRequest describes one remote job start. TriggerID correlates the
// request with whatever the downstream worker reports back.
type JobRequest struct {
	EventType string
	User      string
	TriggerID string
	Timestamp time.Time
}

// NewJobRequest builds a request with a fresh trigger id.
func NewJobRequest(eventType, user string, now time.Time) JobRequest {
	return JobRequest{
		EventType: eventType,
		User:      user,
		TriggerID: uuid.NewString(),
		Timestamp: now,
	}
}

func (r JobRequest) Validate() error {
	if strings.TrimSpace(r.EventType) == "" {
		return fmt.Errorf("event type is required")
	}
	if strings.TrimSpace(r.TriggerID) == "" {
		return fmt.Errorf("trigger id is required")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// Detail is the JSON payload shipped to the remote job.
func (r JobRequest) Detail() map[string]string {
	return map[string]string{
		"event_type": r.EventType,
		"user":       r.User,
		"trigger_id": r.TriggerID,
		"timestamp":  r.Timestamp.Format(DetailTimeLayout),
	}
}

// JobResponse stores trigger call metadata.
type JobResponse struct {
	TriggerID  string
	StatusCode int
	Body       string
	MessageID  string
}

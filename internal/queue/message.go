package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventMessage is the event-bus envelope for remote job requests.
type EventMessage struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	DetailType string          `json:"detail-type"`
	Time       time.Time       `json:"time"`
	Detail     json.RawMessage `json:"detail"`
}

func (m EventMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if strings.TrimSpace(m.Source) == "" {
		return fmt.Errorf("event source is required")
	}
	if strings.TrimSpace(m.DetailType) == "" {
		return fmt.Errorf("event detail type is required")
	}
	if len(m.Detail) == 0 || !json.Valid(m.Detail) {
		return fmt.Errorf("event detail must be valid JSON")
	}
	return nil
}

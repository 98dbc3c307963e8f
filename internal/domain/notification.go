package domain

import (
	"fmt"
	"strings"
)

// NotificationMessage is a completion/status message written by an external
// worker to the notification channel. ID is assigned by the channel provider.
type NotificationMessage struct {
	ID   string
	Body string
}

// TimestampedMessage pairs a message with the timestamp found in its body.
// SortKey is nil when the body carries no recognizable timestamp.
type TimestampedMessage struct {
	NotificationMessage
	SortKey *string
}

// SignalKind selects how a poll decides it may stop.
type SignalKind string

const (
	SignalCount  SignalKind = "COUNT"
	SignalMarker SignalKind = "MARKER"
)

func (k SignalKind) String() string { return string(k) }

// CompletionSignal describes when a poll is done: either once the last N
// messages have been read, or once any body contains Marker.
type CompletionSignal struct {
	Kind   SignalKind
	Count  int
	Marker string
}

func CountSignal(n int) CompletionSignal {
	return CompletionSignal{Kind: SignalCount, Count: n}
}

func MarkerSignal(marker string) CompletionSignal {
	return CompletionSignal{Kind: SignalMarker, Marker: marker}
}

func (s CompletionSignal) Validate() error {
	switch s.Kind {
	case SignalCount:
		if s.Count < 0 {
			return fmt.Errorf("%w: signal count must be >= 0 (got %d)", ErrValidation, s.Count)
		}
	case SignalMarker:
		if strings.TrimSpace(s.Marker) == "" {
			return fmt.Errorf("%w: signal marker is required", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: invalid signal kind %q", ErrValidation, s.Kind)
	}
	return nil
}

// Matches reports whether body carries the marker. Matching is an exact,
// case-sensitive substring test.
func (s CompletionSignal) Matches(body string) bool {
	if s.Kind != SignalMarker || s.Marker == "" {
		return false
	}
	return strings.Contains(body, s.Marker)
}

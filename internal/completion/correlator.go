package completion

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/stock-console/internal/domain"
)

const successMarker = "success"

// Line is one rendered result of a count-bounded poll.
type Line struct {
	MessageID string `json:"messageId"`
	Body      string `json:"message"`
	Success   bool   `json:"success"`
}

// ClassifyLine marks a message successful when its body mentions "success"
// in any letter case.
func ClassifyLine(msg domain.NotificationMessage) Line {
	return Line{
		MessageID: msg.ID,
		Body:      msg.Body,
		Success:   strings.Contains(strings.ToLower(msg.Body), successMarker),
	}
}

func CorrelateCount(messages []domain.NotificationMessage) []Line {
	lines := make([]Line, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, ClassifyLine(msg))
	}
	return lines
}

// SignalSummary renders the aggregate message of a signal-bounded poll.
func SignalSummary(subject string, elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	minutes := int(elapsed / time.Minute)
	seconds := (elapsed - time.Duration(minutes)*time.Minute).Seconds()
	return fmt.Sprintf("%s generated successfully in %d minutes and %.2f seconds.", subject, minutes, seconds)
}

package completion

import (
	"regexp"
	"sort"

	"github.com/kursadbilgin/stock-console/internal/domain"
)

var bodyTimestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)

// ExtractTimestamp returns the first "YYYY-MM-DD HH:MM:SS" literal in body.
func ExtractTimestamp(body string) (string, bool) {
	match := bodyTimestampPattern.FindString(body)
	if match == "" {
		return "", false
	}
	return match, true
}

// SortByTimestamp attaches body timestamps and orders messages ascending.
// Messages without a timestamp have a nil key and sort first, in read order.
func SortByTimestamp(messages []domain.NotificationMessage) []domain.TimestampedMessage {
	out := make([]domain.TimestampedMessage, 0, len(messages))
	for _, msg := range messages {
		tm := domain.TimestampedMessage{NotificationMessage: msg}
		if ts, ok := ExtractTimestamp(msg.Body); ok {
			tm.SortKey = &ts
		}
		out = append(out, tm)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].SortKey, out[j].SortKey
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			// Zero-padded literals order lexically.
			return *a < *b
		}
	})

	return out
}

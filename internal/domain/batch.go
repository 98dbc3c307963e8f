package domain

import (
	"fmt"
	"strings"
	"time"
)

// UploadFile is a single spreadsheet submitted by an operator.
type UploadFile struct {
	Name    string
	Content []byte
}

// UploadBatch is the ordered set of files submitted together plus the date
// used to partition them in storage. It is never persisted.
type UploadBatch struct {
	Files []UploadFile
	Date  time.Time
}

func (b UploadBatch) Validate() error {
	if len(b.Files) == 0 {
		return fmt.Errorf("%w: please upload at least one file first", ErrValidation)
	}
	if b.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	for i, f := range b.Files {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: file %d has no name", ErrValidation, i+1)
		}
	}
	return nil
}

// OperatorTimeZone is the wall clock operators work in. Batch dates and
// action log keys follow it.
const OperatorTimeZone = "Europe/London"

// OperatorLocation loads OperatorTimeZone, falling back to UTC when the zone
// database is unavailable.
func OperatorLocation() (*time.Location, error) {
	location, err := time.LoadLocation(OperatorTimeZone)
	if err != nil {
		return time.UTC, fmt.Errorf("load %s: %w", OperatorTimeZone, err)
	}
	return location, nil
}

// BatchDateAt is the operator's calendar date at now, in the same form
// ParseBatchDate returns.
func BatchDateAt(now time.Time, location *time.Location) time.Time {
	y, m, d := now.In(location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseBatchDate parses the operator-selected date in YYYY-MM-DD form.
func ParseBatchDate(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	return d, nil
}

// UploadOutcome records what happened to one file of a batch.
type UploadOutcome struct {
	FileName string
	Key      string
	Err      error
}

func (o UploadOutcome) Succeeded() bool { return o.Err == nil }

// Package session holds the per-operator dashboard state that travels with
// every request: who is logged in, which table is selected, and the filters
// applied to it.
package session

import (
	"context"
	"slices"
	"time"
)

type Session struct {
	ID            string              `json:"id"`
	User          string              `json:"user"`
	SelectedTable string              `json:"selectedTable,omitempty"`
	Filters       map[string][]string `json:"filters,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// SelectTable switches the selected table. Filters belong to one table, so
// they are cleared when the selection changes. It reports whether it did.
func (s *Session) SelectTable(name string) bool {
	if s.SelectedTable == name {
		return false
	}
	s.SelectedTable = name
	s.Filters = nil
	return true
}

// AddFilter appends values for column, skipping ones already present.
func (s *Session) AddFilter(column string, values ...string) {
	if s.Filters == nil {
		s.Filters = make(map[string][]string)
	}
	current := s.Filters[column]
	for _, v := range values {
		if !slices.Contains(current, v) {
			current = append(current, v)
		}
	}
	if len(current) > 0 {
		s.Filters[column] = current
	}
}

func (s *Session) ClearFilters() {
	s.Filters = nil
}

// FiltersCopy returns a copy safe to hand to other layers.
func (s *Session) FiltersCopy() map[string][]string {
	if len(s.Filters) == 0 {
		return nil
	}
	out := make(map[string][]string, len(s.Filters))
	for k, v := range s.Filters {
		out[k] = slices.Clone(v)
	}
	return out
}

// Store persists sessions. Get of an unknown or expired id returns
// domain.ErrNotFound.
type Store interface {
	Create(ctx context.Context, user string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

type contextKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/observability"
	"github.com/kursadbilgin/stock-console/internal/storage"
	"go.uber.org/zap"
)

const (
	// DefaultActionSource is the log folder used by the console itself.
	DefaultActionSource = "frontend"

	actionLogRoot     = "logs"
	actionKeyLayout   = "2006-01-02T15:04:05"
	actionStampLayout = "2006-01-02T15:04:05.000000"
)

// ActionEntry is one audited operator action.
type ActionEntry struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	User      string `json:"user"`
}

// ActionLogger appends operator actions to the project bucket, one object
// per second under logs/<source>/.
type ActionLogger struct {
	store    storage.ObjectStore
	bucket   string
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

func NewActionLogger(store storage.ObjectStore, bucket string, logger *zap.Logger) (*ActionLogger, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	location, err := domain.OperatorLocation()
	if err != nil {
		logger.Warn("action log time zone unavailable, using UTC", zap.Error(err))
		location = time.UTC
	}

	return &ActionLogger{
		store:    store,
		bucket:   bucket,
		location: location,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Log records action for user. Two actions logged within the same second
// share one object and are kept in order.
func (l *ActionLogger) Log(ctx context.Context, source, action, user string) error {
	if strings.TrimSpace(action) == "" {
		return fmt.Errorf("%w: action is required", domain.ErrValidation)
	}
	source = normalizeSource(source)

	now := l.now().In(l.location)
	key := fmt.Sprintf("%s/%s/%s.json", actionLogRoot, source, now.Format(actionKeyLayout))

	entries, err := l.readEntries(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	entries = append(entries, ActionEntry{
		Timestamp: now.Format(actionStampLayout),
		Action:    action,
		User:      user,
	})

	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode action log: %w", err)
	}
	body = append(body, '\n')

	if err := l.store.Put(ctx, l.bucket, key, body, storage.ContentTypeJSON); err != nil {
		return fmt.Errorf("failed to write action log: %w", err)
	}

	observability.WithContextLogger(l.logger, ctx).Info("action logged",
		zap.String("source", source),
		zap.String("action", action),
		zap.String("user", user),
		zap.String("key", key),
	)
	return nil
}

// List returns every entry logged under source, newest first.
func (l *ActionLogger) List(ctx context.Context, source string) ([]ActionEntry, error) {
	prefix := fmt.Sprintf("%s/%s/", actionLogRoot, normalizeSource(source))
	objects, err := l.store.List(ctx, l.bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list action logs: %w", err)
	}

	var all []ActionEntry
	for _, obj := range objects {
		if path.Ext(obj.Key) != ".json" {
			continue
		}
		entries, err := l.readEntries(ctx, obj.Key)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		all = append(all, entries...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp > all[j].Timestamp
	})
	return all, nil
}

func (l *ActionLogger) readEntries(ctx context.Context, key string) ([]ActionEntry, error) {
	data, err := l.store.Get(ctx, l.bucket, key)
	if err != nil {
		return nil, err
	}

	var entries []ActionEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode action log %s: %w", key, err)
	}
	return entries, nil
}

func normalizeSource(source string) string {
	source = strings.Trim(strings.TrimSpace(source), "/")
	if source == "" {
		return DefaultActionSource
	}
	return source
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/session"
	goredis "github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix  = "session:"
	defaultSessionTTL = 8 * time.Hour
)

var _ session.Store = (*SessionStore)(nil)

// SessionStore keeps sessions as JSON values with a sliding TTL.
type SessionStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionStore(client goredis.UniversalClient, ttl time.Duration) (*SessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	return &SessionStore{client: client, ttl: ttl, now: time.Now}, nil
}

func (s *SessionStore) Create(ctx context.Context, user string) (*session.Session, error) {
	if strings.TrimSpace(user) == "" {
		return nil, fmt.Errorf("%w: user is required", domain.ErrValidation)
	}

	sess := &session.Session{
		ID:        uuid.NewString(),
		User:      user,
		CreatedAt: s.now().UTC(),
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: session id is required", domain.ErrNotFound)
	}

	raw, err := s.client.GetEx(ctx, sessionKey(id), s.ttl).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: session %q", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %q: %w", id, err)
	}
	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	if sess == nil || strings.TrimSpace(sess.ID) == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrValidation)
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

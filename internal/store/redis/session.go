package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"bustrack/internal/store"
)

const sessionPrefix = "session:token:"

// SessionStore persists the bearer token the auth provider issued for an
// operator. The capture runner reads it from here because it shares no
// memory with whatever process performed the login.
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

var _ store.Sessions = (*SessionStore)(nil)

// Token returns the stored bearer token, or "" when none is stored.
func (s *SessionStore) Token(ctx context.Context, operatorID string) (string, error) {
	value, err := s.client.Get(ctx, sessionPrefix+operatorID).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("reading session token: %w", err)
	}
	return value, nil
}

// SetToken replaces the stored bearer token.
func (s *SessionStore) SetToken(ctx context.Context, operatorID string, token string) error {
	return s.client.Set(ctx, sessionPrefix+operatorID, token, 0).Err()
}

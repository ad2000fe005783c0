package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bustrack/internal/store"
)

const lastSentPrefix = "trip:lastsent:"

// MarkerStore persists the last-sent timestamp used to deduplicate
// redelivered fixes.
type MarkerStore struct {
	client *redis.Client
}

// NewMarkerStore creates a new MarkerStore.
func NewMarkerStore(client *redis.Client) *MarkerStore {
	return &MarkerStore{client: client}
}

var _ store.Markers = (*MarkerStore)(nil)

// LastSent returns the marker, or the zero time when nothing has been sent.
func (s *MarkerStore) LastSent(ctx context.Context, operatorID string) (time.Time, error) {
	value, err := s.client.Get(ctx, lastSentPrefix+operatorID).Result()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("reading last-sent marker: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("decoding last-sent marker: %w", err)
	}
	return ts, nil
}

// SetLastSent advances the marker.
func (s *MarkerStore) SetLastSent(ctx context.Context, operatorID string, ts time.Time) error {
	return s.client.Set(ctx, lastSentPrefix+operatorID, ts.UTC().Format(time.RFC3339Nano), 0).Err()
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"bustrack/internal/domain"
	"bustrack/internal/store"
)

const queuePrefix = "trip:queue:"

// QueueStore keeps the offline sample queue in a Redis list, oldest first.
type QueueStore struct {
	client *redis.Client
}

// NewQueueStore creates a new QueueStore.
func NewQueueStore(client *redis.Client) *QueueStore {
	return &QueueStore{client: client}
}

var _ store.Queue = (*QueueStore)(nil)

// Append pushes a sample onto the tail and trims the list to the newest max
// entries, so overflow silently drops the oldest samples.
func (s *QueueStore) Append(ctx context.Context, operatorID string, sample *domain.GpsSample, max int64) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("encoding queued sample: %w", err)
	}

	key := queuePrefix + operatorID
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -max, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// Entries returns every queued sample, oldest first. Entries that no longer
// decode are skipped rather than wedging the flush loop.
func (s *QueueStore) Entries(ctx context.Context, operatorID string) ([]*domain.GpsSample, error) {
	raw, err := s.client.LRange(ctx, queuePrefix+operatorID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading queue: %w", err)
	}

	samples := make([]*domain.GpsSample, 0, len(raw))
	for _, item := range raw {
		var sample domain.GpsSample
		if err := json.Unmarshal([]byte(item), &sample); err != nil {
			continue
		}
		samples = append(samples, &sample)
	}
	return samples, nil
}

// DropFirst removes the n oldest entries, leaving anything appended after
// the caller's snapshot in place.
func (s *QueueStore) DropFirst(ctx context.Context, operatorID string, n int64) error {
	if n <= 0 {
		return nil
	}
	return s.client.LTrim(ctx, queuePrefix+operatorID, n, -1).Err()
}

// Len returns the number of queued samples.
func (s *QueueStore) Len(ctx context.Context, operatorID string) (int64, error) {
	return s.client.LLen(ctx, queuePrefix+operatorID).Result()
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bustrack/internal/domain"
	"bustrack/internal/store"
)

const tripStatePrefix = "trip:state:"

// TripStateStore persists trip state records in Redis.
type TripStateStore struct {
	client *redis.Client
}

// NewTripStateStore creates a new TripStateStore.
func NewTripStateStore(client *redis.Client) *TripStateStore {
	return &TripStateStore{client: client}
}

var _ store.TripStates = (*TripStateStore)(nil)

// Get returns the stored trip state, or the idle state when none exists.
func (s *TripStateStore) Get(ctx context.Context, operatorID string) (*domain.TripState, error) {
	data, err := s.client.Get(ctx, tripStatePrefix+operatorID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.IdleTripState(), nil
		}
		return nil, fmt.Errorf("reading trip state: %w", err)
	}

	var state domain.TripState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding trip state: %w", err)
	}
	return &state, nil
}

// Put replaces the stored trip state. No TTL: the record must outlive any
// process restart.
func (s *TripStateStore) Put(ctx context.Context, operatorID string, state *domain.TripState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding trip state: %w", err)
	}
	return s.client.Set(ctx, tripStatePrefix+operatorID, data, 0).Err()
}

// SetLastLocation caches the most recent sample on the trip state record.
// Writes race between the capture runner and the ping responder; the
// timestamp comparison keeps the cache from moving backwards, and a write
// against an idle state is dropped since there is no trip to attach it to.
func (s *TripStateStore) SetLastLocation(ctx context.Context, operatorID string, sample *domain.GpsSample) error {
	state, err := s.Get(ctx, operatorID)
	if err != nil {
		return err
	}
	if state.Status == domain.TripStatusIdle {
		return nil
	}
	if !sampleNewer(state.LastLocation, sample) {
		return nil
	}

	state.LastLocation = sample
	return s.Put(ctx, operatorID, state)
}

// sampleNewer reports whether next should replace prev in the cache. An
// unparsable stored timestamp never blocks fresh data.
func sampleNewer(prev, next *domain.GpsSample) bool {
	if prev == nil {
		return true
	}
	prevAt, err := time.Parse(time.RFC3339, prev.RecordedAt)
	if err != nil {
		return true
	}
	nextAt, err := time.Parse(time.RFC3339, next.RecordedAt)
	if err != nil {
		return false
	}
	return nextAt.After(prevAt)
}

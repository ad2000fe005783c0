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

const (
	taskPrefix = "scheduler:task:"

	// taskTTL bounds how long a registration survives without a renewal.
	// The runner renews on every poll, so a lapsed key means the agent
	// process died and recovery has to take over.
	taskTTL = 90 * time.Second
)

// TaskStore persists capture task registrations with a TTL lease.
type TaskStore struct {
	client *redis.Client
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(client *redis.Client) *TaskStore {
	return &TaskStore{client: client}
}

var _ store.Tasks = (*TaskStore)(nil)

// Register stores the task registration and starts its lease.
func (s *TaskStore) Register(ctx context.Context, operatorID string, task *domain.CaptureTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshaling capture task: %w", err)
	}
	return s.client.Set(ctx, taskPrefix+operatorID, data, taskTTL).Err()
}

// Registered returns the current registration, or nil when none is live.
func (s *TaskStore) Registered(ctx context.Context, operatorID string) (*domain.CaptureTask, error) {
	data, err := s.client.Get(ctx, taskPrefix+operatorID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("reading capture task: %w", err)
	}

	var task domain.CaptureTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("unmarshaling capture task: %w", err)
	}
	return &task, nil
}

// Renew extends the registration lease. A missing key is not an error:
// the poll loop observes the lapse on its next Registered call.
func (s *TaskStore) Renew(ctx context.Context, operatorID string) error {
	return s.client.Expire(ctx, taskPrefix+operatorID, taskTTL).Err()
}

// Unregister removes the registration.
func (s *TaskStore) Unregister(ctx context.Context, operatorID string) error {
	return s.client.Del(ctx, taskPrefix+operatorID).Err()
}

package tests

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"bustrack/internal/domain"
	"bustrack/internal/location"
	"bustrack/internal/scheduler"
)

// ──────────────────────────────────────────────
// CAPTURE SCHEDULER
// ──────────────────────────────────────────────

type runnerFixture struct {
	tasks     *MockTaskStore
	locations *MockLocationService
	handler   *MockCaptureHandler
	runner    *scheduler.Runner
}

func newRunnerFixture() *runnerFixture {
	f := &runnerFixture{
		tasks:     NewMockTaskStore(),
		locations: NewMockLocationService(),
		handler:   NewMockCaptureHandler(),
	}
	f.locations.StreamCh = make(chan []location.Fix)
	f.runner = scheduler.NewRunner(f.tasks, f.locations, f.handler, testOperator, 5*time.Millisecond, testLogger())
	return f
}

func TestRunner_StartsStreamWhenRegistered(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture()
	f.tasks.SetTask(testOperator, &domain.CaptureTask{
		Name:     domain.CaptureTaskName,
		Interval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.runner.Run(ctx)

	waitUntil(t, "stream to start", func() bool {
		return atomic.LoadInt32(&f.locations.StreamCallCount) >= 1
	})

	f.locations.StreamCh <- []location.Fix{{Lat: 37.78, Lng: -122.41, RecordedAt: "2026-03-02T08:00:00Z"}}
	waitUntil(t, "fixes to reach the handler", func() bool {
		return f.handler.CountBatches() == 1
	})

	batch := f.handler.Batches()[0]
	if len(batch) != 1 || batch[0].RecordedAt != "2026-03-02T08:00:00Z" {
		t.Errorf("expected the delivered batch forwarded intact, got %v", batch)
	}
}

func TestRunner_StopsStreamWhenUnregistered(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture()
	f.tasks.SetTask(testOperator, &domain.CaptureTask{Name: domain.CaptureTaskName})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.runner.Run(ctx)

	waitUntil(t, "stream to start", func() bool {
		return atomic.LoadInt32(&f.locations.StreamCallCount) >= 1
	})

	if err := f.tasks.Unregister(context.Background(), testOperator); err != nil {
		t.Fatalf("unregistering task: %v", err)
	}

	// The next poll notices the lapsed registration and cancels the
	// stream context, which tells the location source to stop.
	waitUntil(t, "stream context to be canceled", func() bool {
		sctx := f.locations.StreamContext()
		return sctx != nil && sctx.Err() != nil
	})
}

func TestRunner_RenewsLeaseWhileStreaming(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture()
	f.tasks.SetTask(testOperator, &domain.CaptureTask{Name: domain.CaptureTaskName})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.runner.Run(ctx)

	// Every poll with a live stream renews the lease, so a healthy agent
	// never lets the registration expire.
	waitUntil(t, "lease renewals", func() bool {
		return atomic.LoadInt32(&f.tasks.RenewCallCount) >= 2
	})
}

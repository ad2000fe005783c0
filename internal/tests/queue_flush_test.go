package tests

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bustrack/internal/domain"
	"bustrack/internal/queue"
	"bustrack/internal/telemetry"
)

// ──────────────────────────────────────────────
// OFFLINE QUEUE
// ──────────────────────────────────────────────

type flushFixture struct {
	store  *MockQueueStore
	sender *MockSender
	queue  *queue.Service

	// sleeps records the backoff waits Flush asked for. Flush runs
	// single-threaded in these tests, so a plain slice is safe.
	sleeps []time.Duration
}

func newFlushFixture() *flushFixture {
	f := &flushFixture{
		store:  NewMockQueueStore(),
		sender: NewMockSender(),
	}
	f.queue = queue.NewService(f.store, f.sender, testOperator, testLogger())
	f.queue.Sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return f
}

func (f *flushFixture) seed(t *testing.T, samples ...*domain.GpsSample) {
	t.Helper()
	for _, s := range samples {
		if err := f.queue.Enqueue(context.Background(), s); err != nil {
			t.Fatalf("seeding queue: %v", err)
		}
	}
}

func queuedSample(recordedAt string) *domain.GpsSample {
	speed := 8.0
	return &domain.GpsSample{
		Lat:        37.78,
		Lng:        -122.41,
		Speed:      &speed,
		RecordedAt: recordedAt,
		TripID:     "trip-1",
	}
}

func TestEnqueue_CapsQueueDepth(t *testing.T) {
	t.Parallel()

	f := newFlushFixture()
	ctx := context.Background()
	for i := 0; i < 505; i++ {
		s := queuedSample(fmt.Sprintf("2026-03-02T08:%02d:%02dZ", i/60, i%60))
		if err := f.queue.Enqueue(ctx, s); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	queued := f.store.Samples(testOperator)
	if len(queued) != 500 {
		t.Fatalf("expected queue capped at 500, got %d", len(queued))
	}
	// The five oldest samples give way, never the newest.
	if queued[0].RecordedAt != "2026-03-02T08:00:05Z" {
		t.Errorf("expected oldest entries dropped, head is %s", queued[0].RecordedAt)
	}
	if queued[len(queued)-1].RecordedAt != "2026-03-02T08:08:24Z" {
		t.Errorf("expected newest entry kept, tail is %s", queued[len(queued)-1].RecordedAt)
	}
}

func TestFlush_EmptyQueueSendsNothing(t *testing.T) {
	t.Parallel()

	f := newFlushFixture()

	sent, err := f.queue.Flush(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sent != 0 {
		t.Errorf("expected 0 sent, got %d", sent)
	}
	if f.sender.CountAttempts() != 0 {
		t.Errorf("expected no delivery attempts, got %d", f.sender.CountAttempts())
	}
}

func TestFlush_DeliversOldestFirst(t *testing.T) {
	t.Parallel()

	f := newFlushFixture()
	f.seed(t,
		queuedSample("2026-03-02T08:00:00Z"),
		queuedSample("2026-03-02T08:00:12Z"),
		queuedSample("2026-03-02T08:00:24Z"),
	)

	sent, err := f.queue.Flush(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sent != 3 {
		t.Errorf("expected 3 sent, got %d", sent)
	}

	attempts := f.sender.Attempts()
	if len(attempts) != 3 {
		t.Fatalf("expected 3 delivery attempts, got %d", len(attempts))
	}
	want := []string{"2026-03-02T08:00:00Z", "2026-03-02T08:00:12Z", "2026-03-02T08:00:24Z"}
	for i, w := range want {
		if attempts[i].RecordedAt != w {
			t.Errorf("attempt %d: expected %s, got %s", i, w, attempts[i].RecordedAt)
		}
	}
	if f.store.CountSamples(testOperator) != 0 {
		t.Errorf("expected queue drained, got %d entries", f.store.CountSamples(testOperator))
	}
}

func TestFlush_RetriesFailedEntryInPlace(t *testing.T) {
	t.Parallel()

	f := newFlushFixture()
	f.seed(t,
		queuedSample("2026-03-02T08:00:00Z"),
		queuedSample("2026-03-02T08:00:12Z"),
		queuedSample("2026-03-02T08:00:24Z"),
	)
	failed := false
	f.sender.SendFunc = func(ctx context.Context, token string, sample *domain.GpsSample) error {
		if sample.RecordedAt == "2026-03-02T08:00:12Z" && !failed {
			failed = true
			return &telemetry.DeliveryError{StatusCode: 503, Body: "unavailable"}
		}
		return nil
	}

	sent, err := f.queue.Flush(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sent != 3 {
		t.Errorf("expected 3 sent, got %d", sent)
	}
	if f.sender.CountAttempts() != 4 {
		t.Errorf("expected 4 attempts including the retry, got %d", f.sender.CountAttempts())
	}
	if len(f.sleeps) != 1 || f.sleeps[0] != time.Second {
		t.Errorf("expected a single 1s backoff, got %v", f.sleeps)
	}
	if f.store.CountSamples(testOperator) != 0 {
		t.Errorf("expected queue drained, got %d entries", f.store.CountSamples(testOperator))
	}
}

func TestFlush_StopsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	f := newFlushFixture()
	f.seed(t,
		queuedSample("2026-03-02T08:00:00Z"),
		queuedSample("2026-03-02T08:00:12Z"),
		queuedSample("2026-03-02T08:00:24Z"),
	)
	f.sender.SendFunc = func(ctx context.Context, token string, sample *domain.GpsSample) error {
		return &telemetry.DeliveryError{StatusCode: 502, Body: "bad gateway"}
	}

	sent, err := f.queue.Flush(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("expected a quiet partial flush, got %v", err)
	}
	if sent != 0 {
		t.Errorf("expected 0 sent, got %d", sent)
	}
	// All five attempts land on the head entry before the pass gives up.
	if f.sender.CountAttempts() != 5 {
		t.Errorf("expected 5 attempts, got %d", f.sender.CountAttempts())
	}
	wantSleeps := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(f.sleeps) != len(wantSleeps) {
		t.Fatalf("expected %d backoffs, got %v", len(wantSleeps), f.sleeps)
	}
	for i, w := range wantSleeps {
		if f.sleeps[i] != w {
			t.Errorf("backoff %d: expected %v, got %v", i, w, f.sleeps[i])
		}
	}
	if f.store.CountSamples(testOperator) != 3 {
		t.Errorf("expected all entries kept for the next pass, got %d", f.store.CountSamples(testOperator))
	}
}

func TestFlush_PartialDeliveryKeepsUndelivered(t *testing.T) {
	t.Parallel()

	f := newFlushFixture()
	f.seed(t,
		queuedSample("2026-03-02T08:00:00Z"),
		queuedSample("2026-03-02T08:00:12Z"),
		queuedSample("2026-03-02T08:00:24Z"),
		queuedSample("2026-03-02T08:00:36Z"),
		queuedSample("2026-03-02T08:00:48Z"),
	)
	f.sender.SendFunc = func(ctx context.Context, token string, sample *domain.GpsSample) error {
		if sample.RecordedAt >= "2026-03-02T08:00:24Z" {
			return &telemetry.DeliveryError{StatusCode: 503, Body: "unavailable"}
		}
		return nil
	}

	sent, err := f.queue.Flush(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("expected a quiet partial flush, got %v", err)
	}
	if sent != 2 {
		t.Errorf("expected 2 sent, got %d", sent)
	}
	if f.sender.CountAttempts() != 7 {
		t.Errorf("expected 7 attempts, got %d", f.sender.CountAttempts())
	}

	remaining := f.store.Samples(testOperator)
	if len(remaining) != 3 {
		t.Fatalf("expected 3 entries left, got %d", len(remaining))
	}
	if remaining[0].RecordedAt != "2026-03-02T08:00:24Z" {
		t.Errorf("expected the failing entry still at the head, got %s", remaining[0].RecordedAt)
	}
}

func TestFlush_DropsRejectedSamples(t *testing.T) {
	t.Parallel()

	f := newFlushFixture()
	f.seed(t,
		queuedSample("2026-03-02T08:00:00Z"),
		queuedSample("2026-03-02T08:00:12Z"),
		queuedSample("2026-03-02T08:00:24Z"),
	)
	f.sender.SendFunc = func(ctx context.Context, token string, sample *domain.GpsSample) error {
		if sample.RecordedAt == "2026-03-02T08:00:12Z" {
			return &telemetry.ValidationError{Reason: "latitude out of range"}
		}
		return nil
	}

	sent, err := f.queue.Flush(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// The rejected entry does not count and is never retried.
	if sent != 2 {
		t.Errorf("expected 2 sent, got %d", sent)
	}
	if f.sender.CountAttempts() != 3 {
		t.Errorf("expected 3 attempts, got %d", f.sender.CountAttempts())
	}
	if len(f.sleeps) != 0 {
		t.Errorf("expected no backoff for a rejected sample, got %v", f.sleeps)
	}
	if f.store.CountSamples(testOperator) != 0 {
		t.Errorf("expected queue drained, got %d entries", f.store.CountSamples(testOperator))
	}
}

func TestFlush_CanceledDuringBackoffKeepsRemaining(t *testing.T) {
	t.Parallel()

	f := newFlushFixture()
	f.seed(t,
		queuedSample("2026-03-02T08:00:00Z"),
		queuedSample("2026-03-02T08:00:12Z"),
	)
	f.sender.SendFunc = func(ctx context.Context, token string, sample *domain.GpsSample) error {
		if sample.RecordedAt == "2026-03-02T08:00:12Z" {
			return &telemetry.DeliveryError{StatusCode: 503, Body: "unavailable"}
		}
		return nil
	}
	f.queue.Sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	sent, err := f.queue.Flush(context.Background(), "token-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sent != 1 {
		t.Errorf("expected 1 sent before cancellation, got %d", sent)
	}

	// Delivered entries are trimmed even on the way out, so the next
	// pass never re-sends them.
	remaining := f.store.Samples(testOperator)
	if len(remaining) != 1 {
		t.Fatalf("expected 1 entry left, got %d", len(remaining))
	}
	if remaining[0].RecordedAt != "2026-03-02T08:00:12Z" {
		t.Errorf("expected the undelivered entry kept, got %s", remaining[0].RecordedAt)
	}
}

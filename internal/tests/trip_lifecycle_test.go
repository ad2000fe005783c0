package tests

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"bustrack/internal/backend"
	"bustrack/internal/domain"
	"bustrack/internal/location"
	"bustrack/internal/queue"
	"bustrack/internal/trip"
)

const (
	testOperator = "op-1"
	testOrg      = "org-1"
)

// orchestratorFixture wires an orchestrator against mocks. The queue is the
// real service so flushes exercise the actual drain logic.
type orchestratorFixture struct {
	states      *MockTripStateStore
	tasks       *MockTaskStore
	sessions    *MockSessionStore
	records     *MockRecords
	locations   *MockLocationService
	listener    *MockListener
	broadcaster *MockBroadcaster
	notifier    *MockNotifier
	queueStore  *MockQueueStore
	sender      *MockSender
	queue       *queue.Service
}

func newOrchestratorFixture() *orchestratorFixture {
	f := &orchestratorFixture{
		states:      NewMockTripStateStore(),
		tasks:       NewMockTaskStore(),
		sessions:    NewMockSessionStore(),
		records:     NewMockRecords(),
		locations:   NewMockLocationService(),
		listener:    NewMockListener(),
		broadcaster: NewMockBroadcaster(),
		notifier:    NewMockNotifier(),
		queueStore:  NewMockQueueStore(),
		sender:      NewMockSender(),
	}
	f.queue = queue.NewService(f.queueStore, f.sender, testOperator, testLogger())
	f.queue.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return f
}

func (f *orchestratorFixture) orchestrator() *trip.Orchestrator {
	return trip.NewOrchestrator(trip.Deps{
		States:      f.states,
		Tasks:       f.tasks,
		Sessions:    f.sessions,
		Records:     f.records,
		Locations:   f.locations,
		Listener:    f.listener,
		Broadcaster: f.broadcaster,
		Notifier:    f.notifier,
		Queue:       f.queue,
		OperatorID:  testOperator,
		OrgID:       testOrg,
		Logger:      testLogger(),
	})
}

// activeState seeds an active trip with the given id.
func activeState(tripID string) *domain.TripState {
	startedAt := time.Now().UTC().Add(-10 * time.Minute)
	return &domain.TripState{
		TripID:    tripID,
		Status:    domain.TripStatusActive,
		StartedAt: &startedAt,
	}
}

// ──────────────────────────────────────────────
// STARTING A TRIP
// ──────────────────────────────────────────────

func TestStartTrip_ActivatesTracking(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture()
	orch := f.orchestrator()

	state, err := orch.StartTrip(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.Status != domain.TripStatusActive {
		t.Errorf("expected status %s, got %s", domain.TripStatusActive, state.Status)
	}
	if state.TripID == "" {
		t.Error("expected a trip id to be assigned")
	}
	if state.StartedAt == nil {
		t.Error("expected started_at to be set")
	}

	// The durable state, the remote record and the capture registration
	// must all exist before start returns.
	stored := f.states.State(testOperator)
	if stored == nil || stored.Status != domain.TripStatusActive {
		t.Fatal("expected active state to be persisted")
	}
	record := f.records.Record(state.TripID)
	if record == nil {
		t.Fatal("expected a remote trip record")
	}
	if !record.Active {
		t.Error("expected remote record to be active")
	}
	task := f.tasks.Task(testOperator)
	if task == nil {
		t.Fatal("expected capture task to be registered")
	}
	if task.Name != domain.CaptureTaskName {
		t.Errorf("expected task %s, got %s", domain.CaptureTaskName, task.Name)
	}

	if f.listener.StartCallCount != 1 {
		t.Errorf("expected ping listener started once, got %d", f.listener.StartCallCount)
	}
	started := f.broadcaster.StartedTrips()
	if len(started) != 1 || started[0] != state.TripID {
		t.Errorf("expected start broadcast for %s, got %v", state.TripID, started)
	}
	if f.notifier.TripStartedCount != 1 {
		t.Errorf("expected 1 start notification, got %d", f.notifier.TripStartedCount)
	}
}

func TestStartTrip_NoOpWhenAlreadyActive(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture()
	f.states.SetState(testOperator, activeState("trip-1"))
	orch := f.orchestrator()

	state, err := orch.StartTrip(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.TripID != "trip-1" {
		t.Errorf("expected existing trip-1, got %s", state.TripID)
	}
	if f.records.CreateCallCount != 0 {
		t.Errorf("expected no remote record created, got %d", f.records.CreateCallCount)
	}
	if f.tasks.RegisterCallCount != 0 {
		t.Errorf("expected no task registered, got %d", f.tasks.RegisterCallCount)
	}
}

func TestStartTrip_ConcurrentStartsCreateOneTrip(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture()
	orch := f.orchestrator()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = orch.StartTrip(context.Background())
		}()
	}
	wg.Wait()

	if f.records.CreateCallCount != 1 {
		t.Errorf("expected exactly 1 remote record, got %d", f.records.CreateCallCount)
	}
	if f.tasks.RegisterCallCount != 1 {
		t.Errorf("expected exactly 1 task registration, got %d", f.tasks.RegisterCallCount)
	}
	stored := f.states.State(testOperator)
	if stored == nil || stored.Status != domain.TripStatusActive {
		t.Fatal("expected an active trip after concurrent starts")
	}
}

func TestStartTrip_RemoteRecordFailure_ResetsIdle(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture()
	f.records.CreateError = ErrMockBackend
	orch := f.orchestrator()

	_, err := orch.StartTrip(context.Background())
	if err == nil {
		t.Fatal("expected start to fail")
	}

	stored := f.states.State(testOperator)
	if stored == nil || stored.Status != domain.TripStatusIdle {
		t.Fatal("expected state reset to idle")
	}
	if stored.ErrorMessage == "" {
		t.Error("expected the failure to be recorded on the state")
	}
	if f.tasks.RegisterCallCount != 0 {
		t.Errorf("expected no task registered after record failure, got %d", f.tasks.RegisterCallCount)
	}
}

func TestStartTrip_RegistrationFailure_ClosesRecordAndResetsIdle(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture()
	f.tasks.RegisterError = ErrMockStore
	orch := f.orchestrator()

	_, err := orch.StartTrip(context.Background())
	if err == nil {
		t.Fatal("expected start to fail")
	}

	// The record opened before registration failed; it must not stay
	// dangling active server-side.
	if f.records.CreateCallCount != 1 {
		t.Fatalf("expected record creation attempt, got %d", f.records.CreateCallCount)
	}
	if f.records.CloseCallCount != 1 {
		t.Errorf("expected record closed after failed registration, got %d", f.records.CloseCallCount)
	}
	stored := f.states.State(testOperator)
	if stored == nil || stored.Status != domain.TripStatusIdle {
		t.Fatal("expected state reset to idle")
	}
}

func TestStartTrip_LocationServicesDisabled(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture()
	f.locations.Enabled = false
	orch := f.orchestrator()

	_, err := orch.StartTrip(context.Background())
	if !errors.Is(err, location.ErrServicesDisabled) {
		t.Errorf("expected ErrServicesDisabled, got %v", err)
	}

	if f.states.PutCallCount != 0 {
		t.Errorf("expected state untouched, got %d writes", f.states.PutCallCount)
	}
	if f.records.CreateCallCount != 0 {
		t.Errorf("expected no remote record, got %d", f.records.CreateCallCount)
	}
}

func TestStartTrip_PermissionDenied(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture()
	f.locations.ForegroundError = location.ErrPermissionDenied
	orch := f.orchestrator()

	_, err := orch.StartTrip(context.Background())
	if !errors.Is(err, location.ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
	if f.states.PutCallCount != 0 {
		t.Errorf("expected state untouched, got %d writes", f.states.PutCallCount)
	}
}

func TestStartTrip_FlushesLeftoverSamples(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture()
	ctx := context.Background()
	_ = f.sessions.SetToken(ctx, testOperator, "token-1")
	_ = f.queue.Enqueue(ctx, &domain.GpsSample{Lat: 1, Lng: 2, RecordedAt: "2026-03-02T08:00:00Z"})
	_ = f.queue.Enqueue(ctx, &domain.GpsSample{Lat: 3, Lng: 4, RecordedAt: "2026-03-02T08:00:12Z"})
	orch := f.orchestrator()

	if _, err := orch.StartTrip(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The leftover flush runs off the start path.
	waitUntil(t, "leftover samples flushed", func() bool {
		return f.queueStore.CountSamples(testOperator) == 0
	})
	if f.sender.CountAttempts() != 2 {
		t.Errorf("expected 2 deliveries, got %d", f.sender.CountAttempts())
	}
}

// ──────────────────────────────────────────────
// STOPPING A TRIP
// ──────────────────────────────────────────────

func TestStopTrip_ReturnsToIdle(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture()
	ctx := context.Background()
	f.states.SetState(testOperator, activeState("trip-1"))
	f.tasks.SetTask(testOperator, &domain.CaptureTask{Name: domain.CaptureTaskName})
	f.records.AddRecord(&backend.TripRecord{
		TripID:     "trip-1",
		OperatorID: testOperator,
		Active:     true,
		StartedAt:  time.Now().UTC().Add(-10 * time.Minute),
	})
	_ = f.sessions.SetToken(ctx, testOperator, "token-1")
	_ = f.queue.Enqueue(ctx, &domain.GpsSample{Lat: 1, Lng: 2, RecordedAt: "2026-03-02T08:00:00Z"})
	orch := f.orchestrator()

	state, err := orch.StopTrip(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.Status != domain.TripStatusIdle {
		t.Errorf("expected status %s, got %s", domain.TripStatusIdle, state.Status)
	}
	stored := f.states.State(testOperator)
	if stored == nil || stored.Status != domain.TripStatusIdle {
		t.Fatal("expected idle state persisted")
	}
	if f.records.CloseCallCount != 1 {
		t.Errorf("expected remote record closed once, got %d", f.records.CloseCallCount)
	}
	record := f.records.Record("trip-1")
	if record == nil || record.Active {
		t.Error("expected remote record marked inactive")
	}
	if f.tasks.UnregisterCallCount != 1 {
		t.Errorf("expected capture task unregistered once, got %d", f.tasks.UnregisterCallCount)
	}
	if f.listener.StopCallCount != 1 {
		t.Errorf("expected ping listener stopped once, got %d", f.listener.StopCallCount)
	}

	// The final flush drains what capture queued during the trip.
	if f.queueStore.CountSamples(testOperator) != 0 {
		t.Errorf("expected queue drained, %d samples left", f.queueStore.CountSamples(testOperator))
	}
	if f.sender.CountAttempts() != 1 {
		t.Errorf("expected 1 delivery, got %d", f.sender.CountAttempts())
	}

	ended := f.broadcaster.EndedTrips()
	if len(ended) != 1 || ended[0] != "trip-1" {
		t.Errorf("expected end broadcast for trip-1, got %v", ended)
	}
	if f.notifier.TripEndedCount != 1 {
		t.Errorf("expected 1 end notification, got %d", f.notifier.TripEndedCount)
	}
}

func TestStopTrip_NoOpWhenIdle(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture()
	orch := f.orchestrator()

	state, err := orch.StopTrip(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.Status != domain.TripStatusIdle {
		t.Errorf("expected status %s, got %s", domain.TripStatusIdle, state.Status)
	}
	if f.records.CloseCallCount != 0 {
		t.Errorf("expected no record close, got %d", f.records.CloseCallCount)
	}
	if f.tasks.UnregisterCallCount != 0 {
		t.Errorf("expected no unregistration, got %d", f.tasks.UnregisterCallCount)
	}
	if f.listener.StopCallCount != 0 {
		t.Errorf("expected listener untouched, got %d stops", f.listener.StopCallCount)
	}
}

func TestStopTrip_AlwaysEndsIdleWhenTeardownFails(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture()
	ctx := context.Background()
	f.states.SetState(testOperator, activeState("trip-1"))
	f.records.CloseError = ErrMockBackend
	f.tasks.UnregisterError = ErrMockStore
	_ = f.sessions.SetToken(ctx, testOperator, "token-1")
	f.queueStore.EntriesError = ErrMockStore
	orch := f.orchestrator()

	state, err := orch.StopTrip(ctx)
	if err != nil {
		t.Fatalf("expected stop to succeed despite teardown failures, got %v", err)
	}

	// Being stuck outside idle is worse than losing any teardown step.
	if state.Status != domain.TripStatusIdle {
		t.Errorf("expected status %s, got %s", domain.TripStatusIdle, state.Status)
	}
	stored := f.states.State(testOperator)
	if stored == nil || stored.Status != domain.TripStatusIdle {
		t.Fatal("expected idle state persisted")
	}
}

// ──────────────────────────────────────────────
// HELPER FUNCTIONS
// ──────────────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

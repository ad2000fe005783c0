package tests

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bustrack/internal/backend"
	"bustrack/internal/domain"
	"bustrack/internal/location"
)

// ──────────────────────────────────────────────
// MOCK TRIP STATE STORE
// ──────────────────────────────────────────────

// MockTripStateStore is a mock implementation of store.TripStates.
type MockTripStateStore struct {
	mu     sync.RWMutex
	states map[string]*domain.TripState

	// Counters for verification
	PutCallCount             int32
	SetLastLocationCallCount int32

	// Error injection
	GetError             error
	PutError             error
	SetLastLocationError error
}

// NewMockTripStateStore creates a new mock trip state store.
func NewMockTripStateStore() *MockTripStateStore {
	return &MockTripStateStore{
		states: make(map[string]*domain.TripState),
	}
}

// SetState seeds the stored state for an operator.
func (m *MockTripStateStore) SetState(operatorID string, state *domain.TripState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[operatorID] = state
}

func (m *MockTripStateStore) Get(ctx context.Context, operatorID string) (*domain.TripState, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[operatorID]
	if !ok {
		return domain.IdleTripState(), nil
	}
	// Return a copy to avoid mutation issues.
	copy := *state
	return &copy, nil
}

func (m *MockTripStateStore) Put(ctx context.Context, operatorID string, state *domain.TripState) error {
	atomic.AddInt32(&m.PutCallCount, 1)
	if m.PutError != nil {
		return m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *state
	m.states[operatorID] = &copy
	return nil
}

func (m *MockTripStateStore) SetLastLocation(ctx context.Context, operatorID string, sample *domain.GpsSample) error {
	atomic.AddInt32(&m.SetLastLocationCallCount, 1)
	if m.SetLastLocationError != nil {
		return m.SetLastLocationError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[operatorID]
	if !ok || state.Status == domain.TripStatusIdle {
		return nil
	}
	// Same guard as the real store: never move the cache backwards.
	if state.LastLocation != nil {
		prev, perr := time.Parse(time.RFC3339, state.LastLocation.RecordedAt)
		next, nerr := time.Parse(time.RFC3339, sample.RecordedAt)
		if perr == nil && (nerr != nil || !next.After(prev)) {
			return nil
		}
	}
	state.LastLocation = sample
	return nil
}

// State returns the stored state for assertions.
func (m *MockTripStateStore) State(operatorID string) *domain.TripState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[operatorID]
}

// ──────────────────────────────────────────────
// MOCK QUEUE STORE
// ──────────────────────────────────────────────

// MockQueueStore is a mock implementation of store.Queue.
type MockQueueStore struct {
	mu     sync.RWMutex
	queues map[string][]*domain.GpsSample

	// Counters for verification
	AppendCallCount int32

	// Error injection
	AppendError  error
	EntriesError error
}

// NewMockQueueStore creates a new mock queue store.
func NewMockQueueStore() *MockQueueStore {
	return &MockQueueStore{
		queues: make(map[string][]*domain.GpsSample),
	}
}

func (m *MockQueueStore) Append(ctx context.Context, operatorID string, sample *domain.GpsSample, max int64) error {
	atomic.AddInt32(&m.AppendCallCount, 1)
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	q := append(m.queues[operatorID], sample)
	if int64(len(q)) > max {
		q = q[int64(len(q))-max:]
	}
	m.queues[operatorID] = q
	return nil
}

func (m *MockQueueStore) Entries(ctx context.Context, operatorID string) ([]*domain.GpsSample, error) {
	if m.EntriesError != nil {
		return nil, m.EntriesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := m.queues[operatorID]
	result := make([]*domain.GpsSample, len(q))
	copy(result, q)
	return result, nil
}

func (m *MockQueueStore) DropFirst(ctx context.Context, operatorID string, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[operatorID]
	if n >= int64(len(q)) {
		m.queues[operatorID] = nil
		return nil
	}
	m.queues[operatorID] = q[n:]
	return nil
}

func (m *MockQueueStore) Len(ctx context.Context, operatorID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.queues[operatorID])), nil
}

// Samples returns the queued samples for assertions.
func (m *MockQueueStore) Samples(operatorID string) []*domain.GpsSample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := m.queues[operatorID]
	result := make([]*domain.GpsSample, len(q))
	copy(result, q)
	return result
}

// CountSamples returns the number of queued samples.
func (m *MockQueueStore) CountSamples(operatorID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queues[operatorID])
}

// ──────────────────────────────────────────────
// MOCK MARKER STORE
// ──────────────────────────────────────────────

// MockMarkerStore is a mock implementation of store.Markers.
type MockMarkerStore struct {
	mu      sync.RWMutex
	markers map[string]time.Time

	// Counters for verification
	SetLastSentCallCount int32

	// Error injection
	LastSentError    error
	SetLastSentError error
}

// NewMockMarkerStore creates a new mock marker store.
func NewMockMarkerStore() *MockMarkerStore {
	return &MockMarkerStore{
		markers: make(map[string]time.Time),
	}
}

func (m *MockMarkerStore) LastSent(ctx context.Context, operatorID string) (time.Time, error) {
	if m.LastSentError != nil {
		return time.Time{}, m.LastSentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.markers[operatorID], nil
}

func (m *MockMarkerStore) SetLastSent(ctx context.Context, operatorID string, ts time.Time) error {
	atomic.AddInt32(&m.SetLastSentCallCount, 1)
	if m.SetLastSentError != nil {
		return m.SetLastSentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[operatorID] = ts
	return nil
}

// Marker returns the stored marker for assertions.
func (m *MockMarkerStore) Marker(operatorID string) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.markers[operatorID]
}

// ──────────────────────────────────────────────
// MOCK SESSION STORE
// ──────────────────────────────────────────────

// MockSessionStore is a mock implementation of store.Sessions.
type MockSessionStore struct {
	mu     sync.RWMutex
	tokens map[string]string

	// Error injection
	TokenError error
}

// NewMockSessionStore creates a new mock session store.
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		tokens: make(map[string]string),
	}
}

func (m *MockSessionStore) Token(ctx context.Context, operatorID string) (string, error) {
	if m.TokenError != nil {
		return "", m.TokenError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens[operatorID], nil
}

func (m *MockSessionStore) SetToken(ctx context.Context, operatorID string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[operatorID] = token
	return nil
}

// ──────────────────────────────────────────────
// MOCK TASK STORE
// ──────────────────────────────────────────────

// MockTaskStore is a mock implementation of store.Tasks.
type MockTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*domain.CaptureTask

	// Counters for verification
	RegisterCallCount   int32
	RenewCallCount      int32
	UnregisterCallCount int32

	// Error injection
	RegisterError   error
	RegisteredError error
	UnregisterError error
}

// NewMockTaskStore creates a new mock task store.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{
		tasks: make(map[string]*domain.CaptureTask),
	}
}

// SetTask seeds a registration for an operator.
func (m *MockTaskStore) SetTask(operatorID string, task *domain.CaptureTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[operatorID] = task
}

func (m *MockTaskStore) Register(ctx context.Context, operatorID string, task *domain.CaptureTask) error {
	atomic.AddInt32(&m.RegisterCallCount, 1)
	if m.RegisterError != nil {
		return m.RegisterError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *task
	m.tasks[operatorID] = &copy
	return nil
}

func (m *MockTaskStore) Registered(ctx context.Context, operatorID string) (*domain.CaptureTask, error) {
	if m.RegisteredError != nil {
		return nil, m.RegisteredError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[operatorID]
	if !ok {
		return nil, nil
	}
	copy := *task
	return &copy, nil
}

func (m *MockTaskStore) Renew(ctx context.Context, operatorID string) error {
	atomic.AddInt32(&m.RenewCallCount, 1)
	return nil
}

func (m *MockTaskStore) Unregister(ctx context.Context, operatorID string) error {
	atomic.AddInt32(&m.UnregisterCallCount, 1)
	if m.UnregisterError != nil {
		return m.UnregisterError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, operatorID)
	return nil
}

// Task returns the stored registration for assertions.
func (m *MockTaskStore) Task(operatorID string) *domain.CaptureTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tasks[operatorID]
}

// ──────────────────────────────────────────────
// MOCK TRIP RECORDS
// ──────────────────────────────────────────────

// MockRecords is a mock implementation of backend.Records.
type MockRecords struct {
	mu      sync.RWMutex
	records map[string]*backend.TripRecord

	// Counters for verification
	CreateCallCount int32
	CloseCallCount  int32
	FetchCallCount  int32

	// Error injection
	CreateError error
	CloseError  error
	FetchError  error
}

// NewMockRecords creates a new mock trip records API.
func NewMockRecords() *MockRecords {
	return &MockRecords{
		records: make(map[string]*backend.TripRecord),
	}
}

// AddRecord seeds a trip record.
func (m *MockRecords) AddRecord(record *backend.TripRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.TripID] = record
}

func (m *MockRecords) Create(ctx context.Context, record *backend.TripRecord) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *record
	m.records[record.TripID] = &copy
	return nil
}

func (m *MockRecords) Close(ctx context.Context, tripID string) error {
	atomic.AddInt32(&m.CloseCallCount, 1)
	if m.CloseError != nil {
		return m.CloseError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[tripID]
	if !ok {
		return backend.ErrNotFound
	}
	now := time.Now().UTC()
	record.Active = false
	record.EndedAt = &now
	return nil
}

func (m *MockRecords) Fetch(ctx context.Context, tripID string) (*backend.TripRecord, error) {
	atomic.AddInt32(&m.FetchCallCount, 1)
	if m.FetchError != nil {
		return nil, m.FetchError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[tripID]
	if !ok {
		return nil, backend.ErrNotFound
	}
	copy := *record
	return &copy, nil
}

// Record returns the stored record for assertions.
func (m *MockRecords) Record(tripID string) *backend.TripRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[tripID]
}

// ──────────────────────────────────────────────
// MOCK SENDER
// ──────────────────────────────────────────────

// MockSender is a mock telemetry sender. Every attempt is recorded,
// including failed ones.
type MockSender struct {
	mu       sync.Mutex
	attempts []*domain.GpsSample

	// SendFunc overrides per-call behavior. When nil every send succeeds.
	SendFunc func(ctx context.Context, token string, sample *domain.GpsSample) error

	// LastToken records the bearer token of the most recent send.
	LastToken string
}

// NewMockSender creates a new mock sender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) Send(ctx context.Context, token string, sample *domain.GpsSample) error {
	m.mu.Lock()
	m.attempts = append(m.attempts, sample)
	m.LastToken = token
	fn := m.SendFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, token, sample)
	}
	return nil
}

// Attempts returns every sample handed to Send, in order.
func (m *MockSender) Attempts() []*domain.GpsSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.GpsSample, len(m.attempts))
	copy(result, m.attempts)
	return result
}

// CountAttempts returns the number of Send calls.
func (m *MockSender) CountAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// ──────────────────────────────────────────────
// MOCK LOCATION SERVICE
// ──────────────────────────────────────────────

// MockLocationService is a mock implementation of location.Service.
type MockLocationService struct {
	mu sync.Mutex

	// Enabled reports positioning availability. Defaults to true.
	Enabled bool

	// CurrentFix is returned by Current. When nil a zero fix stamped with
	// the current time is returned.
	CurrentFix *location.Fix

	// CurrentGate, when set, blocks Current until the channel is closed.
	CurrentGate chan struct{}

	// StreamCh is handed out by Stream. When nil a fresh channel is made.
	StreamCh chan []location.Fix

	// Counters for verification
	CurrentCallCount int32
	StreamCallCount  int32

	// Error injection
	IsEnabledError  error
	ForegroundError error
	BackgroundError error
	CurrentError    error
	StreamError     error

	streamCtx context.Context
}

// NewMockLocationService creates a new mock location service with
// positioning enabled.
func NewMockLocationService() *MockLocationService {
	return &MockLocationService{Enabled: true}
}

func (m *MockLocationService) IsEnabled(ctx context.Context) (bool, error) {
	if m.IsEnabledError != nil {
		return false, m.IsEnabledError
	}
	return m.Enabled, nil
}

func (m *MockLocationService) RequestForeground(ctx context.Context) error {
	return m.ForegroundError
}

func (m *MockLocationService) RequestBackground(ctx context.Context) error {
	return m.BackgroundError
}

func (m *MockLocationService) Current(ctx context.Context) (*location.Fix, error) {
	atomic.AddInt32(&m.CurrentCallCount, 1)
	m.mu.Lock()
	gate := m.CurrentGate
	fix := m.CurrentFix
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.CurrentError != nil {
		return nil, m.CurrentError
	}
	if fix == nil {
		return &location.Fix{RecordedAt: time.Now().UTC().Format(time.RFC3339)}, nil
	}
	copy := *fix
	return &copy, nil
}

func (m *MockLocationService) Stream(ctx context.Context, interval time.Duration) (<-chan []location.Fix, error) {
	atomic.AddInt32(&m.StreamCallCount, 1)
	if m.StreamError != nil {
		return nil, m.StreamError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StreamCh == nil {
		m.StreamCh = make(chan []location.Fix)
	}
	m.streamCtx = ctx
	return m.StreamCh, nil
}

// StreamContext returns the context of the most recent Stream call.
func (m *MockLocationService) StreamContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCtx
}

// ──────────────────────────────────────────────
// MOCK PING LISTENER
// ──────────────────────────────────────────────

// MockListener is a mock ping listener.
type MockListener struct {
	// Counters for verification
	StartCallCount int32
	StopCallCount  int32

	// Error injection
	StartError error
}

// NewMockListener creates a new mock ping listener.
func NewMockListener() *MockListener {
	return &MockListener{}
}

func (m *MockListener) Start(ctx context.Context) error {
	atomic.AddInt32(&m.StartCallCount, 1)
	return m.StartError
}

func (m *MockListener) Stop() {
	atomic.AddInt32(&m.StopCallCount, 1)
}

// ──────────────────────────────────────────────
// MOCK BROADCASTER
// ──────────────────────────────────────────────

// MockBroadcaster records lifecycle broadcasts.
type MockBroadcaster struct {
	mu      sync.Mutex
	started []string
	ended   []string
}

// NewMockBroadcaster creates a new mock broadcaster.
func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (m *MockBroadcaster) TripStarted(ctx context.Context, orgID, operatorID, tripID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, tripID)
	return nil
}

func (m *MockBroadcaster) TripEnded(ctx context.Context, orgID, operatorID, tripID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = append(m.ended, tripID)
	return nil
}

// StartedTrips returns the broadcast started trip ids.
func (m *MockBroadcaster) StartedTrips() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.started))
	copy(result, m.started)
	return result
}

// EndedTrips returns the broadcast ended trip ids.
func (m *MockBroadcaster) EndedTrips() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.ended))
	copy(result, m.ended)
	return result
}

// ──────────────────────────────────────────────
// MOCK NOTIFIER
// ──────────────────────────────────────────────

// MockNotifier counts notification fan-outs.
type MockNotifier struct {
	TripStartedCount     int32
	TripEndedCount       int32
	RecoveryPendingCount int32
}

// NewMockNotifier creates a new mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) NotifyTripStarted(ctx context.Context, operatorID, tripID string) error {
	atomic.AddInt32(&m.TripStartedCount, 1)
	return nil
}

func (m *MockNotifier) NotifyTripEnded(ctx context.Context, operatorID, tripID string) error {
	atomic.AddInt32(&m.TripEndedCount, 1)
	return nil
}

func (m *MockNotifier) NotifyRecoveryPending(ctx context.Context, operatorID, tripID string) error {
	atomic.AddInt32(&m.RecoveryPendingCount, 1)
	return nil
}

// ──────────────────────────────────────────────
// MOCK CAPTURE HANDLER
// ──────────────────────────────────────────────

// MockCaptureHandler records scheduler fix deliveries.
type MockCaptureHandler struct {
	mu      sync.Mutex
	batches [][]location.Fix
}

// NewMockCaptureHandler creates a new mock capture handler.
func NewMockCaptureHandler() *MockCaptureHandler {
	return &MockCaptureHandler{}
}

func (m *MockCaptureHandler) HandleFixes(ctx context.Context, fixes []location.Fix) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, fixes)
}

// Batches returns the delivered fix batches.
func (m *MockCaptureHandler) Batches() [][]location.Fix {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]location.Fix, len(m.batches))
	copy(result, m.batches)
	return result
}

// CountBatches returns the number of deliveries.
func (m *MockCaptureHandler) CountBatches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

// ──────────────────────────────────────────────
// HELPER ERRORS
// ──────────────────────────────────────────────

var (
	ErrMockStore   = errors.New("mock: store unavailable")
	ErrMockBackend = errors.New("mock: backend unavailable")
)

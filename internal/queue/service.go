// Package queue implements the store-and-forward buffer for GPS samples
// that could not be delivered. Samples wait in a durable list and are
// drained oldest-first by explicit flush calls; nothing flushes
// automatically on enqueue, so a dead endpoint never triggers a retry
// storm.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bustrack/internal/domain"
	"bustrack/internal/observability"
	"bustrack/internal/store"
	"bustrack/internal/telemetry"
)

const (
	// maxQueueEntries bounds the durable queue. Beyond it the oldest
	// samples are dropped first.
	maxQueueEntries = 500

	// maxConsecutiveFailures stops a flush pass once this many sends in
	// a row have failed.
	maxConsecutiveFailures = 5

	// backoffBase is the wait after the first failure; it doubles per
	// consecutive failure.
	backoffBase = time.Second
)

// Sender delivers a single sample. *telemetry.Sender satisfies it.
type Sender interface {
	Send(ctx context.Context, token string, sample *domain.GpsSample) error
}

// Service owns one operator's offline queue.
type Service struct {
	entries    store.Queue
	sender     Sender
	operatorID string
	logger     *slog.Logger

	// Sleep waits between delivery retries. Tests replace it to avoid
	// real backoff delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates a queue service for the given operator.
func NewService(entries store.Queue, sender Sender, operatorID string, logger *slog.Logger) *Service {
	return &Service{
		entries:    entries,
		sender:     sender,
		operatorID: operatorID,
		logger:     logger,
		Sleep:      sleepContext,
	}
}

// Enqueue appends a sample to the durable queue, dropping the oldest
// entries once the cap is reached.
func (s *Service) Enqueue(ctx context.Context, sample *domain.GpsSample) error {
	if err := s.entries.Append(ctx, s.operatorID, sample, maxQueueEntries); err != nil {
		return fmt.Errorf("enqueuing gps sample: %w", err)
	}
	observability.SamplesEnqueued.Inc()
	return nil
}

// Depth returns the number of queued samples.
func (s *Service) Depth(ctx context.Context) (int64, error) {
	return s.entries.Len(ctx, s.operatorID)
}

// Flush drains the queue oldest-first, strictly sequentially. A failed
// delivery is retried in place after an exponential backoff (1s, 2s, 4s,
// 8s); after five consecutive failures the pass gives up, leaving the
// failing entry and everything behind it queued in order. Samples the
// endpoint can never accept are dropped rather than retried. Returns how
// many samples were delivered.
func (s *Service) Flush(ctx context.Context, token string) (int, error) {
	samples, err := s.entries.Entries(ctx, s.operatorID)
	if err != nil {
		return 0, fmt.Errorf("loading queued samples: %w", err)
	}
	if len(samples) == 0 {
		return 0, nil
	}

	sent := 0
	failures := 0
	i := 0
	for i < len(samples) {
		err := s.sender.Send(ctx, token, samples[i])
		if err == nil {
			sent++
			failures = 0
			i++
			observability.SamplesSent.Inc()
			continue
		}

		if !telemetry.Retryable(err) {
			s.logger.Warn("dropping queued sample the endpoint rejected",
				"operator_id", s.operatorID, "error", err)
			observability.SamplesDropped.Inc()
			i++
			continue
		}

		failures++
		if failures >= maxConsecutiveFailures {
			s.trimDelivered(ctx, i)
			observability.QueueFlushes.WithLabelValues("partial").Inc()
			s.logger.Warn("flush stopped after consecutive delivery failures",
				"operator_id", s.operatorID, "sent", sent, "remaining", len(samples)-i, "error", err)
			return sent, nil
		}

		if serr := s.Sleep(ctx, backoffBase<<(failures-1)); serr != nil {
			s.trimDelivered(context.WithoutCancel(ctx), i)
			return sent, serr
		}
	}

	if err := s.entries.DropFirst(ctx, s.operatorID, int64(len(samples))); err != nil {
		return sent, fmt.Errorf("clearing flushed samples: %w", err)
	}
	observability.QueueFlushes.WithLabelValues("complete").Inc()
	return sent, nil
}

// trimDelivered removes the first n samples, which this pass already
// delivered or dropped. Entries enqueued concurrently sit after the
// snapshot and survive.
func (s *Service) trimDelivered(ctx context.Context, n int) {
	if err := s.entries.DropFirst(ctx, s.operatorID, int64(n)); err != nil {
		s.logger.Error("trimming delivered samples", "operator_id", s.operatorID, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

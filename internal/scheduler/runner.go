// Package scheduler stands in for the OS background-task scheduler. A
// runner polls the durable task registration and keeps a fix stream
// feeding the capture handler while the registration is live. Because the
// registration is a TTL lease renewed by the runner, a crashed agent
// leaves behind a lapsed lease instead of a live one, which is how
// recovery detects an interrupted trip.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"bustrack/internal/location"
	"bustrack/internal/store"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultCaptureInterval = 12 * time.Second
)

// Handler consumes scheduler fix deliveries. *capture.Handler satisfies it.
type Handler interface {
	HandleFixes(ctx context.Context, fixes []location.Fix)
}

// Runner drives the capture loop for one operator.
type Runner struct {
	tasks      store.Tasks
	source     location.Service
	handler    Handler
	operatorID string
	poll       time.Duration
	logger     *slog.Logger
}

// NewRunner creates a runner polling at the given interval.
func NewRunner(
	tasks store.Tasks,
	source location.Service,
	handler Handler,
	operatorID string,
	poll time.Duration,
	logger *slog.Logger,
) *Runner {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Runner{
		tasks:      tasks,
		source:     source,
		handler:    handler,
		operatorID: operatorID,
		poll:       poll,
		logger:     logger,
	}
}

// Run polls the task registration until ctx is canceled, starting the fix
// stream when a registration appears and stopping it when it goes away.
// While streaming, each poll renews the registration lease.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	var stopStream context.CancelFunc
	defer func() {
		if stopStream != nil {
			stopStream()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		task, err := r.tasks.Registered(ctx, r.operatorID)
		if err != nil {
			r.logger.Error("polling capture task", "operator_id", r.operatorID, "error", err)
			continue
		}

		if task == nil {
			if stopStream != nil {
				stopStream()
				stopStream = nil
				r.logger.Info("capture stream stopped", "operator_id", r.operatorID)
			}
			continue
		}

		if stopStream != nil {
			if err := r.tasks.Renew(ctx, r.operatorID); err != nil {
				r.logger.Warn("renewing capture task lease", "operator_id", r.operatorID, "error", err)
			}
			continue
		}

		interval := task.Interval
		if interval <= 0 {
			interval = defaultCaptureInterval
		}

		streamCtx, cancel := context.WithCancel(ctx)
		fixes, err := r.source.Stream(streamCtx, interval)
		if err != nil {
			cancel()
			r.logger.Error("starting fix stream", "operator_id", r.operatorID, "error", err)
			continue
		}
		stopStream = cancel
		r.logger.Info("capture stream started", "operator_id", r.operatorID, "interval", interval)

		go func() {
			for batch := range fixes {
				r.handler.HandleFixes(streamCtx, batch)
			}
		}()
	}
}

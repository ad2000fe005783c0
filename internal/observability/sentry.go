package observability

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"bustrack/internal/config"
)

// InitSentry initializes Sentry error tracking. With an empty DSN it logs
// a warning and leaves the client disabled, so local runs need no setup.
func InitSentry(cfg config.SentryConfig, logger *slog.Logger) error {
	if cfg.DSN == "" {
		if logger != nil {
			logger.Warn("Sentry DSN not configured - error tracking disabled")
		}
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		if logger != nil {
			logger.Error("Failed to initialize Sentry", "error", err)
		}
		return fmt.Errorf("sentry init: %w", err)
	}

	if logger != nil {
		logger.Info("Sentry initialized", "environment", cfg.Environment)
	}
	return nil
}

// CaptureError captures an error in Sentry with additional context.
func CaptureError(err error, context map[string]any, logger *slog.Logger) {
	if err == nil {
		return
	}

	if context != nil {
		sentry.ConfigureScope(func(scope *sentry.Scope) {
			for key, value := range context {
				scope.SetContext(key, sentry.Context(map[string]interface{}{
					"value": value,
				}))
			}
		})
	}

	sentry.CaptureException(err)

	if logger != nil {
		logger.Debug("Exception captured in Sentry", "error", err.Error())
	}
}

// FlushSentry waits for buffered events to be sent. Call it before the
// process exits.
func FlushSentry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

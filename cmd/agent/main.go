package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"bustrack/internal/app"
	"bustrack/internal/backend"
	"bustrack/internal/capture"
	"bustrack/internal/config"
	"bustrack/internal/events"
	"bustrack/internal/handler"
	"bustrack/internal/location"
	"bustrack/internal/observability"
	"bustrack/internal/queue"
	"bustrack/internal/scheduler"
	"bustrack/internal/store"
	storeredis "bustrack/internal/store/redis"
	"bustrack/internal/telemetry"
	"bustrack/internal/trip"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	logger := observability.NewLogger()

	if err := observability.InitSentry(cfg.Sentry, logger); err != nil {
		logger.Error("failed to initialize Sentry", "error", err)
	}
	defer observability.FlushSentry(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before Redis so we can instrument it).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Error("failed to initialize New Relic", "error", err)
		} else {
			logger.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	// Load the simulated GPS route.
	route, err := location.LoadRoute(cfg.Location.RouteFile)
	if err != nil {
		logger.Error("failed to load route", "file", cfg.Location.RouteFile, "error", err)
		os.Exit(1)
	}
	locations := location.NewSimulator(route)
	logger.Info("Route loaded", "route", route.Name, "points", len(route.Points))

	// Wire dependencies.
	ag := wireAgent(redisClient, locations, nrApp, cfg, logger)

	// Seed the session token when one is provided up front.
	if cfg.Agent.SessionToken != "" {
		if err := ag.sessions.SetToken(ctx, cfg.Agent.OperatorID, cfg.Agent.SessionToken); err != nil {
			logger.Warn("seeding session token", "error", err)
		}
	}

	// Resolve any trip interrupted by a crash before accepting commands.
	if err := ag.orchestrator.Recover(ctx); err != nil {
		logger.Error("trip recovery failed", "error", err)
	}

	runCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	go ag.runner.Run(runCtx)
	go runFlushLoop(runCtx, ag, cfg, logger)

	if cfg.Metrics.Enabled {
		go observability.StartMetricsServer(cfg.Metrics.Port)
	}

	// Start server in goroutine.
	go func() {
		logger.Info("Starting agent API",
			"port", cfg.Server.Port, "operator_id", cfg.Agent.OperatorID)
		if err := ag.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down agent...")

	stopBackground()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := ag.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("Agent exited")
}

// agent bundles the long-lived pieces main has to reach after wiring.
type agent struct {
	server       *http.Server
	orchestrator *trip.Orchestrator
	runner       *scheduler.Runner
	queue        *queue.Service
	sessions     store.Sessions
}

// wireAgent wires all dependencies and returns the assembled agent.
func wireAgent(redisClient *redis.Client, locations location.Service, nrApp *newrelic.Application, cfg *config.Config, logger *slog.Logger) *agent {
	// Initialize Redis stores.
	states := storeredis.NewTripStateStore(redisClient)
	queueStore := storeredis.NewQueueStore(redisClient)
	markers := storeredis.NewMarkerStore(redisClient)
	sessions := storeredis.NewSessionStore(redisClient)
	tasks := storeredis.NewTaskStore(redisClient)

	// Initialize services.
	sender := telemetry.NewSender(cfg.Telemetry)
	queueService := queue.NewService(queueStore, sender, cfg.Agent.OperatorID, logger)
	captureHandler := capture.NewHandler(states, markers, sessions, sender, queueService, cfg.Agent.OperatorID, logger)
	responder := events.NewResponder(states, sessions, locations, sender, cfg.Agent.OperatorID, logger)
	listener := events.NewListener(redisClient, responder, cfg.Agent.OperatorID, logger)
	publisher := events.NewPublisher(redisClient)
	notifier := events.NewNotificationService()
	records := backend.NewClient(cfg.Backend)

	orchestrator := trip.NewOrchestrator(trip.Deps{
		States:      states,
		Tasks:       tasks,
		Sessions:    sessions,
		Records:     records,
		Locations:   locations,
		Listener:    listener,
		Broadcaster: publisher,
		Notifier:    notifier,
		Queue:       queueService,
		OperatorID:  cfg.Agent.OperatorID,
		OrgID:       cfg.Agent.OrgID,
		Interval:    cfg.Location.Interval,
		Logger:      logger,
	})

	runner := scheduler.NewRunner(tasks, locations, captureHandler, cfg.Agent.OperatorID, cfg.Agent.TaskPollInterval, logger)

	// Initialize handlers.
	tripHandler := handler.NewTripHandler(orchestrator)
	sessionHandler := handler.NewSessionHandler(sessions, cfg.Agent.OperatorID)
	queueHandler := handler.NewQueueHandler(queueService, sessions, cfg.Agent.OperatorID)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		TripHandler:    tripHandler,
		SessionHandler: sessionHandler,
		QueueHandler:   queueHandler,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
	})

	return &agent{
		server: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		orchestrator: orchestrator,
		runner:       runner,
		queue:        queueService,
		sessions:     sessions,
	}
}

// runFlushLoop periodically drains the offline queue while a session token
// is stored. Enqueueing never flushes on its own; this loop, the trip
// lifecycle and the explicit flush command are the only drains.
func runFlushLoop(ctx context.Context, ag *agent, cfg *config.Config, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.Agent.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		token, err := ag.sessions.Token(ctx, cfg.Agent.OperatorID)
		if err != nil {
			logger.Warn("loading session token for flush", "error", err)
			continue
		}
		if token == "" {
			continue
		}

		sent, err := ag.queue.Flush(ctx, token)
		if err != nil {
			logger.Warn("periodic flush failed", "error", err)
			continue
		}
		if sent > 0 {
			logger.Info("periodic flush delivered samples", "sent", sent)
		}
	}
}

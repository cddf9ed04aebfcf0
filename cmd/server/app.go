package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/batchflow/internal/config"
	"github.com/phrazzld/batchflow/internal/events"
	"github.com/phrazzld/batchflow/internal/platform/postgres"
	"github.com/phrazzld/batchflow/internal/service"
	"github.com/phrazzld/batchflow/internal/task"
	"github.com/phrazzld/batchflow/internal/webhook"
)

// application holds the wired dependencies of the server process.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	bus            *events.InMemoryBus
	batchService   *service.BatchService
	webhookService *webhook.Service
	registry       *task.Registry
	dispatcher     *task.Dispatcher
}

// newApplication builds the full dependency graph: database, stores, event
// bus, services, webhook fan-out, and the dispatch loop.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := setupAppDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	batchStore := postgres.NewPostgresBatchStore(db)
	taskStore := postgres.NewPostgresTaskStore(db)
	webhookStore := postgres.NewPostgresWebhookStore(db)

	bus := events.NewInMemoryBus(logger)

	batchService, err := service.NewBatchService(
		service.NewTxRunner(db),
		batchStore,
		taskStore,
		bus,
		logger,
	)
	if err != nil {
		return nil, err
	}

	webhookService, err := webhook.NewService(webhookStore, cfg.Webhook, logger)
	if err != nil {
		return nil, err
	}
	// Every committed lifecycle event fans out to webhook subscribers.
	bus.Subscribe(webhookService)

	// The registry ships empty; executors for concrete task types are
	// registered here as they are implemented. External workers drive tasks
	// through the claim and status endpoints either way.
	registry := task.NewRegistry()

	dispatcher, err := task.NewDispatcher(batchService, registry, cfg.Dispatch, logger)
	if err != nil {
		return nil, err
	}

	return &application{
		config:         cfg,
		logger:         logger,
		db:             db,
		bus:            bus,
		batchService:   batchService,
		webhookService: webhookService,
		registry:       registry,
		dispatcher:     dispatcher,
	}, nil
}

// run starts the background dispatch loop (when executors are registered)
// and the HTTP server, blocking until shutdown.
func (app *application) run(ctx context.Context) error {
	if len(app.registry.TaskTypes()) > 0 {
		if err := app.dispatcher.Start(ctx); err != nil {
			return err
		}
	} else {
		app.logger.Info("no executors registered, dispatch loop disabled")
	}

	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup releases resources during shutdown.
func (app *application) cleanup() {
	if err := app.dispatcher.Stop(); err != nil {
		app.logger.Error("Dispatcher shutdown failed", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("Failed to close database connection", "error", err)
	}
}

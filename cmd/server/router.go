package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/batchflow/internal/api"
	apiMiddleware "github.com/phrazzld/batchflow/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	batchHandler := api.NewBatchHandler(app.batchService, app.logger)
	taskHandler := api.NewTaskHandler(app.batchService, app.logger)
	webhookHandler := api.NewWebhookHandler(app.webhookService, app.logger)

	r.Route("/api", func(r chi.Router) {
		// Batch endpoints
		r.Post("/batches", batchHandler.CreateBatch)
		r.Get("/batches/{id}", batchHandler.GetBatch)
		r.Post("/batches/{id}/cancel", batchHandler.CancelBatch)
		r.Post("/batches/{id}/retry", batchHandler.RetryBatch)

		// Task endpoints
		r.Post("/tasks", taskHandler.CreateTask)
		r.Get("/tasks/next", taskHandler.ListNextTasks)
		r.Get("/tasks/{id}", taskHandler.GetTask)
		r.Post("/tasks/{id}/claim", taskHandler.ClaimTask)
		r.Patch("/tasks/{id}/status", taskHandler.UpdateTaskStatus)

		// Webhook endpoints
		r.Post("/webhooks", webhookHandler.RegisterWebhook)
		r.Get("/webhooks", webhookHandler.ListWebhooks)
		r.Get("/webhooks/{id}", webhookHandler.GetWebhook)
		r.Patch("/webhooks/{id}", webhookHandler.UpdateWebhook)
		r.Delete("/webhooks/{id}", webhookHandler.DeleteWebhook)
		r.Post("/webhooks/deliveries/retry", webhookHandler.RetryDeliveries)
		r.Get("/webhooks/deliveries/exhausted", webhookHandler.ListExhaustedDeliveries)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		if err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}

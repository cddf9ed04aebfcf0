package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/phrazzld/batchflow/internal/api/shared"
	"github.com/phrazzld/batchflow/internal/webhook"
)

// WebhookHandler handles webhook subscription and delivery HTTP requests
type WebhookHandler struct {
	webhookService WebhookManager
	logger         *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(webhookService WebhookManager, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for WebhookHandler")
	}

	return &WebhookHandler{
		webhookService: webhookService,
		logger:         logger.With(slog.String("component", "webhook_handler")),
	}
}

// RegisterWebhookRequest represents the request body for registering a
// webhook subscription.
type RegisterWebhookRequest struct {
	Name       string   `json:"name" validate:"required"`
	URL        string   `json:"url" validate:"required,url"`
	Secret     string   `json:"secret"`
	EventTypes []string `json:"event_types" validate:"required,min=1"`
}

// RegisterWebhook handles POST /webhooks requests
func (h *WebhookHandler) RegisterWebhook(w http.ResponseWriter, r *http.Request) {
	var req RegisterWebhookRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Name, URL and event types are required")
		return
	}

	sub, err := h.webhookService.RegisterWebhook(r.Context(), webhook.RegisterWebhookInput{
		Name:       req.Name,
		URL:        req.URL,
		Secret:     req.Secret,
		EventTypes: req.EventTypes,
	})
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, webhookToResponse(sub))
}

// ListWebhooks handles GET /webhooks requests. active=true restricts the
// listing to active subscriptions.
func (h *WebhookHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	subs, err := h.webhookService.ListWebhooks(r.Context(), activeOnly)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	out := make([]WebhookResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, webhookToResponse(sub))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}

// GetWebhook handles GET /webhooks/{id} requests
func (h *WebhookHandler) GetWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.webhookService.GetWebhook(r.Context(), id)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, webhookToResponse(sub))
}

// UpdateWebhookRequest represents a partial subscription update. Absent
// fields are left unchanged.
type UpdateWebhookRequest struct {
	Name       *string  `json:"name"`
	URL        *string  `json:"url"`
	Secret     *string  `json:"secret"`
	EventTypes []string `json:"event_types"`
	Active     *bool    `json:"active"`
}

// UpdateWebhook handles PATCH /webhooks/{id} requests
func (h *WebhookHandler) UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateWebhookRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	sub, err := h.webhookService.UpdateWebhook(r.Context(), id, webhook.UpdateWebhookInput{
		Name:       req.Name,
		URL:        req.URL,
		Secret:     req.Secret,
		EventTypes: req.EventTypes,
		Active:     req.Active,
	})
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, webhookToResponse(sub))
}

// DeleteWebhook handles DELETE /webhooks/{id} requests
func (h *WebhookHandler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.webhookService.DeleteWebhook(r.Context(), id); err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RetryDeliveriesResponse reports how many deliveries a sweep attempted.
type RetryDeliveriesResponse struct {
	Attempted int `json:"attempted"`
}

// RetryDeliveries handles POST /webhooks/deliveries/retry requests. It runs
// one retry sweep over due failed deliveries. The optional max_attempts
// query parameter overrides the configured retry ceiling for this sweep.
func (h *WebhookHandler) RetryDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := parseLimitQuery(r, 50)
	if limit < 0 {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
		return
	}
	maxAttempts := parsePositiveIntQuery(r, "max_attempts", 0)
	if maxAttempts < 0 {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid max_attempts")
		return
	}

	attempted, err := h.webhookService.RetryFailedDeliveries(r.Context(), limit, maxAttempts)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, RetryDeliveriesResponse{Attempted: attempted})
}

// ListExhaustedDeliveries handles GET /webhooks/deliveries/exhausted
// requests, listing deliveries that failed permanently.
func (h *WebhookHandler) ListExhaustedDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := parseLimitQuery(r, 50)
	if limit < 0 {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
		return
	}

	deliveries, err := h.webhookService.ListExhaustedDeliveries(r.Context(), limit)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	out := make([]DeliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, deliveryToResponse(d))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}

// parseLimitQuery reads the limit query parameter, returning fallback when
// absent and -1 when malformed.
func parseLimitQuery(r *http.Request, fallback int) int {
	return parsePositiveIntQuery(r, "limit", fallback)
}

// parsePositiveIntQuery reads a positive integer query parameter, returning
// fallback when absent and -1 when malformed.
func parsePositiveIntQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return -1
	}
	return parsed
}

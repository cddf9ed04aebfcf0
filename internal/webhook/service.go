// Package webhook delivers lifecycle events to registered HTTP subscribers.
//
// The service subscribes to the in-process event bus. Each published event
// fans out to every active subscription covering its type; every attempt
// sequence is tracked in a durable delivery record so failed deliveries can
// be retried by a periodic sweep until a retry ceiling is reached. Payloads
// are signed with HMAC-SHA256 so receivers can authenticate the sender.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/phrazzld/batchflow/internal/config"
	"github.com/phrazzld/batchflow/internal/domain"
	"github.com/phrazzld/batchflow/internal/events"
	"github.com/phrazzld/batchflow/internal/store"
)

// Sentinel errors for the webhook service.
var (
	// ErrWebhookNotFound indicates the subscription does not exist.
	ErrWebhookNotFound = errors.New("webhook subscription not found")

	// ErrInvalidWebhook indicates a structurally invalid subscription:
	// bad URL, empty name, or unknown event types.
	ErrInvalidWebhook = errors.New("invalid webhook subscription")
)

// maxResponseBodyBytes bounds how much of a subscriber response is captured
// into the delivery record.
const maxResponseBodyBytes = 4 * 1024

// envelope is the JSON document POSTed to subscribers. The signature covers
// these exact bytes.
type envelope struct {
	EventType string          `json:"eventType"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Service manages webhook subscriptions and delivers events to them. It
// implements events.Handler so it can be subscribed directly to the bus.
type Service struct {
	webhooks      store.WebhookStore
	client        *http.Client
	breakers      *breakerRegistry
	signingSecret string
	maxAttempts   int
	logger        *slog.Logger
}

// NewService creates a webhook delivery service from the given store and
// configuration.
func NewService(webhooks store.WebhookStore, cfg config.WebhookConfig, logger *slog.Logger) (*Service, error) {
	if webhooks == nil {
		return nil, errors.New("webhook store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "webhook_service")

	return &Service{
		webhooks:      webhooks,
		client:        &http.Client{Timeout: cfg.RequestTimeout},
		breakers:      newBreakerRegistry(logger),
		signingSecret: cfg.SigningSecret,
		maxAttempts:   cfg.MaxAttempts,
		logger:        logger,
	}, nil
}

// RegisterWebhookInput carries the attributes for a new subscription.
type RegisterWebhookInput struct {
	Name       string
	URL        string
	Secret     string
	EventTypes []string
}

// RegisterWebhook creates an active subscription. When Secret is empty the
// process-wide signing secret is used for its deliveries.
func (s *Service) RegisterWebhook(ctx context.Context, in RegisterWebhookInput) (*domain.WebhookSubscription, error) {
	sub, err := domain.NewWebhookSubscription(in.Name, in.URL, in.Secret, in.EventTypes, func(et string) bool {
		return events.IsKnownEventType(et)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	if err := s.webhooks.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to persist subscription: %w", err)
	}

	s.logger.Info("webhook registered",
		"webhook_id", sub.ID,
		"url", sub.URL,
		"event_types", sub.EventTypes)

	return sub, nil
}

// GetWebhook returns the subscription with the given ID.
func (s *Service) GetWebhook(ctx context.Context, id uuid.UUID) (*domain.WebhookSubscription, error) {
	sub, err := s.webhooks.GetSubscription(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrWebhookNotFound
		}
		return nil, err
	}
	return sub, nil
}

// ListWebhooks returns all subscriptions, or only active ones.
func (s *Service) ListWebhooks(ctx context.Context, activeOnly bool) ([]*domain.WebhookSubscription, error) {
	return s.webhooks.ListSubscriptions(ctx, activeOnly, "")
}

// UpdateWebhookInput carries a partial subscription update. Nil fields are
// left unchanged; a non-nil empty Secret clears the per-subscription secret
// so deliveries fall back to the process-wide one.
type UpdateWebhookInput struct {
	Name       *string
	URL        *string
	Secret     *string
	EventTypes []string
	Active     *bool
}

// UpdateWebhook applies a partial update to an existing subscription.
func (s *Service) UpdateWebhook(ctx context.Context, id uuid.UUID, in UpdateWebhookInput) (*domain.WebhookSubscription, error) {
	sub, err := s.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		sub.Name = *in.Name
	}
	if in.URL != nil {
		sub.URL = *in.URL
	}
	if in.Secret != nil {
		sub.Secret = *in.Secret
	}
	if in.EventTypes != nil {
		sub.EventTypes = in.EventTypes
	}
	if in.Active != nil {
		sub.Active = *in.Active
	}
	sub.UpdatedAt = time.Now().UTC()

	if err := sub.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	for _, et := range sub.EventTypes {
		if !events.IsKnownEventType(et) {
			return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidWebhook, et)
		}
	}

	if err := s.webhooks.UpdateSubscription(ctx, sub); err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrWebhookNotFound
		}
		return nil, err
	}

	return sub, nil
}

// DeleteWebhook removes a subscription. Its delivery history is retained.
func (s *Service) DeleteWebhook(ctx context.Context, id uuid.UUID) error {
	if err := s.webhooks.DeleteSubscription(ctx, id); err != nil {
		if store.IsNotFoundError(err) {
			return ErrWebhookNotFound
		}
		return err
	}
	s.logger.Info("webhook deleted", "webhook_id", id)
	return nil
}

// HandleEvent fans the event out to every active subscription covering its
// type. Each delivery is attempted once synchronously and recorded; failed
// attempts are picked up later by RetryFailedDeliveries. Delivery failures
// do not fail the handler, only store failures do.
func (s *Service) HandleEvent(ctx context.Context, event *events.Event) error {
	subs, err := s.webhooks.ListSubscriptions(ctx, true, string(event.Type))
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	body, err := json.Marshal(envelope{
		EventType: string(event.Type),
		Timestamp: event.CreatedAt.UTC().Format(time.RFC3339),
		Data:      event.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to build payload: %w", err)
	}

	for _, sub := range subs {
		delivery := domain.NewWebhookDelivery(sub.ID, string(event.Type), body)
		s.attempt(ctx, sub, delivery)
		if err := s.webhooks.CreateDelivery(ctx, delivery); err != nil {
			return fmt.Errorf("failed to record delivery: %w", err)
		}
	}

	return nil
}

// RetryFailedDeliveries re-attempts unsuccessful deliveries whose schedule
// has come due, up to limit. maxAttempts overrides the configured retry
// ceiling for this sweep; zero or negative means the configured default.
// Deliveries at the ceiling are not returned by the store and stay queryable
// as exhausted. Returns the number of deliveries attempted.
func (s *Service) RetryFailedDeliveries(ctx context.Context, limit, maxAttempts int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}

	deliveries, err := s.webhooks.ListRetryableDeliveries(ctx, limit, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to list retryable deliveries: %w", err)
	}

	now := time.Now().UTC()
	attempted := 0
	for _, delivery := range deliveries {
		if delivery.ScheduledFor.After(now) {
			continue
		}

		sub, err := s.webhooks.GetSubscription(ctx, delivery.WebhookID)
		if err != nil {
			if store.IsNotFoundError(err) {
				// Subscription was deleted; retire the delivery.
				msg := "subscription no longer exists"
				delivery.Error = &msg
				delivery.Attempts = maxAttempts
				delivery.UpdatedAt = now
				if err := s.webhooks.UpdateDelivery(ctx, delivery); err != nil {
					return attempted, fmt.Errorf("failed to retire delivery: %w", err)
				}
				continue
			}
			return attempted, fmt.Errorf("failed to load subscription: %w", err)
		}

		s.attempt(ctx, sub, delivery)
		attempted++
		if err := s.webhooks.UpdateDelivery(ctx, delivery); err != nil {
			return attempted, fmt.Errorf("failed to update delivery: %w", err)
		}
	}

	return attempted, nil
}

// ListExhaustedDeliveries returns deliveries that failed permanently, newest
// first, for operator alerting.
func (s *Service) ListExhaustedDeliveries(ctx context.Context, limit int) ([]*domain.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.webhooks.ListExhaustedDeliveries(ctx, limit, s.maxAttempts)
}

// attempt performs one delivery attempt and mutates the record in place:
// attempt count, outcome, response capture, and the next retry schedule on
// failure.
func (s *Service) attempt(ctx context.Context, sub *domain.WebhookSubscription, delivery *domain.WebhookDelivery) {
	now := time.Now().UTC()
	delivery.Attempts++
	delivery.LastAttemptedAt = &now
	delivery.UpdatedAt = now

	status, respBody, err := s.post(ctx, sub, delivery)
	if err != nil {
		msg := err.Error()
		delivery.Error = &msg
		delivery.Successful = false
		delivery.ScheduledFor = now.Add(retryDelay(delivery.Attempts))
		s.logger.Warn("webhook delivery failed",
			"delivery_id", delivery.ID,
			"webhook_id", sub.ID,
			"attempt", delivery.Attempts,
			"error", err)
		return
	}

	delivery.ResponseStatus = &status
	delivery.ResponseBody = &respBody

	if status < 200 || status >= 300 {
		msg := fmt.Sprintf("endpoint returned status %d", status)
		delivery.Error = &msg
		delivery.Successful = false
		delivery.ScheduledFor = now.Add(retryDelay(delivery.Attempts))
		s.logger.Warn("webhook delivery rejected",
			"delivery_id", delivery.ID,
			"webhook_id", sub.ID,
			"status", status,
			"attempt", delivery.Attempts)
		return
	}

	delivery.Error = nil
	delivery.Successful = true
	s.logger.Debug("webhook delivered",
		"delivery_id", delivery.ID,
		"webhook_id", sub.ID,
		"status", status)
}

// post sends the signed payload through the endpoint's circuit breaker and
// returns the response status and a bounded capture of the body.
func (s *Service) post(ctx context.Context, sub *domain.WebhookSubscription, delivery *domain.WebhookDelivery) (int, string, error) {
	secret := sub.Secret
	if secret == "" {
		secret = s.signingSecret
	}

	cb := s.breakers.get(sub.URL)
	result, err := cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(delivery.Payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Signature", Sign(secret, delivery.Payload))
		req.Header.Set("X-Event-Type", delivery.EventType)
		req.Header.Set("X-Delivery-ID", delivery.ID.String())

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
		if err != nil {
			return nil, err
		}

		// Non-2xx counts as a breaker failure even though the endpoint
		// responded.
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return postResult{status: resp.StatusCode, body: string(body)},
				fmt.Errorf("endpoint returned status %d", resp.StatusCode)
		}
		return postResult{status: resp.StatusCode, body: string(body)}, nil
	})
	if err != nil {
		if res, ok := result.(postResult); ok {
			return res.status, res.body, nil
		}
		if isBreakerOpen(err) {
			return 0, "", fmt.Errorf("endpoint suspended: %w", err)
		}
		return 0, "", err
	}

	res := result.(postResult)
	return res.status, res.body, nil
}

type postResult struct {
	status int
	body   string
}

// retryDelay computes how long to wait before the next attempt given how
// many have already been made. The schedule is exponential with jitter,
// starting at one minute and capped at an hour.
func retryDelay(attempts int) time.Duration {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Minute
	policy.MaxInterval = time.Hour
	policy.MaxElapsedTime = 0

	delay := policy.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = policy.NextBackOff()
	}
	return delay
}

package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/batchflow/internal/domain"
)

// WebhookStore defines the interface for persisting webhook subscriptions
// and delivery records.
type WebhookStore interface {
	// CreateSubscription saves a new subscription.
	CreateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error

	// GetSubscription retrieves a subscription by ID.
	// Returns ErrWebhookNotFound if it does not exist.
	GetSubscription(ctx context.Context, id uuid.UUID) (*domain.WebhookSubscription, error)

	// ListSubscriptions returns subscriptions, optionally restricted to
	// active ones subscribed to the given event type. An empty eventType
	// matches all.
	ListSubscriptions(ctx context.Context, activeOnly bool, eventType string) ([]*domain.WebhookSubscription, error)

	// UpdateSubscription persists changes to an existing subscription.
	// Returns ErrWebhookNotFound if it does not exist.
	UpdateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error

	// DeleteSubscription removes a subscription. Its delivery records are
	// kept for auditing. Returns ErrWebhookNotFound if it does not exist.
	DeleteSubscription(ctx context.Context, id uuid.UUID) error

	// CreateDelivery records the first attempt of a delivery sequence.
	CreateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error

	// UpdateDelivery updates a delivery row in place after a retry attempt.
	// Returns ErrDeliveryNotFound if it does not exist.
	UpdateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error

	// ListRetryableDeliveries returns unsuccessful deliveries with attempts
	// below maxAttempts, ordered by scheduled_for ascending, up to limit.
	ListRetryableDeliveries(ctx context.Context, limit, maxAttempts int) ([]*domain.WebhookDelivery, error)

	// ListExhaustedDeliveries returns permanently failed deliveries
	// (unsuccessful with attempts >= maxAttempts) for operator alerting,
	// newest first, up to limit.
	ListExhaustedDeliveries(ctx context.Context, limit, maxAttempts int) ([]*domain.WebhookDelivery, error)

	// WithTx returns a new WebhookStore instance that uses the provided
	// transaction.
	WithTx(tx *sql.Tx) WebhookStore
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/batchflow/internal/domain"
	"github.com/phrazzld/batchflow/internal/platform/logger"
	"github.com/phrazzld/batchflow/internal/store"
)

// PostgresWebhookStore implements the store.WebhookStore interface using PostgreSQL.
type PostgresWebhookStore struct {
	db store.DBTX
}

// NewPostgresWebhookStore creates a new PostgresWebhookStore.
func NewPostgresWebhookStore(db store.DBTX) *PostgresWebhookStore {
	return &PostgresWebhookStore{
		db: db,
	}
}

// Ensure PostgresWebhookStore implements store.WebhookStore interface
var _ store.WebhookStore = (*PostgresWebhookStore)(nil)

// WithTx returns a new WebhookStore bound to the provided transaction.
func (s *PostgresWebhookStore) WithTx(tx *sql.Tx) store.WebhookStore {
	return &PostgresWebhookStore{db: tx}
}

const subscriptionColumns = `
	id, name, url, secret, event_types, active, created_at, updated_at`

const deliveryColumns = `
	id, webhook_id, event_type, payload, response_status, response_body,
	error_message, attempts, successful, scheduled_for, last_attempted_at,
	created_at, updated_at`

// CreateSubscription saves a new webhook subscription.
func (s *PostgresWebhookStore) CreateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error {
	log := logger.FromContext(ctx)

	if err := sub.Validate(); err != nil {
		return store.NewStoreError("webhook", "create", "validation failed", err)
	}

	eventTypes, err := json.Marshal(sub.EventTypes)
	if err != nil {
		return store.NewStoreError("webhook", "create", "failed to encode event types", err)
	}

	query := `
		INSERT INTO webhook_subscriptions (id, name, url, secret, event_types, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.db.ExecContext(ctx, query,
		sub.ID,
		sub.Name,
		sub.URL,
		nullString(sub.Secret),
		eventTypes,
		sub.Active,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create webhook subscription",
			"webhook_id", sub.ID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetSubscription retrieves a subscription by ID.
func (s *PostgresWebhookStore) GetSubscription(ctx context.Context, id uuid.UUID) (*domain.WebhookSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, id)

	sub, err := scanSubscription(row)
	if err != nil {
		if mapped := MapError(err); store.IsNotFoundError(mapped) {
			return nil, store.ErrWebhookNotFound
		}
		logger.FromContext(ctx).Error("failed to get webhook subscription", "webhook_id", id, "error", err)
		return nil, MapError(err)
	}

	return sub, nil
}

// ListSubscriptions returns subscriptions, optionally restricted to active
// ones covering the given event type.
func (s *PostgresWebhookStore) ListSubscriptions(
	ctx context.Context,
	activeOnly bool,
	eventType string,
) ([]*domain.WebhookSubscription, error) {
	log := logger.FromContext(ctx)

	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE 1=1`
	var args []any

	if activeOnly {
		query += " AND active = TRUE"
	}
	if eventType != "" {
		// event_types is a jsonb array; containment matches subscriptions
		// covering the event kind.
		filter, err := json.Marshal([]string{eventType})
		if err != nil {
			return nil, store.NewStoreError("webhook", "list", "failed to encode event type filter", err)
		}
		args = append(args, filter)
		query += " AND event_types @> $1"
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list webhook subscriptions", "error", err)
		return nil, MapError(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn("failed to close rows", "error", closeErr)
		}
	}()

	var subs []*domain.WebhookSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			log.Error("failed to scan webhook subscription row", "error", err)
			return nil, MapError(err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return subs, nil
}

// UpdateSubscription persists changes to an existing subscription.
func (s *PostgresWebhookStore) UpdateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error {
	log := logger.FromContext(ctx)

	if err := sub.Validate(); err != nil {
		return store.NewStoreError("webhook", "update", "validation failed", err)
	}

	eventTypes, err := json.Marshal(sub.EventTypes)
	if err != nil {
		return store.NewStoreError("webhook", "update", "failed to encode event types", err)
	}

	query := `
		UPDATE webhook_subscriptions
		SET name = $1, url = $2, secret = $3, event_types = $4, active = $5, updated_at = $6
		WHERE id = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		sub.Name,
		sub.URL,
		nullString(sub.Secret),
		eventTypes,
		sub.Active,
		time.Now().UTC(),
		sub.ID,
	)
	if err != nil {
		log.Error("failed to update webhook subscription", "webhook_id", sub.ID, "error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if rowsAffected == 0 {
		return store.ErrWebhookNotFound
	}

	return nil
}

// DeleteSubscription removes a subscription. Delivery records are kept.
func (s *PostgresWebhookStore) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete webhook subscription", "webhook_id", id, "error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if rowsAffected == 0 {
		return store.ErrWebhookNotFound
	}

	return nil
}

// CreateDelivery records the first attempt of a delivery sequence.
func (s *PostgresWebhookStore) CreateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO webhook_deliveries (id, webhook_id, event_type, payload,
			response_status, response_body, error_message, attempts, successful,
			scheduled_for, last_attempted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(ctx, query,
		delivery.ID,
		delivery.WebhookID,
		delivery.EventType,
		[]byte(delivery.Payload),
		delivery.ResponseStatus,
		delivery.ResponseBody,
		delivery.Error,
		delivery.Attempts,
		delivery.Successful,
		delivery.ScheduledFor,
		delivery.LastAttemptedAt,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create webhook delivery",
			"delivery_id", delivery.ID,
			"webhook_id", delivery.WebhookID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// UpdateDelivery updates a delivery row in place after a retry attempt.
func (s *PostgresWebhookStore) UpdateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE webhook_deliveries
		SET response_status = $1, response_body = $2, error_message = $3,
			attempts = $4, successful = $5, scheduled_for = $6,
			last_attempted_at = $7, updated_at = $8
		WHERE id = $9
	`

	result, err := s.db.ExecContext(ctx, query,
		delivery.ResponseStatus,
		delivery.ResponseBody,
		delivery.Error,
		delivery.Attempts,
		delivery.Successful,
		delivery.ScheduledFor,
		delivery.LastAttemptedAt,
		time.Now().UTC(),
		delivery.ID,
	)
	if err != nil {
		log.Error("failed to update webhook delivery", "delivery_id", delivery.ID, "error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if rowsAffected == 0 {
		return store.ErrDeliveryNotFound
	}

	return nil
}

// ListRetryableDeliveries returns unsuccessful deliveries still inside the
// retry budget, in scheduled order.
func (s *PostgresWebhookStore) ListRetryableDeliveries(ctx context.Context, limit, maxAttempts int) ([]*domain.WebhookDelivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM webhook_deliveries
		WHERE successful = FALSE AND attempts < $1
		ORDER BY scheduled_for ASC
		LIMIT $2
	`
	return s.queryDeliveries(ctx, query, maxAttempts, limit)
}

// ListExhaustedDeliveries returns permanently failed deliveries for
// operator alerting.
func (s *PostgresWebhookStore) ListExhaustedDeliveries(ctx context.Context, limit, maxAttempts int) ([]*domain.WebhookDelivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM webhook_deliveries
		WHERE successful = FALSE AND attempts >= $1
		ORDER BY updated_at DESC
		LIMIT $2
	`
	return s.queryDeliveries(ctx, query, maxAttempts, limit)
}

func (s *PostgresWebhookStore) queryDeliveries(ctx context.Context, query string, args ...any) ([]*domain.WebhookDelivery, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query webhook deliveries", "error", err)
		return nil, MapError(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn("failed to close rows", "error", closeErr)
		}
	}()

	var deliveries []*domain.WebhookDelivery
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			log.Error("failed to scan webhook delivery row", "error", err)
			return nil, MapError(err)
		}
		deliveries = append(deliveries, delivery)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return deliveries, nil
}

// scanSubscription reads a subscription from a row scanner.
func scanSubscription(row interface{ Scan(dest ...any) error }) (*domain.WebhookSubscription, error) {
	var (
		sub        domain.WebhookSubscription
		secret     sql.NullString
		eventTypes []byte
	)

	err := row.Scan(
		&sub.ID,
		&sub.Name,
		&sub.URL,
		&secret,
		&eventTypes,
		&sub.Active,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(eventTypes, &sub.EventTypes); err != nil {
		return nil, fmt.Errorf("failed to decode event types: %w", err)
	}

	sub.Secret = secret.String
	return &sub, nil
}

// scanDelivery reads a delivery from a row scanner.
func scanDelivery(row interface{ Scan(dest ...any) error }) (*domain.WebhookDelivery, error) {
	var (
		delivery domain.WebhookDelivery
		payload  []byte
	)

	err := row.Scan(
		&delivery.ID,
		&delivery.WebhookID,
		&delivery.EventType,
		&payload,
		&delivery.ResponseStatus,
		&delivery.ResponseBody,
		&delivery.Error,
		&delivery.Attempts,
		&delivery.Successful,
		&delivery.ScheduledFor,
		&delivery.LastAttemptedAt,
		&delivery.CreatedAt,
		&delivery.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	delivery.Payload = payload
	return &delivery, nil
}

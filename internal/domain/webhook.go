package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Webhook-specific validation errors
var (
	// ErrWebhookIDEmpty is returned when a subscription ID is empty or nil.
	ErrWebhookIDEmpty = errors.New("webhook ID cannot be empty")

	// ErrWebhookNameEmpty is returned when a subscription has no name.
	ErrWebhookNameEmpty = errors.New("webhook name cannot be empty")

	// ErrWebhookURLInvalid is returned when a subscription URL is missing or
	// not an absolute http(s) URL.
	ErrWebhookURLInvalid = errors.New("webhook URL must be an absolute http or https URL")

	// ErrWebhookNoEventTypes is returned when a subscription lists no event
	// types.
	ErrWebhookNoEventTypes = errors.New("webhook must subscribe to at least one event type")
)

// WebhookSubscription is a registered external HTTP receiver for lifecycle
// events. When Secret is empty, deliveries are signed with the process-wide
// fallback secret instead.
type WebhookSubscription struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Secret     string    `json:"-"`
	EventTypes []string  `json:"event_types"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewWebhookSubscription creates an active subscription with the given
// attributes. isKnownEventType lets the caller supply the set of valid event
// kinds without this package importing the events package.
func NewWebhookSubscription(
	name, rawURL, secret string,
	eventTypes []string,
	isKnownEventType func(string) bool,
) (*WebhookSubscription, error) {
	now := time.Now().UTC()
	sub := &WebhookSubscription{
		ID:         uuid.New(),
		Name:       name,
		URL:        rawURL,
		Secret:     secret,
		EventTypes: eventTypes,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := sub.Validate(); err != nil {
		return nil, err
	}

	for _, et := range eventTypes {
		if !isKnownEventType(et) {
			return nil, fmt.Errorf("unknown event type %q", et)
		}
	}

	return sub, nil
}

// Validate checks if the WebhookSubscription has valid data.
// Returns an error if any field fails validation.
func (s *WebhookSubscription) Validate() error {
	if s.ID == uuid.Nil {
		return ErrWebhookIDEmpty
	}
	if s.Name == "" {
		return ErrWebhookNameEmpty
	}
	if !validWebhookURL(s.URL) {
		return ErrWebhookURLInvalid
	}
	if len(s.EventTypes) == 0 {
		return ErrWebhookNoEventTypes
	}
	return nil
}

// SubscribesTo reports whether the subscription covers the given event type.
func (s *WebhookSubscription) SubscribesTo(eventType string) bool {
	for _, et := range s.EventTypes {
		if et == eventType {
			return true
		}
	}
	return false
}

func validWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// WebhookDelivery tracks one attempt sequence of POSTing an event payload to
// a subscriber URL. A row is created on the first attempt and updated in
// place by retries; rows are never deleted, so exhausted deliveries remain
// queryable for operator alerting.
type WebhookDelivery struct {
	ID              uuid.UUID       `json:"id"`
	WebhookID       uuid.UUID       `json:"webhook_id"`
	EventType       string          `json:"event_type"`
	Payload         json.RawMessage `json:"payload"`
	ResponseStatus  *int            `json:"response_status,omitempty"`
	ResponseBody    *string         `json:"response_body,omitempty"`
	Error           *string         `json:"error,omitempty"`
	Attempts        int             `json:"attempts"`
	Successful      bool            `json:"successful"`
	ScheduledFor    time.Time       `json:"scheduled_for"`
	LastAttemptedAt *time.Time      `json:"last_attempted_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewWebhookDelivery creates a delivery record for the given subscription
// and payload snapshot, scheduled for immediate delivery.
func NewWebhookDelivery(webhookID uuid.UUID, eventType string, payload json.RawMessage) *WebhookDelivery {
	now := time.Now().UTC()
	return &WebhookDelivery{
		ID:           uuid.New(),
		WebhookID:    webhookID,
		EventType:    eventType,
		Payload:      payload,
		ScheduledFor: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

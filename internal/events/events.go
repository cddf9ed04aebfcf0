package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of lifecycle event.
type EventType string

// The three event kinds the engine publishes.
const (
	EventBatchCreated       EventType = "batch-created"
	EventTaskCompleted      EventType = "task-completed"
	EventBatchStatusChanged EventType = "batch-status-changed"
)

// IsKnownEventType reports whether s names one of the published event kinds.
func IsKnownEventType(s string) bool {
	switch EventType(s) {
	case EventBatchCreated, EventTaskCompleted, EventBatchStatusChanged:
		return true
	}
	return false
}

// Event is a lifecycle notification. Payload holds a small JSON document of
// identifiers (batch ID, task ID, statuses, output identifier projection);
// never full entity state.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates the kind of lifecycle change
	Type EventType `json:"type"`

	// BatchID is the batch the event belongs to, if any. Ordering guarantees
	// apply per batch ID.
	BatchID *uuid.UUID `json:"batch_id,omitempty"`

	// Payload contains the event data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event of the given type with the payload serialized
// to JSON.
func NewEvent(eventType EventType, batchID *uuid.UUID, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		BatchID:   batchID,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Handler defines an interface for components that consume events.
type Handler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// Publisher defines an interface for components that publish events.
// This allows services to emit events without direct knowledge of handlers.
type Publisher interface {
	// Publish delivers the given event to all registered handlers.
	// Returns an error if the event cannot be published.
	Publish(ctx context.Context, event *Event) error
}

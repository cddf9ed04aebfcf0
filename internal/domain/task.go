package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Task type tags used by the known executor fleets. The engine treats the
// type as an opaque routing key; these constants exist so producers and
// executors agree on spelling.
const (
	TaskTypeMediaDownload   = "media_download"
	TaskTypeWebScrape       = "web_scrape"
	TaskTypeDocumentFetch   = "document_fetch"
	TaskTypeAudioTranscribe = "audio_transcribe"
)

// Task-specific validation errors
var (
	// ErrTaskIDEmpty is returned when a task ID is empty or nil.
	ErrTaskIDEmpty = errors.New("task ID cannot be empty")

	// ErrTaskTypeEmpty is returned when a task has no type tag.
	ErrTaskTypeEmpty = errors.New("task type cannot be empty")

	// ErrTaskInputEmpty is returned when a task's input is missing. Input is
	// required even if it is just an empty JSON object.
	ErrTaskInputEmpty = errors.New("task input cannot be empty")

	// ErrTaskInputInvalid is returned when a task's input is not valid JSON.
	ErrTaskInputInvalid = errors.New("task input must be valid JSON")

	// ErrTaskStatusInvalid is returned when a task carries an unknown status.
	ErrTaskStatusInvalid = errors.New("task status is not valid")

	// ErrTaskMaxRetriesNegative is returned when maxRetries is below zero.
	ErrTaskMaxRetriesNegative = errors.New("task max retries cannot be negative")
)

// Task represents a unit of work with opaque, type-specific input and output.
// A task may belong to a batch (BatchID non-nil) or stand alone.
type Task struct {
	ID            uuid.UUID       `json:"id"`
	BatchID       *uuid.UUID      `json:"batch_id,omitempty"`
	Type          string          `json:"type"`
	Status        TaskStatus      `json:"status"`
	Priority      int             `json:"priority"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
	Input         json.RawMessage `json:"input"`
	Output        json.RawMessage `json:"output,omitempty"`
	Error         *string         `json:"error,omitempty"`
	CorrelationID *string         `json:"correlation_id,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewTask creates a new queued Task with the given attributes. It generates
// a new UUID and sets the creation/update timestamps. Returns an error if
// validation fails.
func NewTask(
	batchID *uuid.UUID,
	taskType string,
	input json.RawMessage,
	priority int,
	maxRetries int,
	correlationID *string,
) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:            uuid.New(),
		BatchID:       batchID,
		Type:          taskType,
		Status:        TaskStatusQueued,
		Priority:      priority,
		MaxRetries:    maxRetries,
		Input:         input,
		CorrelationID: correlationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTaskIDEmpty
	}
	if t.Type == "" {
		return ErrTaskTypeEmpty
	}
	if !t.Status.IsValid() {
		return ErrTaskStatusInvalid
	}
	if t.MaxRetries < 0 {
		return ErrTaskMaxRetriesNegative
	}
	if len(t.Input) == 0 {
		return ErrTaskInputEmpty
	}

	// Input must be well-formed JSON; it is persisted into a JSONB column
	// and handed verbatim to executors.
	var js json.RawMessage
	if err := json.Unmarshal(t.Input, &js); err != nil {
		return ErrTaskInputInvalid
	}

	return nil
}

// CanRetry reports whether the task is eligible for the explicit retry path:
// it must have failed and still have retry budget left.
func (t *Task) CanRetry() bool {
	return t.Status == TaskStatusFailed && t.RetryCount < t.MaxRetries
}

// TaskDependency is a directed edge meaning DependentID cannot dispatch
// until DependencyID reaches a satisfying terminal state. Edges are created
// atomically with the dependent task and are immutable afterwards.
type TaskDependency struct {
	DependentID  uuid.UUID `json:"dependent_id"`
	DependencyID uuid.UUID `json:"dependency_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// OutputIdentifiers extracts the well-known identifier fields from a task
// output document. Lifecycle events carry only this reduced projection, not
// the full payload, to bound event size and avoid leaking stale state.
func OutputIdentifiers(output json.RawMessage) map[string]string {
	if len(output) == 0 {
		return nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil
	}

	// Identifier fields executors commonly report: storage object keys,
	// downstream record IDs, external references.
	keys := []string{"id", "object_key", "record_id", "external_id", "url"}

	ids := make(map[string]string)
	for _, key := range keys {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if s != "" {
			ids[key] = s
		}
	}

	if len(ids) == 0 {
		return nil
	}
	return ids
}

package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Batch-specific validation errors
var (
	// ErrBatchIDEmpty is returned when a batch ID is empty or nil.
	ErrBatchIDEmpty = errors.New("batch ID cannot be empty")

	// ErrBatchTypeEmpty is returned when a batch has no type tag.
	ErrBatchTypeEmpty = errors.New("batch type cannot be empty")

	// ErrBatchStatusInvalid is returned when a batch carries an unknown status.
	ErrBatchStatusInvalid = errors.New("batch status is not valid")

	// ErrBatchCountersInvalid is returned when the batch counters do not add
	// up: total must equal queued+processing+completed+failed.
	ErrBatchCountersInvalid = errors.New("batch counters do not sum to total")
)

// BatchCounters tracks how many member tasks sit in each status bucket.
// The invariant Total == Queued+Processing+Completed+Failed must hold at
// every committed state.
type BatchCounters struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Consistent reports whether the counter invariant holds.
func (c BatchCounters) Consistent() bool {
	return c.Total == c.Queued+c.Processing+c.Completed+c.Failed &&
		c.Queued >= 0 && c.Processing >= 0 && c.Completed >= 0 && c.Failed >= 0
}

// CounterDelta describes an adjustment to batch counters, applied atomically
// alongside the task transition that caused it.
type CounterDelta struct {
	Total      int
	Queued     int
	Processing int
	Completed  int
	Failed     int
}

// Apply returns the counters after adding the delta.
func (c BatchCounters) Apply(d CounterDelta) BatchCounters {
	return BatchCounters{
		Total:      c.Total + d.Total,
		Queued:     c.Queued + d.Queued,
		Processing: c.Processing + d.Processing,
		Completed:  c.Completed + d.Completed,
		Failed:     c.Failed + d.Failed,
	}
}

// Batch represents a named group of tasks tracked with an aggregate status
// and per-status counters. Metadata is stored as an opaque JSONB structure
// so batch types can attach their own bookkeeping.
type Batch struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name,omitempty"`
	Type      string          `json:"type"`
	Status    BatchStatus     `json:"status"`
	Priority  int             `json:"priority"`
	Counters  BatchCounters   `json:"counters"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewBatch creates a new empty Batch with the given type, optional name,
// priority and metadata. It generates a new UUID, zeroes the counters, and
// sets the creation/update timestamps. Returns an error if validation fails.
func NewBatch(batchType, name string, priority int, metadata json.RawMessage) (*Batch, error) {
	now := time.Now().UTC()
	batch := &Batch{
		ID:        uuid.New(),
		Name:      name,
		Type:      batchType,
		Status:    BatchStatusPending,
		Priority:  priority,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := batch.Validate(); err != nil {
		return nil, err
	}

	return batch, nil
}

// Validate checks if the Batch has valid data.
// Returns an error if any field fails validation.
func (b *Batch) Validate() error {
	if b.ID == uuid.Nil {
		return ErrBatchIDEmpty
	}
	if b.Type == "" {
		return ErrBatchTypeEmpty
	}
	if !b.Status.IsValid() {
		return ErrBatchStatusInvalid
	}
	if !b.Counters.Consistent() {
		return ErrBatchCountersInvalid
	}
	return nil
}

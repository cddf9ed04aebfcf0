package api

import (
	"encoding/json"
	"time"

	"github.com/phrazzld/batchflow/internal/domain"
)

// BatchResponse represents the response data for a batch
type BatchResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Priority  int             `json:"priority"`
	Counters  CountersBody    `json:"counters"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CountersBody mirrors the batch progress counters.
type CountersBody struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// TaskResponse represents the response data for a task
type TaskResponse struct {
	ID            string          `json:"id"`
	BatchID       *string         `json:"batch_id,omitempty"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
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

// WebhookResponse represents the response data for a webhook subscription.
// The signing secret is never echoed back.
type WebhookResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	EventTypes []string  `json:"event_types"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DeliveryResponse represents the response data for a webhook delivery.
type DeliveryResponse struct {
	ID              string     `json:"id"`
	WebhookID       string     `json:"webhook_id"`
	EventType       string     `json:"event_type"`
	Attempts        int        `json:"attempts"`
	Successful      bool       `json:"successful"`
	ResponseStatus  *int       `json:"response_status,omitempty"`
	Error           *string    `json:"error,omitempty"`
	ScheduledFor    time.Time  `json:"scheduled_for"`
	LastAttemptedAt *time.Time `json:"last_attempted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func batchToResponse(batch *domain.Batch) BatchResponse {
	return BatchResponse{
		ID:       batch.ID.String(),
		Name:     batch.Name,
		Type:     batch.Type,
		Status:   string(batch.Status),
		Priority: batch.Priority,
		Counters: CountersBody{
			Total:      batch.Counters.Total,
			Queued:     batch.Counters.Queued,
			Processing: batch.Counters.Processing,
			Completed:  batch.Counters.Completed,
			Failed:     batch.Counters.Failed,
		},
		Metadata:  batch.Metadata,
		CreatedAt: batch.CreatedAt,
		UpdatedAt: batch.UpdatedAt,
	}
}

func taskToResponse(task *domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:            task.ID.String(),
		Type:          task.Type,
		Status:        string(task.Status),
		Priority:      task.Priority,
		RetryCount:    task.RetryCount,
		MaxRetries:    task.MaxRetries,
		Input:         task.Input,
		Output:        task.Output,
		Error:         task.Error,
		CorrelationID: task.CorrelationID,
		StartedAt:     task.StartedAt,
		CompletedAt:   task.CompletedAt,
		CreatedAt:     task.CreatedAt,
		UpdatedAt:     task.UpdatedAt,
	}
	if task.BatchID != nil {
		id := task.BatchID.String()
		resp.BatchID = &id
	}
	return resp
}

func tasksToResponse(tasks []*domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, taskToResponse(task))
	}
	return out
}

func webhookToResponse(sub *domain.WebhookSubscription) WebhookResponse {
	return WebhookResponse{
		ID:         sub.ID.String(),
		Name:       sub.Name,
		URL:        sub.URL,
		EventTypes: sub.EventTypes,
		Active:     sub.Active,
		CreatedAt:  sub.CreatedAt,
		UpdatedAt:  sub.UpdatedAt,
	}
}

func deliveryToResponse(d *domain.WebhookDelivery) DeliveryResponse {
	return DeliveryResponse{
		ID:              d.ID.String(),
		WebhookID:       d.WebhookID.String(),
		EventType:       d.EventType,
		Attempts:        d.Attempts,
		Successful:      d.Successful,
		ResponseStatus:  d.ResponseStatus,
		Error:           d.Error,
		ScheduledFor:    d.ScheduledFor,
		LastAttemptedAt: d.LastAttemptedAt,
		CreatedAt:       d.CreatedAt,
	}
}

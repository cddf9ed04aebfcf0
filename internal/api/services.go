package api

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/phrazzld/batchflow/internal/domain"
	"github.com/phrazzld/batchflow/internal/service"
	"github.com/phrazzld/batchflow/internal/webhook"
)

// BatchOrchestrator is the slice of the batch service the HTTP handlers
// consume. *service.BatchService satisfies it.
type BatchOrchestrator interface {
	CreateBatch(ctx context.Context, in service.CreateBatchInput) (*domain.Batch, error)
	CreateTask(ctx context.Context, in service.CreateTaskInput) (*domain.Task, error)
	GetBatchStatus(ctx context.Context, batchID uuid.UUID, includeTasks bool, statusFilter *domain.TaskStatus, limit int) (*service.BatchStatusResult, error)
	GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)
	ListNextReadyTasks(ctx context.Context, limit int, taskTypes []string) ([]*domain.Task, error)
	ClaimTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, newStatus domain.TaskStatus, output json.RawMessage, taskErr *string) ([]uuid.UUID, error)
	RetryFailedTasks(ctx context.Context, batchID uuid.UUID, limit int) ([]uuid.UUID, error)
	CancelBatch(ctx context.Context, batchID uuid.UUID) error
}

// WebhookManager is the slice of the webhook service the HTTP handlers
// consume. *webhook.Service satisfies it.
type WebhookManager interface {
	RegisterWebhook(ctx context.Context, in webhook.RegisterWebhookInput) (*domain.WebhookSubscription, error)
	GetWebhook(ctx context.Context, id uuid.UUID) (*domain.WebhookSubscription, error)
	ListWebhooks(ctx context.Context, activeOnly bool) ([]*domain.WebhookSubscription, error)
	UpdateWebhook(ctx context.Context, id uuid.UUID, in webhook.UpdateWebhookInput) (*domain.WebhookSubscription, error)
	DeleteWebhook(ctx context.Context, id uuid.UUID) error
	RetryFailedDeliveries(ctx context.Context, limit, maxAttempts int) (int, error)
	ListExhaustedDeliveries(ctx context.Context, limit int) ([]*domain.WebhookDelivery, error)
}

var (
	_ BatchOrchestrator = (*service.BatchService)(nil)
	_ WebhookManager    = (*webhook.Service)(nil)
)

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/batchflow/internal/domain"
	"github.com/phrazzld/batchflow/internal/service"
	"github.com/phrazzld/batchflow/internal/webhook"
)

// mockOrchestrator is a stub BatchOrchestrator with per-method overrides.
type mockOrchestrator struct {
	createBatch     func(ctx context.Context, in service.CreateBatchInput) (*domain.Batch, error)
	createTask      func(ctx context.Context, in service.CreateTaskInput) (*domain.Task, error)
	getBatchStatus  func(ctx context.Context, batchID uuid.UUID, includeTasks bool, statusFilter *domain.TaskStatus, limit int) (*service.BatchStatusResult, error)
	getTask         func(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)
	listReady       func(ctx context.Context, limit int, taskTypes []string) ([]*domain.Task, error)
	claimTask       func(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)
	updateStatus    func(ctx context.Context, taskID uuid.UUID, status domain.TaskStatus, output json.RawMessage, taskErr *string) ([]uuid.UUID, error)
	retryFailed     func(ctx context.Context, batchID uuid.UUID, limit int) ([]uuid.UUID, error)
	cancelBatchFunc func(ctx context.Context, batchID uuid.UUID) error
}

func (m *mockOrchestrator) CreateBatch(ctx context.Context, in service.CreateBatchInput) (*domain.Batch, error) {
	return m.createBatch(ctx, in)
}

func (m *mockOrchestrator) CreateTask(ctx context.Context, in service.CreateTaskInput) (*domain.Task, error) {
	return m.createTask(ctx, in)
}

func (m *mockOrchestrator) GetBatchStatus(ctx context.Context, batchID uuid.UUID, includeTasks bool, statusFilter *domain.TaskStatus, limit int) (*service.BatchStatusResult, error) {
	return m.getBatchStatus(ctx, batchID, includeTasks, statusFilter, limit)
}

func (m *mockOrchestrator) GetTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	return m.getTask(ctx, taskID)
}

func (m *mockOrchestrator) ListNextReadyTasks(ctx context.Context, limit int, taskTypes []string) ([]*domain.Task, error) {
	return m.listReady(ctx, limit, taskTypes)
}

func (m *mockOrchestrator) ClaimTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	return m.claimTask(ctx, taskID)
}

func (m *mockOrchestrator) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status domain.TaskStatus, output json.RawMessage, taskErr *string) ([]uuid.UUID, error) {
	return m.updateStatus(ctx, taskID, status, output, taskErr)
}

func (m *mockOrchestrator) RetryFailedTasks(ctx context.Context, batchID uuid.UUID, limit int) ([]uuid.UUID, error) {
	return m.retryFailed(ctx, batchID, limit)
}

func (m *mockOrchestrator) CancelBatch(ctx context.Context, batchID uuid.UUID) error {
	return m.cancelBatchFunc(ctx, batchID)
}

var _ BatchOrchestrator = (*mockOrchestrator)(nil)

func testBatch(t *testing.T) *domain.Batch {
	t.Helper()
	batch, err := domain.NewBatch("media-import", "nightly", 0, nil)
	require.NoError(t, err)
	return batch
}

func testTask(t *testing.T, batchID *uuid.UUID) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(batchID, domain.TaskTypeWebScrape, json.RawMessage(`{"url":"https://example.com"}`), 0, 3, nil)
	require.NoError(t, err)
	return task
}

func doRequest(handler http.HandlerFunc, method, target string, body []byte, params map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestCreateBatchHandler(t *testing.T) {
	t.Parallel()

	t.Run("creates_batch", func(t *testing.T) {
		t.Parallel()
		batch := testBatch(t)
		mock := &mockOrchestrator{
			createBatch: func(_ context.Context, in service.CreateBatchInput) (*domain.Batch, error) {
				assert.Equal(t, "media-import", in.Type)
				return batch, nil
			},
		}
		handler := NewBatchHandler(mock, slog.Default())

		rec := doRequest(handler.CreateBatch, http.MethodPost, "/api/batches",
			[]byte(`{"type":"media-import","name":"nightly"}`), nil)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp BatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, batch.ID.String(), resp.ID)
		assert.Equal(t, "pending", resp.Status)
	})

	t.Run("rejects_malformed_json", func(t *testing.T) {
		t.Parallel()
		handler := NewBatchHandler(&mockOrchestrator{}, slog.Default())

		rec := doRequest(handler.CreateBatch, http.MethodPost, "/api/batches", []byte(`{`), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects_missing_type", func(t *testing.T) {
		t.Parallel()
		handler := NewBatchHandler(&mockOrchestrator{}, slog.Default())

		rec := doRequest(handler.CreateBatch, http.MethodPost, "/api/batches", []byte(`{"name":"x"}`), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetBatchHandler(t *testing.T) {
	t.Parallel()

	t.Run("returns_batch_with_tasks", func(t *testing.T) {
		t.Parallel()
		batch := testBatch(t)
		task := testTask(t, &batch.ID)
		mock := &mockOrchestrator{
			getBatchStatus: func(_ context.Context, batchID uuid.UUID, includeTasks bool, statusFilter *domain.TaskStatus, limit int) (*service.BatchStatusResult, error) {
				assert.Equal(t, batch.ID, batchID)
				assert.True(t, includeTasks)
				require.NotNil(t, statusFilter)
				assert.Equal(t, domain.TaskStatusQueued, *statusFilter)
				assert.Equal(t, 5, limit)
				return &service.BatchStatusResult{Batch: batch, Tasks: []*domain.Task{task}}, nil
			},
		}
		handler := NewBatchHandler(mock, slog.Default())

		rec := doRequest(handler.GetBatch, http.MethodGet,
			"/api/batches/"+batch.ID.String()+"?include_tasks=true&status=queued&limit=5",
			nil, map[string]string{"id": batch.ID.String()})

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp BatchStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Tasks, 1)
		assert.Equal(t, task.ID.String(), resp.Tasks[0].ID)
	})

	t.Run("unknown_batch_maps_to_404", func(t *testing.T) {
		t.Parallel()
		mock := &mockOrchestrator{
			getBatchStatus: func(_ context.Context, _ uuid.UUID, _ bool, _ *domain.TaskStatus, _ int) (*service.BatchStatusResult, error) {
				return nil, service.ErrBatchNotFound
			},
		}
		handler := NewBatchHandler(mock, slog.Default())

		id := uuid.New().String()
		rec := doRequest(handler.GetBatch, http.MethodGet, "/api/batches/"+id, nil, map[string]string{"id": id})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects_bad_uuid", func(t *testing.T) {
		t.Parallel()
		handler := NewBatchHandler(&mockOrchestrator{}, slog.Default())

		rec := doRequest(handler.GetBatch, http.MethodGet, "/api/batches/nope", nil, map[string]string{"id": "nope"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects_unknown_status_filter", func(t *testing.T) {
		t.Parallel()
		handler := NewBatchHandler(&mockOrchestrator{}, slog.Default())

		id := uuid.New().String()
		rec := doRequest(handler.GetBatch, http.MethodGet, "/api/batches/"+id+"?status=bogus", nil, map[string]string{"id": id})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCancelAndRetryBatchHandlers(t *testing.T) {
	t.Parallel()

	t.Run("cancel_terminal_batch_maps_to_400", func(t *testing.T) {
		t.Parallel()
		mock := &mockOrchestrator{
			cancelBatchFunc: func(_ context.Context, _ uuid.UUID) error {
				return service.ErrBatchTerminal
			},
		}
		handler := NewBatchHandler(mock, slog.Default())

		id := uuid.New().String()
		rec := doRequest(handler.CancelBatch, http.MethodPost, "/api/batches/"+id+"/cancel", nil, map[string]string{"id": id})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("retry_returns_requeued_task_ids", func(t *testing.T) {
		t.Parallel()
		retried := []uuid.UUID{uuid.New(), uuid.New()}
		mock := &mockOrchestrator{
			retryFailed: func(_ context.Context, _ uuid.UUID, limit int) ([]uuid.UUID, error) {
				assert.Equal(t, 2, limit)
				return retried, nil
			},
		}
		handler := NewBatchHandler(mock, slog.Default())

		id := uuid.New().String()
		rec := doRequest(handler.RetryBatch, http.MethodPost, "/api/batches/"+id+"/retry",
			[]byte(`{"limit":2}`), map[string]string{"id": id})

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp RetryBatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []string{retried[0].String(), retried[1].String()}, resp.RetriedTaskIDs)
	})
}

func TestCreateTaskHandler(t *testing.T) {
	t.Parallel()

	t.Run("creates_task_with_dependencies", func(t *testing.T) {
		t.Parallel()
		batchID := uuid.New()
		depID := uuid.New()
		task := testTask(t, &batchID)
		mock := &mockOrchestrator{
			createTask: func(_ context.Context, in service.CreateTaskInput) (*domain.Task, error) {
				require.NotNil(t, in.BatchID)
				assert.Equal(t, batchID, *in.BatchID)
				assert.Equal(t, []uuid.UUID{depID}, in.DependsOn)
				return task, nil
			},
		}
		handler := NewTaskHandler(mock, slog.Default())

		body := []byte(`{"batch_id":"` + batchID.String() + `","type":"web-scrape","input":{"url":"https://example.com"},"depends_on":["` + depID.String() + `"]}`)
		rec := doRequest(handler.CreateTask, http.MethodPost, "/api/tasks", body, nil)

		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("dependency_cycle_maps_to_400", func(t *testing.T) {
		t.Parallel()
		mock := &mockOrchestrator{
			createTask: func(_ context.Context, _ service.CreateTaskInput) (*domain.Task, error) {
				return nil, service.ErrDependencyCycle
			},
		}
		handler := NewTaskHandler(mock, slog.Default())

		body := []byte(`{"type":"web-scrape","input":{"url":"https://example.com"}}`)
		rec := doRequest(handler.CreateTask, http.MethodPost, "/api/tasks", body, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects_missing_input", func(t *testing.T) {
		t.Parallel()
		handler := NewTaskHandler(&mockOrchestrator{}, slog.Default())

		rec := doRequest(handler.CreateTask, http.MethodPost, "/api/tasks", []byte(`{"type":"web-scrape"}`), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestClaimTaskHandler(t *testing.T) {
	t.Parallel()

	t.Run("lost_claim_maps_to_409", func(t *testing.T) {
		t.Parallel()
		mock := &mockOrchestrator{
			claimTask: func(_ context.Context, _ uuid.UUID) (*domain.Task, error) {
				return nil, service.ErrTaskNotClaimable
			},
		}
		handler := NewTaskHandler(mock, slog.Default())

		id := uuid.New().String()
		rec := doRequest(handler.ClaimTask, http.MethodPost, "/api/tasks/"+id+"/claim", nil, map[string]string{"id": id})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("won_claim_returns_processing_task", func(t *testing.T) {
		t.Parallel()
		task := testTask(t, nil)
		task.Status = domain.TaskStatusProcessing
		mock := &mockOrchestrator{
			claimTask: func(_ context.Context, taskID uuid.UUID) (*domain.Task, error) {
				assert.Equal(t, task.ID, taskID)
				return task, nil
			},
		}
		handler := NewTaskHandler(mock, slog.Default())

		rec := doRequest(handler.ClaimTask, http.MethodPost, "/api/tasks/"+task.ID.String()+"/claim",
			nil, map[string]string{"id": task.ID.String()})

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp TaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "processing", resp.Status)
	})
}

func TestUpdateTaskStatusHandler(t *testing.T) {
	t.Parallel()

	t.Run("reports_unblocked_dependents", func(t *testing.T) {
		t.Parallel()
		task := testTask(t, nil)
		task.Status = domain.TaskStatusCompleted
		unblocked := uuid.New()
		mock := &mockOrchestrator{
			updateStatus: func(_ context.Context, taskID uuid.UUID, status domain.TaskStatus, output json.RawMessage, taskErr *string) ([]uuid.UUID, error) {
				assert.Equal(t, task.ID, taskID)
				assert.Equal(t, domain.TaskStatusCompleted, status)
				assert.Nil(t, taskErr)
				return []uuid.UUID{unblocked}, nil
			},
			getTask: func(_ context.Context, _ uuid.UUID) (*domain.Task, error) {
				return task, nil
			},
		}
		handler := NewTaskHandler(mock, slog.Default())

		body := []byte(`{"status":"completed","output":{"id":"rec-1"}}`)
		rec := doRequest(handler.UpdateTaskStatus, http.MethodPatch, "/api/tasks/"+task.ID.String()+"/status",
			body, map[string]string{"id": task.ID.String()})

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp UpdateTaskStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []string{unblocked.String()}, resp.UnblockedTaskIDs)
	})

	t.Run("invalid_transition_maps_to_400", func(t *testing.T) {
		t.Parallel()
		mock := &mockOrchestrator{
			updateStatus: func(_ context.Context, _ uuid.UUID, _ domain.TaskStatus, _ json.RawMessage, _ *string) ([]uuid.UUID, error) {
				return nil, service.ErrInvalidTransition
			},
		}
		handler := NewTaskHandler(mock, slog.Default())

		id := uuid.New().String()
		rec := doRequest(handler.UpdateTaskStatus, http.MethodPatch, "/api/tasks/"+id+"/status",
			[]byte(`{"status":"processing"}`), map[string]string{"id": id})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListNextTasksHandler(t *testing.T) {
	t.Parallel()

	t.Run("passes_limit_and_types", func(t *testing.T) {
		t.Parallel()
		mock := &mockOrchestrator{
			listReady: func(_ context.Context, limit int, taskTypes []string) ([]*domain.Task, error) {
				assert.Equal(t, 3, limit)
				assert.Equal(t, []string{domain.TaskTypeWebScrape, domain.TaskTypeMediaDownload}, taskTypes)
				return nil, nil
			},
		}
		handler := NewTaskHandler(mock, slog.Default())

		rec := doRequest(handler.ListNextTasks, http.MethodGet, "/api/tasks/next?limit=3&types=web-scrape,media-download", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("rejects_bad_limit", func(t *testing.T) {
		t.Parallel()
		handler := NewTaskHandler(&mockOrchestrator{}, slog.Default())

		rec := doRequest(handler.ListNextTasks, http.MethodGet, "/api/tasks/next?limit=zero", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// mockWebhookManager is a stub WebhookManager with per-method overrides.
type mockWebhookManager struct {
	register      func(ctx context.Context, in webhook.RegisterWebhookInput) (*domain.WebhookSubscription, error)
	get           func(ctx context.Context, id uuid.UUID) (*domain.WebhookSubscription, error)
	list          func(ctx context.Context, activeOnly bool) ([]*domain.WebhookSubscription, error)
	update        func(ctx context.Context, id uuid.UUID, in webhook.UpdateWebhookInput) (*domain.WebhookSubscription, error)
	deleteFunc    func(ctx context.Context, id uuid.UUID) error
	retry         func(ctx context.Context, limit, maxAttempts int) (int, error)
	listExhausted func(ctx context.Context, limit int) ([]*domain.WebhookDelivery, error)
}

func (m *mockWebhookManager) RegisterWebhook(ctx context.Context, in webhook.RegisterWebhookInput) (*domain.WebhookSubscription, error) {
	return m.register(ctx, in)
}

func (m *mockWebhookManager) GetWebhook(ctx context.Context, id uuid.UUID) (*domain.WebhookSubscription, error) {
	return m.get(ctx, id)
}

func (m *mockWebhookManager) ListWebhooks(ctx context.Context, activeOnly bool) ([]*domain.WebhookSubscription, error) {
	return m.list(ctx, activeOnly)
}

func (m *mockWebhookManager) UpdateWebhook(ctx context.Context, id uuid.UUID, in webhook.UpdateWebhookInput) (*domain.WebhookSubscription, error) {
	return m.update(ctx, id, in)
}

func (m *mockWebhookManager) DeleteWebhook(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}

func (m *mockWebhookManager) RetryFailedDeliveries(ctx context.Context, limit, maxAttempts int) (int, error) {
	return m.retry(ctx, limit, maxAttempts)
}

func (m *mockWebhookManager) ListExhaustedDeliveries(ctx context.Context, limit int) ([]*domain.WebhookDelivery, error) {
	return m.listExhausted(ctx, limit)
}

var _ WebhookManager = (*mockWebhookManager)(nil)

func testSubscription(t *testing.T) *domain.WebhookSubscription {
	t.Helper()
	sub, err := domain.NewWebhookSubscription("notifier", "https://hooks.example.com/events", "secret",
		[]string{"task-completed"}, func(string) bool { return true })
	require.NoError(t, err)
	return sub
}

func TestWebhookHandlers(t *testing.T) {
	t.Parallel()

	t.Run("register_never_echoes_secret", func(t *testing.T) {
		t.Parallel()
		sub := testSubscription(t)
		mock := &mockWebhookManager{
			register: func(_ context.Context, in webhook.RegisterWebhookInput) (*domain.WebhookSubscription, error) {
				assert.Equal(t, "secret", in.Secret)
				return sub, nil
			},
		}
		handler := NewWebhookHandler(mock, slog.Default())

		body := []byte(`{"name":"notifier","url":"https://hooks.example.com/events","secret":"secret","event_types":["task-completed"]}`)
		rec := doRequest(handler.RegisterWebhook, http.MethodPost, "/api/webhooks", body, nil)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret")
	})

	t.Run("register_rejects_invalid_subscription", func(t *testing.T) {
		t.Parallel()
		mock := &mockWebhookManager{
			register: func(_ context.Context, _ webhook.RegisterWebhookInput) (*domain.WebhookSubscription, error) {
				return nil, webhook.ErrInvalidWebhook
			},
		}
		handler := NewWebhookHandler(mock, slog.Default())

		body := []byte(`{"name":"bad","url":"https://hooks.example.com","event_types":["task-exploded"]}`)
		rec := doRequest(handler.RegisterWebhook, http.MethodPost, "/api/webhooks", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete_unknown_maps_to_404", func(t *testing.T) {
		t.Parallel()
		mock := &mockWebhookManager{
			deleteFunc: func(_ context.Context, _ uuid.UUID) error {
				return webhook.ErrWebhookNotFound
			},
		}
		handler := NewWebhookHandler(mock, slog.Default())

		id := uuid.New().String()
		rec := doRequest(handler.DeleteWebhook, http.MethodDelete, "/api/webhooks/"+id, nil, map[string]string{"id": id})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("retry_sweep_reports_attempts", func(t *testing.T) {
		t.Parallel()
		mock := &mockWebhookManager{
			retry: func(_ context.Context, limit, maxAttempts int) (int, error) {
				assert.Equal(t, 50, limit)
				assert.Zero(t, maxAttempts)
				return 4, nil
			},
		}
		handler := NewWebhookHandler(mock, slog.Default())

		rec := doRequest(handler.RetryDeliveries, http.MethodPost, "/api/webhooks/deliveries/retry", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"attempted":4}`, rec.Body.String())
	})

	t.Run("retry_sweep_passes_max_attempts_override", func(t *testing.T) {
		t.Parallel()
		mock := &mockWebhookManager{
			retry: func(_ context.Context, limit, maxAttempts int) (int, error) {
				assert.Equal(t, 20, limit)
				assert.Equal(t, 5, maxAttempts)
				return 2, nil
			},
		}
		handler := NewWebhookHandler(mock, slog.Default())

		rec := doRequest(handler.RetryDeliveries, http.MethodPost,
			"/api/webhooks/deliveries/retry?limit=20&max_attempts=5", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"attempted":2}`, rec.Body.String())
	})

	t.Run("retry_sweep_rejects_malformed_max_attempts", func(t *testing.T) {
		t.Parallel()
		handler := NewWebhookHandler(&mockWebhookManager{}, slog.Default())

		rec := doRequest(handler.RetryDeliveries, http.MethodPost,
			"/api/webhooks/deliveries/retry?max_attempts=zero", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("exhausted_listing", func(t *testing.T) {
		t.Parallel()
		delivery := domain.NewWebhookDelivery(uuid.New(), "task-completed", json.RawMessage(`{}`))
		delivery.Attempts = 3
		mock := &mockWebhookManager{
			listExhausted: func(_ context.Context, _ int) ([]*domain.WebhookDelivery, error) {
				return []*domain.WebhookDelivery{delivery}, nil
			},
		}
		handler := NewWebhookHandler(mock, slog.Default())

		rec := doRequest(handler.ListExhaustedDeliveries, http.MethodGet, "/api/webhooks/deliveries/exhausted", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		var resp []DeliveryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, 3, resp[0].Attempts)
	})
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"batch_not_found", service.ErrBatchNotFound, http.StatusNotFound},
		{"task_not_found", service.ErrTaskNotFound, http.StatusNotFound},
		{"webhook_not_found", webhook.ErrWebhookNotFound, http.StatusNotFound},
		{"not_claimable", service.ErrTaskNotClaimable, http.StatusConflict},
		{"invalid_argument", service.ErrInvalidArgument, http.StatusBadRequest},
		{"invalid_transition", service.ErrInvalidTransition, http.StatusBadRequest},
		{"retry_exhausted", service.ErrRetryExhausted, http.StatusBadRequest},
		{"dependency_cycle", service.ErrDependencyCycle, http.StatusBadRequest},
		{"invalid_webhook", webhook.ErrInvalidWebhook, http.StatusBadRequest},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
		})
	}

	t.Run("unknown_errors_get_generic_message", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(assert.AnError))
		assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
	})
}

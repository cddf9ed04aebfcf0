package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/batchflow/internal/domain"
	"github.com/phrazzld/batchflow/internal/events"
	"github.com/phrazzld/batchflow/internal/store"
)

// memTxRunner runs the transaction function directly. The in-memory stores
// ignore the tx handle, so WithTx returns the store itself.
type memTxRunner struct{}

func (memTxRunner) RunInTransaction(ctx context.Context, fn store.TxFn) error {
	return fn(ctx, nil)
}

// memBatchStore is an in-memory store.BatchStore for service tests.
type memBatchStore struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*domain.Batch
}

func newMemBatchStore() *memBatchStore {
	return &memBatchStore{batches: make(map[uuid.UUID]*domain.Batch)}
}

func (m *memBatchStore) Create(_ context.Context, batch *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[batch.ID]; ok {
		return store.ErrDuplicate
	}
	cp := *batch
	m.batches[batch.ID] = &cp
	return nil
}

func (m *memBatchStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch, ok := m.batches[id]
	if !ok {
		return nil, store.ErrBatchNotFound
	}
	cp := *batch
	return &cp, nil
}

func (m *memBatchStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	return m.GetByID(ctx, id)
}

func (m *memBatchStore) UpdateStatusAndCounters(_ context.Context, id uuid.UUID, status domain.BatchStatus, counters domain.BatchCounters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch, ok := m.batches[id]
	if !ok {
		return store.ErrBatchNotFound
	}
	batch.Status = status
	batch.Counters = counters
	batch.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memBatchStore) WithTx(_ *sql.Tx) store.BatchStore { return m }

// memTaskStore is an in-memory store.TaskStore for service tests.
type memTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
	// deps maps dependent task ID to the IDs it depends on.
	deps map[uuid.UUID][]uuid.UUID
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
		deps:  make(map[uuid.UUID][]uuid.UUID),
	}
}

func (m *memTaskStore) Create(_ context.Context, task *domain.Task, dependsOn []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; ok {
		return store.ErrDuplicate
	}
	cp := *task
	m.tasks[task.ID] = &cp
	if len(dependsOn) > 0 {
		m.deps[task.ID] = append([]uuid.UUID(nil), dependsOn...)
	}
	return nil
}

func (m *memTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	cp := *task
	return &cp, nil
}

func (m *memTaskStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return m.GetByID(ctx, id)
}

func (m *memTaskStore) ListReady(_ context.Context, limit int, taskTypes []string) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	typeFilter := make(map[string]bool, len(taskTypes))
	for _, t := range taskTypes {
		typeFilter[t] = true
	}

	var ready []*domain.Task
	for _, task := range m.tasks {
		if task.Status != domain.TaskStatusQueued {
			continue
		}
		if len(typeFilter) > 0 && !typeFilter[task.Type] {
			continue
		}
		if m.unsatisfiedLocked(task.ID) > 0 {
			continue
		}
		cp := *task
		ready = append(ready, &cp)
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	if len(ready) > limit {
		ready = ready[:limit]
	}
	return ready, nil
}

func (m *memTaskStore) Claim(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	if task.Status != domain.TaskStatusQueued {
		return nil, fmt.Errorf("%w: task %s is not claimable", store.ErrUpdateFailed, id)
	}
	now := time.Now().UTC()
	task.Status = domain.TaskStatusProcessing
	task.StartedAt = &now
	task.UpdatedAt = now
	cp := *task
	return &cp, nil
}

func (m *memTaskStore) Update(_ context.Context, id uuid.UUID, update store.TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	task.Status = update.Status
	task.Error = update.Error
	if update.Output != nil {
		task.Output = update.Output
	}
	if update.RetryCount != nil {
		task.RetryCount = *update.RetryCount
	}
	if update.StartedAt != nil {
		task.StartedAt = update.StartedAt
	}
	if update.ClearCompletedAt {
		task.CompletedAt = nil
	} else if update.CompletedAt != nil {
		task.CompletedAt = update.CompletedAt
	}
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memTaskStore) ListByBatch(_ context.Context, batchID uuid.UUID, status *domain.TaskStatus, limit int) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []*domain.Task
	for _, task := range m.tasks {
		if task.BatchID == nil || *task.BatchID != batchID {
			continue
		}
		if status != nil && task.Status != *status {
			continue
		}
		cp := *task
		tasks = append(tasks, &cp)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (m *memTaskStore) ListFailedRetryable(_ context.Context, batchID uuid.UUID, limit int) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tasks []*domain.Task
	for _, task := range m.tasks {
		if task.BatchID == nil || *task.BatchID != batchID {
			continue
		}
		if task.Status != domain.TaskStatusFailed || task.RetryCount >= task.MaxRetries {
			continue
		}
		cp := *task
		tasks = append(tasks, &cp)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (m *memTaskStore) ListDependencies(_ context.Context, id uuid.UUID) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deps []*domain.Task
	for _, depID := range m.deps[id] {
		if dep, ok := m.tasks[depID]; ok {
			cp := *dep
			deps = append(deps, &cp)
		}
	}
	return deps, nil
}

func (m *memTaskStore) ListDependents(_ context.Context, id uuid.UUID) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dependents []*domain.Task
	for dependentID, depIDs := range m.deps {
		for _, depID := range depIDs {
			if depID != id {
				continue
			}
			if task, ok := m.tasks[dependentID]; ok {
				cp := *task
				dependents = append(dependents, &cp)
			}
			break
		}
	}
	return dependents, nil
}

func (m *memTaskStore) CountUnsatisfiedDependencies(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsatisfiedLocked(id), nil
}

func (m *memTaskStore) unsatisfiedLocked(id uuid.UUID) int {
	count := 0
	for _, depID := range m.deps[id] {
		dep, ok := m.tasks[depID]
		if !ok || dep.Status != domain.TaskStatusCompleted {
			count++
		}
	}
	return count
}

func (m *memTaskStore) WithTx(_ *sql.Tx) store.TaskStore { return m }

// capturingBus records every published event in order.
type capturingBus struct {
	mu     sync.Mutex
	events []*events.Event
}

func (b *capturingBus) Publish(_ context.Context, event *events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *capturingBus) published() []*events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*events.Event(nil), b.events...)
}

func (b *capturingBus) typesPublished() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make([]events.EventType, 0, len(b.events))
	for _, e := range b.events {
		types = append(types, e.Type)
	}
	return types
}

var (
	_ store.BatchStore = (*memBatchStore)(nil)
	_ store.TaskStore  = (*memTaskStore)(nil)
	_ events.Publisher = (*capturingBus)(nil)
)

// Package task runs the background dispatch loop: it polls for ready work,
// claims tasks so no two workers run the same one, executes them through
// registered executors, and reports the outcome back to the batch service.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/phrazzld/batchflow/internal/domain"
)

// Executor performs the work of one task type. Execute receives the task's
// input document and returns the output document persisted on completion.
// A returned error fails the task; retries go through the batch retry path,
// so executors should not retry internally.
type Executor interface {
	// TaskType returns the task type this executor handles.
	TaskType() string

	// Execute runs the task to completion or error.
	Execute(ctx context.Context, task *domain.Task) (json.RawMessage, error)
}

// Registry maps task types to their executors. Executors are registered at
// startup; registration after the dispatcher starts is not supported.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds an executor for its task type. Returns an error if the type
// is already registered.
func (r *Registry) Register(executor Executor) error {
	if executor == nil {
		return fmt.Errorf("executor cannot be nil")
	}
	taskType := executor.TaskType()
	if taskType == "" {
		return fmt.Errorf("executor task type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executors[taskType]; ok {
		return fmt.Errorf("executor for task type %q already registered", taskType)
	}
	r.executors[taskType] = executor
	return nil
}

// Get returns the executor for the given task type, or false if none is
// registered.
func (r *Registry) Get(taskType string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	executor, ok := r.executors[taskType]
	return executor, ok
}

// TaskTypes returns the registered task types in sorted order. The
// dispatcher polls only for these, so tasks of unknown types stay queued
// until an executor for them ships.
func (r *Registry) TaskTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc struct {
	Type string
	Fn   func(ctx context.Context, task *domain.Task) (json.RawMessage, error)
}

func (e ExecutorFunc) TaskType() string { return e.Type }

func (e ExecutorFunc) Execute(ctx context.Context, task *domain.Task) (json.RawMessage, error) {
	return e.Fn(ctx, task)
}

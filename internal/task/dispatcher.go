package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/batchflow/internal/config"
	"github.com/phrazzld/batchflow/internal/domain"
	"github.com/phrazzld/batchflow/internal/service"
)

// Lifecycle is the slice of the batch service the dispatcher needs: finding
// ready work, claiming it, and reporting the outcome.
type Lifecycle interface {
	ListNextReadyTasks(ctx context.Context, limit int, taskTypes []string) ([]*domain.Task, error)
	ClaimTask(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status domain.TaskStatus, output json.RawMessage, taskErr *string) ([]uuid.UUID, error)
}

// Dispatcher polls for dispatchable tasks and runs them on a worker pool.
// Multiple dispatcher instances can share one database; the conditional
// claim guarantees each task runs on exactly one of them.
type Dispatcher struct {
	lifecycle Lifecycle
	registry  *Registry
	cfg       config.DispatchConfig
	logger    *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewDispatcher creates a dispatcher. Zero config values fall back to
// defaults: 2 workers, 5s poll interval, 10 tasks per poll.
func NewDispatcher(lifecycle Lifecycle, registry *Registry, cfg config.DispatchConfig, logger *slog.Logger) (*Dispatcher, error) {
	if lifecycle == nil {
		return nil, errors.New("lifecycle cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}

	return &Dispatcher{
		lifecycle: lifecycle,
		registry:  registry,
		cfg:       cfg,
		logger:    logger.With("component", "dispatcher"),
	}, nil
}

// Start launches the poll loop and worker pool. It returns immediately;
// call Stop to shut down.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.cancel != nil {
		return errors.New("dispatcher already started")
	}
	if len(d.registry.TaskTypes()) == 0 {
		return errors.New("no executors registered")
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	group, gctx := errgroup.WithContext(ctx)
	d.group = group

	work := make(chan *domain.Task)

	group.Go(func() error {
		defer close(work)
		return d.pollLoop(gctx, work)
	})
	for i := 0; i < d.cfg.WorkerCount; i++ {
		worker := i
		group.Go(func() error {
			return d.workerLoop(gctx, worker, work)
		})
	}

	d.logger.Info("dispatcher started",
		"workers", d.cfg.WorkerCount,
		"poll_interval", d.cfg.PollInterval,
		"task_types", d.registry.TaskTypes())

	return nil
}

// Stop cancels the loops and waits for in-flight tasks to finish.
func (d *Dispatcher) Stop() error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()
	err := d.group.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	d.logger.Info("dispatcher stopped")
	return err
}

// pollLoop fetches ready tasks and feeds them to the workers. Empty polls
// and poll errors back off by the configured interval; errors are logged,
// not fatal, so a transient database outage does not kill the dispatcher.
func (d *Dispatcher) pollLoop(ctx context.Context, work chan<- *domain.Task) error {
	taskTypes := d.registry.TaskTypes()

	for {
		tasks, err := d.lifecycle.ListNextReadyTasks(ctx, d.cfg.BatchSize, taskTypes)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("failed to poll for ready tasks", "error", err)
			tasks = nil
		}

		for _, task := range tasks {
			select {
			case work <- task:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if len(tasks) > 0 {
			continue
		}

		select {
		case <-time.After(d.cfg.PollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// workerLoop claims and executes tasks until the work channel closes.
func (d *Dispatcher) workerLoop(ctx context.Context, worker int, work <-chan *domain.Task) error {
	logger := d.logger.With("worker", worker)

	for task := range work {
		claimed, err := d.lifecycle.ClaimTask(ctx, task.ID)
		if err != nil {
			// Someone else got there first; polling will surface the next
			// candidate.
			if errors.Is(err, service.ErrTaskNotClaimable) || errors.Is(err, service.ErrTaskNotFound) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("failed to claim task", "task_id", task.ID, "error", err)
			continue
		}

		d.run(ctx, logger, claimed)
	}

	return nil
}

// run executes one claimed task and reports the terminal status. Executor
// panics are contained and fail the task instead of the worker.
func (d *Dispatcher) run(ctx context.Context, logger *slog.Logger, task *domain.Task) {
	executor, ok := d.registry.Get(task.Type)
	if !ok {
		// Only registered types are polled for; this means the registry
		// changed under us.
		msg := fmt.Sprintf("no executor registered for task type %q", task.Type)
		d.report(ctx, logger, task, nil, &msg)
		return
	}

	started := time.Now()
	output, execErr := d.execute(ctx, executor, task)
	elapsed := time.Since(started)

	if execErr != nil {
		msg := execErr.Error()
		logger.Warn("task execution failed",
			"task_id", task.ID,
			"task_type", task.Type,
			"elapsed", elapsed,
			"error", execErr)
		d.report(ctx, logger, task, nil, &msg)
		return
	}

	logger.Info("task executed",
		"task_id", task.ID,
		"task_type", task.Type,
		"elapsed", elapsed)
	d.report(ctx, logger, task, output, nil)
}

func (d *Dispatcher) execute(ctx context.Context, executor Executor, task *domain.Task) (output json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return executor.Execute(ctx, task)
}

func (d *Dispatcher) report(ctx context.Context, logger *slog.Logger, task *domain.Task, output json.RawMessage, execErr *string) {
	status := domain.TaskStatusCompleted
	if execErr != nil {
		status = domain.TaskStatusFailed
	}

	unblocked, err := d.lifecycle.UpdateTaskStatus(ctx, task.ID, status, output, execErr)
	if err != nil {
		logger.Error("failed to report task status",
			"task_id", task.ID,
			"status", status,
			"error", err)
		return
	}
	if len(unblocked) > 0 {
		logger.Debug("dependents unblocked",
			"task_id", task.ID,
			"count", len(unblocked))
	}
}

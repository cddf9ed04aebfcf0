package domain

// TaskStatus represents the current state of a task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsValid reports whether s is one of the known task statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further automatic
// transition. Failed tasks may still be re-queued through the explicit
// retry path.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransitionTo reports whether a transition from s to next is permitted
// by the task state machine:
//
//	queued → processing → {completed, failed}
//	failed → queued (explicit retry only)
//
// A transition to the current status is treated as a permitted no-op;
// callers detect that case with s == next and skip mutation.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case TaskStatusQueued:
		return next == TaskStatusProcessing
	case TaskStatusProcessing:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	case TaskStatusFailed:
		return next == TaskStatusQueued
	default:
		return false
	}
}

// BatchStatus represents the aggregate state of a batch, derived from the
// states of its member tasks.
type BatchStatus string

// Possible batch status values.
const (
	BatchStatusPending             BatchStatus = "pending"
	BatchStatusProcessing          BatchStatus = "processing"
	BatchStatusCompleted           BatchStatus = "completed"
	BatchStatusFailed              BatchStatus = "failed"
	BatchStatusCompletedWithErrors BatchStatus = "completed_with_errors"
)

// IsValid reports whether s is one of the known batch statuses.
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusPending, BatchStatusProcessing, BatchStatusCompleted,
		BatchStatusFailed, BatchStatusCompletedWithErrors:
		return true
	}
	return false
}

// IsTerminal reports whether the batch has reached a final aggregate state.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed ||
		s == BatchStatusCompletedWithErrors
}

// DeriveBatchStatus computes the aggregate batch status from its counters.
// While tasks remain outstanding the batch is pending (nothing started yet)
// or processing. Once every task is terminal:
//
//	failed == 0    → completed
//	completed == 0 → failed
//	otherwise      → completed_with_errors
//
// The derivation must run inside the same transaction as the counter update
// that triggered it, so two concurrent completions cannot both observe
// "remaining == 0" and finalize inconsistently.
func DeriveBatchStatus(c BatchCounters) BatchStatus {
	if c.Total == 0 {
		return BatchStatusPending
	}
	if c.Completed+c.Failed < c.Total {
		if c.Processing > 0 || c.Completed > 0 || c.Failed > 0 {
			return BatchStatusProcessing
		}
		return BatchStatusPending
	}
	switch {
	case c.Failed == 0:
		return BatchStatusCompleted
	case c.Completed == 0:
		return BatchStatusFailed
	default:
		return BatchStatusCompletedWithErrors
	}
}

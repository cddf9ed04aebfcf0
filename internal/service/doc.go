// Package service implements the task lifecycle manager: batch and task
// creation, status transitions with transactional counter aggregation,
// dependency-aware dispatch queries, retry and cancellation flows. All
// correctness under concurrency derives from store transactions; the
// service holds no in-process locks. Lifecycle events are published only
// after the transaction that describes them has committed.
package service

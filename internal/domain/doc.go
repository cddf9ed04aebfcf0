// Package domain contains the core business entities and rules of the
// batch/task orchestration engine: batches, tasks, dependency edges, webhook
// subscriptions and deliveries, along with the status state machine that
// governs their lifecycles. Domain types are persistence-agnostic; stores
// and services depend on this package, never the other way around.
package domain

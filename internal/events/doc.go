// Package events implements the lifecycle event bus. Events are published
// only after the store transaction describing the change has committed; a
// handler failure is logged and isolated, never rolled back into the
// producing flow. Delivery is at-least-once, so handlers must tolerate
// redelivery. Events sharing a batch ID reach each handler in emission
// order; there is no ordering across batches. Payloads carry only minimal
// identifiers; consumers re-query authoritative state when they need more.
package events

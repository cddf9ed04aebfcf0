// Package store defines persistence interfaces and shared errors for the
// orchestration engine. Implementations live under internal/platform.
package store

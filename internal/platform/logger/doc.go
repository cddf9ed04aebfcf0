// Package logger provides structured logging functionality for the
// application using Go's standard library log/slog package. It configures
// the process-wide JSON logger and offers context helpers so request- and
// task-scoped loggers travel with the context they belong to.
package logger

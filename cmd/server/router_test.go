package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/batchflow/internal/config"
)

// newRouterTestApp builds an application with just enough wiring to exercise
// the router. Handlers are never invoked past routing in these tests, so the
// services stay nil.
func newRouterTestApp(t *testing.T) *application {
	t.Helper()
	return &application{
		config: &config.Config{
			Server: config.ServerConfig{Port: 8080, LogLevel: "error"},
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSetupRouter_HealthEndpoint(t *testing.T) {
	t.Parallel()

	app := newRouterTestApp(t)
	router := app.setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSetupRouter_UnknownRoute(t *testing.T) {
	t.Parallel()

	app := newRouterTestApp(t)
	router := app.setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetupRouter_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	app := newRouterTestApp(t)
	router := app.setupRouter()

	req := httptest.NewRequest(http.MethodDelete, "/api/batches", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRunMigrations_UnknownCommand(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{URL: "postgres://localhost:5432/batchflow_test"},
	}

	err := runMigrations(cfg, "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown migration command "bogus"`)
}

package server_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alkime/dictate/internal/config"
	"github.com/alkime/dictate/internal/dictation"
	"github.com/alkime/dictate/internal/server"
	"github.com/alkime/dictate/internal/store"
)

type stubPhase struct {
	phase dictation.Phase
}

func (s stubPhase) Phase() dictation.Phase { return s.phase }

type stubCircuit struct {
	open bool
	err  error
}

func (s stubCircuit) ProviderID() string { return "anthropic" }

func (s stubCircuit) IsCircuitOpen(context.Context, string) (bool, error) {
	return s.open, s.err
}

type stubOutcomes struct {
	outcomes  []store.Outcome
	lastLimit int
	err       error
}

func (s *stubOutcomes) RecentOutcomes(_ context.Context, limit int) ([]store.Outcome, error) {
	s.lastLimit = limit
	return s.outcomes, s.err
}

func newTestServer(t *testing.T, phase dictation.Phase, circuit stubCircuit, outcomes *stubOutcomes) *server.Server {
	t.Helper()

	cfg := &config.Config{
		Env:        "test",
		Port:       "8080",
		HSTSMaxAge: 31536000,
		LogLevel:   "info",
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors during tests
	}))

	return server.New(cfg, logger, stubPhase{phase: phase}, circuit, outcomes)
}

func get(t *testing.T, srv *server.Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, dictation.PhaseIdle, stubCircuit{}, &stubOutcomes{})

	w := get(t, srv, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.Contains(t, w.Body.String(), "dictate")
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, dictation.PhaseRecording, stubCircuit{open: true}, &stubOutcomes{})

	w := get(t, srv, "/api/v1/status")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"phase":"recording"`)
	assert.Contains(t, w.Body.String(), `"circuitOpen":true`)
	assert.Contains(t, w.Body.String(), `"provider":"anthropic"`)
}

func TestStatusEndpoint_CircuitReadError(t *testing.T) {
	srv := newTestServer(t, dictation.PhaseIdle,
		stubCircuit{err: errors.New("db locked")}, &stubOutcomes{})

	w := get(t, srv, "/api/v1/status")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCorrectionsEndpoint(t *testing.T) {
	outcomes := &stubOutcomes{outcomes: []store.Outcome{
		{
			TranscriptionID: "t-1",
			Success:         true,
			Detail:          "corrected text",
			DurationMs:      120,
			CreatedAt:       time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		},
	}}
	srv := newTestServer(t, dictation.PhaseIdle, stubCircuit{}, outcomes)

	w := get(t, srv, "/api/v1/corrections")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, outcomes.lastLimit, "default limit should apply")
	assert.Contains(t, w.Body.String(), "t-1")
}

func TestCorrectionsEndpoint_Limit(t *testing.T) {
	outcomes := &stubOutcomes{}
	srv := newTestServer(t, dictation.PhaseIdle, stubCircuit{}, outcomes)

	w := get(t, srv, "/api/v1/corrections?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, outcomes.lastLimit)

	w = get(t, srv, "/api/v1/corrections?limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(t, srv, "/api/v1/corrections?limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

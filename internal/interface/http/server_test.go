package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarvis-hub/jarvis/internal/interface/http/handlers"
)

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealth_NoChecks(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})

	rec, body := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["healthy"])
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestReady_FailingCheck(t *testing.T) {
	ready := handlers.NewCompositeHealthChecker("1.0.0")
	ready.AddCheck("database", func(context.Context) error { return nil })
	ready.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	s := NewServer(DefaultConfig(), Dependencies{Readiness: ready})

	rec, body := get(t, s, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["healthy"])
	assert.Equal(t, "Some checks failed: redis", body["message"])

	checks := body["checks"].(map[string]any)
	assert.Equal(t, true, checks["database"].(map[string]any)["healthy"])
	assert.Equal(t, "connection refused", checks["redis"].(map[string]any)["message"])
}

func TestStats(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{
		Stats: map[string]StatsFunc{
			"router": func(context.Context) any { return map[string]int{"dispatched": 3} },
		},
	})

	rec, body := get(t, s, "/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["router"].(map[string]any)["dispatched"])
	assert.Contains(t, body, "uptime")
}

func TestStats_ReceiveRequestContext(t *testing.T) {
	var got context.Context
	s := NewServer(DefaultConfig(), Dependencies{
		Stats: map[string]StatsFunc{
			"database": func(ctx context.Context) any {
				got = ctx
				return map[string]bool{"healthy": true}
			},
		},
	})

	rec, body := get(t, s, "/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["database"].(map[string]any)["healthy"])
	assert.NotNil(t, got)
}

func TestNotFound(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})

	rec, body := get(t, s, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestConfig_Address(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 9000
	assert.Equal(t, "127.0.0.1:9000", cfg.Address())
}

func TestShutdown_NotRunning(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})
	assert.NoError(t, s.Shutdown(context.Background()))
	assert.Zero(t, s.Uptime())
}

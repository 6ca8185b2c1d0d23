package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/broker"
	"github.com/fxrunner/engine/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	deps := &Handlers{Log: zerolog.Nop(), Cfg: config.Config{}, Router: broker.NewRouter(nil), Hub: NewHub(zerolog.Nop(), nil)}
	srv, err := NewServer(DefaultServerConfig(), zerolog.Nop(), deps)
	require.NoError(t, err)
	return srv
}

func TestRequestIDMiddlewareGeneratesIDWhenAbsent(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)

	srv.router.ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDMiddlewarePreservesIncomingID(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req.Header.Set("X-Request-ID", "fixed-id")

	srv.router.ServeHTTP(rec, req)

	require.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}

func TestCORSMiddlewareAllowsLocalhostOrigin(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	srv.router.ServeHTTP(rec, req)

	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddlewareRejectsUnknownOrigin(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")

	srv.router.ServeHTTP(rec, req)

	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRouteReturnsJSONNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does/not/exist", nil)

	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/keygate/internal/config"
	"github.com/friendsincode/keygate/internal/version"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Environment:         "test",
		HTTPBind:            "127.0.0.1",
		HTTPPort:            0,
		DBBackend:           config.DatabaseSQLite,
		DBDSN:               ":memory:",
		JWTSigningKey:       "server-test-key",
		SessionTTL:          time.Hour,
		DefaultDurationDays: 30,
		RateLimitPerMinute:  30,
	}
	srv, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestHealthzAndVersion(t *testing.T) {
	srv := newTestServer(t)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status %d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/version", nil))
	var info version.Info
	if err := json.NewDecoder(rr.Body).Decode(&info); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if info.Version != version.Version {
		t.Fatalf("version=%q, want %q", info.Version, version.Version)
	}
}

func TestRoutesAreWired(t *testing.T) {
	srv := newTestServer(t)
	if srv.MetricsServer() != nil {
		t.Fatal("expected no metrics listener without a bind address")
	}

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/licenses/UNKNOWN0UNKNOWN0", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("validate status %d, want 404", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/licenses", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("operator list without token status %d, want 401", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rr.Code)
	}
}

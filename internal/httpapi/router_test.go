package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"photokeep/internal/config"
	"photokeep/internal/metrics"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	m := metrics.New()
	return New(Deps{
		Cfg:     &config.Config{Env: "test", AllowedOrigins: []string{"*"}},
		Metrics: m,
	})
}

func TestMetricsEndpointServesPrometheusExposition(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown route, got %d", rec.Code)
	}
}

func TestMergePersonsRejectsEmptyBody(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/persons/merge", nil)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty merge body, got %d: %s", rec.Code, rec.Body.String())
	}
}

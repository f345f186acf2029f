package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/freightarb/internal/domain"
	"github.com/alanyoungcy/freightarb/internal/server/handler"
)

type stubAnalyzer struct{}

func (stubAnalyzer) Status(context.Context) (domain.StatusReport, error) {
	return domain.StatusReport{Configured: true}, nil
}

func (stubAnalyzer) Freights(context.Context) (domain.FreightListing, error) {
	return domain.FreightListing{}, nil
}

func (stubAnalyzer) Analyze(context.Context) (domain.AnalysisReport, error) {
	return domain.AnalysisReport{}, domain.ErrNoData
}

func (stubAnalyzer) RouteDetail(context.Context, string) (domain.RouteDetail, error) {
	return domain.RouteDetail{}, domain.ErrNotFound
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

func testServer(cfg Config, limiter domain.RateLimiter) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := Handlers{
		Health:   handler.NewHealthHandler(),
		Analysis: handler.NewAnalysisHandler(stubAnalyzer{}, logger),
	}
	return NewServer(cfg, handlers, nil, limiter, logger).Handler()
}

func get(h http.Handler, path string, header map[string]string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRoutes(t *testing.T) {
	h := testServer(Config{}, nil)

	assert.Equal(t, http.StatusOK, get(h, "/health", nil))
	assert.Equal(t, http.StatusOK, get(h, "/api/health", nil))
	assert.Equal(t, http.StatusOK, get(h, "/api/status", nil))
	assert.Equal(t, http.StatusOK, get(h, "/api/freights", nil))
	assert.Equal(t, http.StatusNotFound, get(h, "/api/analyze", nil))
	assert.Equal(t, http.StatusNotFound, get(h, "/api/route/PL-DE", nil))
	assert.Equal(t, http.StatusBadRequest, get(h, "/api/route/nope", nil))
	// History endpoints are not registered without a history handler.
	assert.Equal(t, http.StatusNotFound, get(h, "/api/scans", nil))
}

func TestAuthLeavesHealthPublic(t *testing.T) {
	h := testServer(Config{APIKey: "secret"}, nil)

	assert.Equal(t, http.StatusOK, get(h, "/health", nil))
	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/status", nil))
	assert.Equal(t, http.StatusOK, get(h, "/api/status", map[string]string{"X-API-Key": "secret"}))
}

func TestRateLimitApplied(t *testing.T) {
	h := testServer(Config{RateLimit: 1, RateLimitWindow: time.Minute}, denyAll{})
	assert.Equal(t, http.StatusTooManyRequests, get(h, "/api/status", nil))

	h = testServer(Config{}, denyAll{})
	assert.Equal(t, http.StatusOK, get(h, "/api/status", nil))
}

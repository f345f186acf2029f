package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alanyoungcy/freightarb/internal/domain"
)

// Analyzer is the service behind the freight endpoints.
type Analyzer interface {
	Status(ctx context.Context) (domain.StatusReport, error)
	Freights(ctx context.Context) (domain.FreightListing, error)
	Analyze(ctx context.Context) (domain.AnalysisReport, error)
	RouteDetail(ctx context.Context, code string) (domain.RouteDetail, error)
}

// AnalysisHandler serves status, listing, analysis and route drill-down.
type AnalysisHandler struct {
	svc      Analyzer
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAnalysisHandler creates an AnalysisHandler.
func NewAnalysisHandler(svc Analyzer, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		svc:      svc,
		validate: newValidator(),
		logger:   logger.With(slog.String("handler", "analysis")),
	}
}

// Status reports whether the marketplace credentials work.
// GET /api/status
func (h *AnalysisHandler) Status(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Status(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "api check failed", err)
		return
	}
	if !report.Configured {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success":       false,
			"message":       "api credentials not configured, check the environment variables",
			"configured":    false,
			"required_vars": report.RequiredVars,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "api ready",
		"configured":    true,
		"required_vars": report.RequiredVars,
		"has_token":     report.HasToken,
		"timestamp":     report.Timestamp,
	})
}

// Freights returns a preview of the current listing.
// GET /api/freights
func (h *AnalysisHandler) Freights(w http.ResponseWriter, r *http.Request) {
	listing, err := h.svc.Freights(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "fetching freights failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     fmt.Sprintf("fetched %d freights", listing.TotalCount),
		"freights":    listing.Freights,
		"total_count": listing.TotalCount,
		"summary":     listing.Summary,
	})
}

// Analyze runs a detection pass.
// GET /api/analyze
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Analyze(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "analysis failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         fmt.Sprintf("analysis complete, %d opportunities found", report.Summary.OpportunitiesFound),
		"run_id":          report.RunID,
		"generated_at":    report.GeneratedAt,
		"summary":         report.Summary,
		"opportunities":   report.Opportunities,
		"freights_sample": report.Sample,
	})
}

type routeParams struct {
	Code string `validate:"required,route_code"`
}

// Route returns every offer on one route with its statistics.
// GET /api/route/{code}
func (h *AnalysisHandler) Route(w http.ResponseWriter, r *http.Request) {
	params := routeParams{Code: strings.TrimSpace(r.PathValue("code"))}
	if err := h.validate.Struct(params); err != nil {
		writeFailure(w, http.StatusBadRequest, fmt.Sprintf("invalid route code %q, expected e.g. PL-DE", params.Code))
		return
	}

	detail, err := h.svc.RouteDetail(r.Context(), params.Code)
	if err != nil {
		writeServiceError(w, r, h.logger, "route lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"route":            detail.Route,
		"freights":         detail.Freights,
		"statistics":       detail.Statistics,
		"route_statistics": detail.RouteStatistics,
	})
}

package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/alanyoungcy/freightarb/internal/domain"
)

// HistoryHandler exposes recent scans and the audit log. Either source may
// be nil, in which case its endpoint answers 503.
type HistoryHandler struct {
	scans    domain.ScanHistory
	audit    domain.AuditStore
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(scans domain.ScanHistory, audit domain.AuditStore, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		scans:    scans,
		audit:    audit,
		validate: newValidator(),
		logger:   logger.With(slog.String("handler", "history")),
	}
}

type pageParams struct {
	Limit  int `validate:"gte=1,lte=500"`
	Offset int `validate:"gte=0"`
}

// parsePage reads limit and offset with defaults of 20 and 0.
func (h *HistoryHandler) parsePage(r *http.Request) (pageParams, bool) {
	p := pageParams{Limit: 20}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, false
		}
		p.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, false
		}
		p.Offset = n
	}
	return p, h.validate.Struct(p) == nil
}

// Scans returns the most recent scan events, newest first.
// GET /api/scans
func (h *HistoryHandler) Scans(w http.ResponseWriter, r *http.Request) {
	if h.scans == nil {
		writeFailure(w, http.StatusServiceUnavailable, "scan history requires redis")
		return
	}
	page, ok := h.parsePage(r)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "limit must be 1-500 and offset >= 0")
		return
	}

	raw, err := h.scans.StreamRecent(r.Context(), domain.StreamScans, page.Limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "reading scan history failed", err)
		return
	}
	scans := make([]json.RawMessage, 0, len(raw))
	for _, b := range raw {
		if json.Valid(b) {
			scans = append(scans, b)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "scans": scans})
}

// Audit lists audit log entries, newest first.
// GET /api/audit
func (h *HistoryHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeFailure(w, http.StatusServiceUnavailable, "audit log requires postgres")
		return
	}
	page, ok := h.parsePage(r)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "limit must be 1-500 and offset >= 0")
		return
	}

	opts := domain.ListOpts{Limit: page.Limit, Offset: page.Offset}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		opts.Since = &since
	}

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "reading audit log failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "entries": entries})
}

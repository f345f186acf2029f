package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/alanyoungcy/freightarb/internal/domain"
)

var routeCodePattern = regexp.MustCompile(`^[A-Za-z]{2}-[A-Za-z]{2}$`)

// newValidator returns a validator with the route_code tag registered.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("route_code", func(fl validator.FieldLevel) bool {
		return routeCodePattern.MatchString(fl.Field().String())
	})
	return v
}

// writeJSON marshals v and writes it with the given status. Marshal failures
// degrade to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"success":false,"message":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeFailure sends {success:false, message}.
func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAuth),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and answers with the mapped status.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	level := slog.LevelWarn
	if status == http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.LogAttrs(r.Context(), level, msg,
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	writeFailure(w, status, msg+": "+err.Error())
}

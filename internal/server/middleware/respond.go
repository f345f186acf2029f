package middleware

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// writeFailure sends the API's {success:false, message} envelope.
func writeFailure(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(map[string]any{"success": false, "message": msg})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

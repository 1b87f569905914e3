// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/coursecast/internal/log"
	"github.com/ManuGH/coursecast/internal/playback"
)

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = "2"

// ErrorResponse is the body of a failed token request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeTokenError maps an Issue error to its status and client code.
func writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	code, status, message := playback.Classify(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	if status >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "token.error").
			Str(log.FieldReason, code).
			Msg("token request failed")
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, ErrorResponse{Success: false, Code: code, Error: message})
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package problem writes RFC 7807 problem details responses.
package problem

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ManuGH/coursecast/internal/log"
)

const (
	// HeaderRequestID is the canonical header for request correlation.
	HeaderRequestID = "X-Request-ID"
	// JSONKeyRequestID is the body field carrying the request id.
	JSONKeyRequestID = "requestId"
	// ContentType is the media type of every problem response.
	ContentType = "application/problem+json"
)

// Write writes a problem details response.
//
//   - type: "coursecast/" + lower-cased code, a stable machine identifier.
//   - title: http.StatusText(status).
//   - code: stable short code clients branch on (e.g. "TOKEN_EXPIRED").
//   - error: human-readable explanation, also mirrored into detail.
//
// Reserved keys in extra are ignored.
func Write(w http.ResponseWriter, r *http.Request, status int, code, detail string, extra map[string]any) {
	reqID := ""
	if r != nil {
		reqID = log.RequestIDFromContext(r.Context())
	}
	if reqID == "" {
		reqID = w.Header().Get(HeaderRequestID)
	}

	res := map[string]any{
		"type":   "coursecast/" + strings.ToLower(code),
		"title":  http.StatusText(status),
		"status": status,
		"code":   code,
	}
	if reqID != "" {
		res[JSONKeyRequestID] = reqID
	}
	if detail != "" {
		res["detail"] = detail
		res["error"] = detail
	}
	if r != nil {
		res["instance"] = r.URL.EscapedPath()
	}

	for k, v := range extra {
		switch k {
		case "type", "title", "status", "detail", "instance", "code", "error", JSONKeyRequestID:
			logger := log.WithComponent("problem")
			logger.Warn().Str("key", k).Str("code", code).Msg("ignoring reserved key in problem extras")
			continue
		}
		res[k] = v
	}

	if reqID != "" {
		w.Header().Set(HeaderRequestID, reqID)
	}
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(res); err != nil {
		logger := log.WithComponent("problem")
		logger.Error().
			Err(err).
			Str("code", code).
			Int("status", status).
			Msg("failed to encode problem response")
	}
}

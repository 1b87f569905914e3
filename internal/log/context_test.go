// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithRequestID(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		requestID string
		want      string
	}{
		{name: "nil context", ctx: nil, requestID: "test-id-123", want: "test-id-123"},
		{name: "background context", ctx: context.Background(), requestID: "req-456", want: "req-456"},
		{name: "empty request ID", ctx: context.Background(), requestID: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			//nolint:staticcheck // nil context is part of the contract under test
			ctx := ContextWithRequestID(tt.ctx, tt.requestID)
			assert.Equal(t, tt.want, RequestIDFromContext(ctx))
		})
	}
}

func TestWithContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "rid-1")
	l := WithContext(ctx, logger)
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "rid-1", entry[FieldRequestID])
}

func TestContextWithSubjectUpdatesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := logger.WithContext(context.Background())

	ctx = ContextWithSubject(ctx, "alice")
	assert.Equal(t, "alice", SubjectFromContext(ctx))

	zerolog.Ctx(ctx).Info().Msg("served")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "alice", entry[FieldUserID])
}

func TestWithContextWithoutFieldsIsUnchanged(t *testing.T) {
	var buf bytes.Buffer
	logger := WithContext(context.Background(), zerolog.New(&buf))
	logger.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, FieldRequestID)
	assert.NotContains(t, entry, FieldUserID)
}

func TestFromContextFallsBackToBase(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.NotEqual(t, zerolog.Disabled, l.GetLevel())
}

func TestMiddlewareStoresLogger(t *testing.T) {
	var seen *zerolog.Logger
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = zerolog.Ctx(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.NotNil(t, seen)
	assert.NotEqual(t, zerolog.Disabled, seen.GetLevel())
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	require.Error(t, SetLevel("loud"))
	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

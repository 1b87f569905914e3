// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	subjectKey
)

// ContextWithRequestID stores the request id used to correlate log lines.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// ContextWithSubject records the authenticated user of the request. A
// request logger already stored in ctx gains the user_id field in place, so
// the access log line names the caller too.
func ContextWithSubject(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled && userID != "" {
		l.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str(FieldUserID, userID)
		})
	}
	return context.WithValue(ctx, subjectKey, userID)
}

// SubjectFromContext returns the authenticated user stored in ctx, or "".
func SubjectFromContext(ctx context.Context) string {
	return stringValue(ctx, subjectKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// WithContext adds the correlation fields found in ctx to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	rid, sub := RequestIDFromContext(ctx), SubjectFromContext(ctx)
	if rid == "" && sub == "" {
		return logger
	}
	c := logger.With()
	if rid != "" {
		c = c.Str(FieldRequestID, rid)
	}
	if sub != "" {
		c = c.Str(FieldUserID, sub)
	}
	return c.Logger()
}

// WithComponentFromContext is FromContext tagged with component.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	l := FromContext(ctx)
	return l.With().Str(FieldComponent, component).Logger()
}

// FromContext returns the request logger stored in ctx by Middleware, or the
// base logger enriched with the correlation fields of ctx.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		l := Base()
		return &l
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		b := WithContext(ctx, Base())
		return &b
	}
	return l
}

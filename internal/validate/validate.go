// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validate provides configuration validation utilities for coursecast.
package validate

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// redacted stands in for values that must not reach logs.
const redacted = "<redacted>"

// Error is one rejected field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return e.Field + ": " + e.Message
}

// Validator collects field errors; use Err once every rule has run.
type Validator struct {
	errors []Error
}

// ValidationError is every field error of one validation pass.
type ValidationError struct {
	errors []Error
}

func New() *Validator {
	return &Validator{}
}

// AddError records a failed rule for field.
func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: message})
}

func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Err returns nil or a ValidationError holding a copy of the field errors.
func (v *Validator) Err() error {
	if v.IsValid() {
		return nil
	}
	return ValidationError{errors: slices.Clone(v.errors)}
}

func (e ValidationError) Errors() []Error {
	return e.errors
}

func (e ValidationError) Error() string {
	msgs := make([]string, 0, len(e.errors))
	for _, fe := range e.errors {
		msgs = append(msgs, fe.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the field errors to errors.As.
func (e ValidationError) Unwrap() []error {
	errs := make([]error, len(e.errors))
	for i, fe := range e.errors {
		errs[i] = fe
	}
	return errs
}

// URL validates a URL string
func (v *Validator) URL(field, value string, allowedSchemes []string) {
	if value == "" {
		v.AddError(field, "URL cannot be empty", value)
		return
	}
	u, err := url.Parse(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid URL: %v", err), value)
		return
	}
	if u.Host == "" {
		v.AddError(field, "URL must have a host", value)
		return
	}
	if len(allowedSchemes) == 0 {
		return
	}
	if slices.Contains(allowedSchemes, u.Scheme) {
		return
	}
	v.AddError(field, fmt.Sprintf("unsupported URL scheme %q (allowed: %v)", u.Scheme, allowedSchemes), value)
}

// ListenAddr validates a host:port listen address. The host may be empty.
func (v *Validator) ListenAddr(field, addr string) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), addr)
		return
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		v.AddError(field, fmt.Sprintf("invalid port %q", port), addr)
	}
}

// DurationRange validates that d lies within [minVal, maxVal].
func (v *Validator) DurationRange(field string, d, minVal, maxVal time.Duration) {
	if d < minVal || d > maxVal {
		v.AddError(field, fmt.Sprintf("duration must be between %s and %s, got %s", minVal, maxVal, d), d)
	}
}

// MinLength validates that a secret-like string has at least n bytes.
// The value itself is never included in the error.
func (v *Validator) MinLength(field, value string, n int) {
	if len(value) < n {
		v.AddError(field, fmt.Sprintf("must be at least %d bytes, got %d", n, len(value)), redacted)
	}
}

// NotEmpty validates that a string is not empty or whitespace-only
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

// OneOf validates that a value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.AddError(field, fmt.Sprintf("must be one of %s, got %q", strings.Join(allowed, "|"), value), value)
	}
}

// Positive validates that a number is positive (> 0)
func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %d", value), value)
	}
}

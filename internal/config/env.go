// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/coursecast/internal/log"
)

// sensitiveFragments mark variables whose values never reach the log.
var sensitiveFragments = []string{"secret", "password", "token", "key"}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, f := range sensitiveFragments {
		if strings.Contains(k, f) {
			return true
		}
	}
	return false
}

// lookup reads key from the environment and converts it with parse. Unset and
// empty variables yield def; a value parse rejects is logged and yields def.
func lookup[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def
	}
	logger := log.WithComponent("config")
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		logger.Warn().Err(err).
			Str("key", key).
			Str("default", fmt.Sprint(def)).
			Msg("ignoring malformed environment variable")
		return def
	}
	ev := logger.Debug().Str("key", key)
	if isSensitiveKey(key) {
		ev = ev.Bool("redacted", true)
	} else {
		ev = ev.Str("value", fmt.Sprint(v))
	}
	ev.Msg("environment override")
	return v
}

// ParseString returns the environment value of key, or def.
func ParseString(key, def string) string {
	return lookup(key, def, func(s string) (string, error) { return s, nil })
}

// ParseInt returns key parsed as a base-10 int, or def.
func ParseInt(key string, def int) int {
	return lookup(key, def, strconv.Atoi)
}

// ParseFloat returns key parsed as a float64, or def.
func ParseFloat(key string, def float64) float64 {
	return lookup(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// ParseDuration returns key in time.ParseDuration syntax ("90s", "5m"), or def.
func ParseDuration(key string, def time.Duration) time.Duration {
	return lookup(key, def, time.ParseDuration)
}

// ParseBool accepts true/false, 1/0 and yes/no in any case.
func ParseBool(key string, def bool) bool {
	return lookup(key, def, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", s)
	})
}

// ParseList splits a comma-separated value and drops empty entries. An unset
// variable yields def; a set but empty one yields nil.
func ParseList(key string, def []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

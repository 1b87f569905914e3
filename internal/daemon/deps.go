// SPDX-License-Identifier: MIT

package daemon

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

var (
	ErrMissingLogger     = errors.New("daemon: logger is disabled or unset")
	ErrMissingAPIHandler = errors.New("daemon: no handler to serve")
	ErrManagerNotStarted = errors.New("daemon: shutdown before start")
)

// Deps is what NewManager needs to serve a Runtime.
type Deps struct {
	Logger zerolog.Logger

	// APIHandler serves the token API, the HLS gateway and the probes.
	APIHandler http.Handler
}

// Validate reports the first missing dependency.
func (d *Deps) Validate() error {
	switch {
	case d.Logger.GetLevel() == zerolog.Disabled:
		return ErrMissingLogger
	case d.APIHandler == nil:
		return ErrMissingAPIHandler
	}
	return nil
}

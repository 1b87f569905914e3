// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	xglog "github.com/ManuGH/coursecast/internal/log"
)

// TokenSlot is the token holder a Transport reads from.
type TokenSlot interface {
	Token() (string, bool)
	ForceRefresh(ctx context.Context, stale string) (string, error)
}

// Transport attaches the current playback token to every request for Host.
// A 401 TOKEN_EXPIRED answer triggers one forced re-token and one retry;
// the second answer is returned whatever it is.
type Transport struct {
	Base http.RoundTripper
	Slot TokenSlot
	// Host limits the token to one host:port so redirects to pre-signed
	// object store URLs go out without it. Empty means every host.
	Host string
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Host != "" && req.URL.Host != t.Host {
		return t.base().RoundTrip(req)
	}
	tok, ok := t.Slot.Token()
	if !ok {
		return nil, ErrNoToken
	}

	resp, err := t.base().RoundTrip(withBearer(req, tok))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || !tokenExpired(resp) {
		return resp, err
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	logger := xglog.WithComponentFromContext(req.Context(), "player")
	fresh, err := t.Slot.ForceRefresh(req.Context(), tok)
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "player.retoken_failed").Msg("forced re-token failed")
		return resp, nil
	}

	retry := withBearer(req, fresh)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	logger.Debug().Str(xglog.FieldEvent, "player.retry").Str(xglog.FieldPath, req.URL.Path).Msg("retrying with fresh token")
	return t.base().RoundTrip(retry)
}

func withBearer(req *http.Request, tok string) *http.Request {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+tok)
	return r
}

type readCloser struct {
	io.Reader
	io.Closer
}

// tokenExpired peeks at the problem body. The body stays readable.
func tokenExpired(resp *http.Response) bool {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(data), resp.Body), Closer: resp.Body}
	if err != nil {
		return false
	}
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return false
	}
	return body.Code == "TOKEN_EXPIRED"
}

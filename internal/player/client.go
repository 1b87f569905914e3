// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

const maxErrorBody = 4 << 10

// Client is a TokenSource backed by the coursecast token API.
type Client struct {
	base    *url.URL
	http    *http.Client
	session string
}

// NewClient returns a client for the API at baseURL authenticating with the
// session bearer token.
func NewClient(baseURL, session string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("player: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("player: base url %q must be http or https", baseURL)
	}
	if hc == nil {
		return nil, errors.New("player: http client is required")
	}
	return &Client{base: u, http: hc, session: session}, nil
}

type tokenResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
	Access    Access `json:"access"`
}

// errorBody covers both the token API envelope and problem+json.
type errorBody struct {
	Code   string `json:"code"`
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// FetchToken requests a playback token for videoID.
func (c *Client) FetchToken(ctx context.Context, videoID string) (Token, error) {
	endpoint := c.base.JoinPath("api", "videos", "token", videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return Token{}, &FetchError{Reason: ReasonGeneric, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.session)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Token{}, &FetchError{Reason: transportReason(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body := readErrorBody(resp.Body)
		return Token{}, &FetchError{
			Reason: reasonFor(resp.StatusCode, body.Code),
			Status: resp.StatusCode,
			Code:   body.Code,
			Err:    errors.New(body.message(resp.Status)),
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Token{}, &FetchError{Reason: ReasonGeneric, Status: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if !tr.Success || tr.Token == "" || tr.ExpiresIn < 1 {
		return Token{}, &FetchError{Reason: ReasonGeneric, Status: resp.StatusCode, Err: errors.New("malformed token response")}
	}
	return Token{Value: tr.Token, ExpiresIn: tr.ExpiresIn, Access: tr.Access}, nil
}

// Revoke ends a playback token early.
func (c *Client) Revoke(ctx context.Context, token string) error {
	endpoint := c.base.JoinPath("api", "videos", "token")
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("player: revoke token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent {
		body := readErrorBody(resp.Body)
		return fmt.Errorf("player: revoke token: %s", body.message(resp.Status))
	}
	return nil
}

func readErrorBody(r io.Reader) errorBody {
	var body errorBody
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return body
	}
	_ = json.Unmarshal(data, &body)
	return body
}

func (b errorBody) message(status string) string {
	switch {
	case b.Error != "":
		return b.Error
	case b.Detail != "":
		return b.Detail
	default:
		return status
	}
}

func reasonFor(status int, code string) Reason {
	switch code {
	case "NOT_PURCHASED":
		return ReasonNotPurchased
	case "ACCESS_EXPIRED":
		return ReasonAccessExpired
	case "UNAUTHENTICATED":
		return ReasonSessionExpired
	case "NOT_FOUND":
		return ReasonNotFound
	case "UPSTREAM_UNAVAILABLE":
		return ReasonUnavailable
	}
	switch status {
	case http.StatusUnauthorized:
		return ReasonSessionExpired
	case http.StatusNotFound:
		return ReasonNotFound
	case http.StatusServiceUnavailable:
		return ReasonUnavailable
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ReasonTimeout
	default:
		return ReasonGeneric
	}
}

func transportReason(err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonTimeout
	}
	return ReasonGeneric
}

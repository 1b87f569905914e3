// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/coursecast/internal/auth"
	"github.com/ManuGH/coursecast/internal/cache"
	"github.com/ManuGH/coursecast/internal/config"
	"github.com/ManuGH/coursecast/internal/entitlement"
	"github.com/ManuGH/coursecast/internal/gateway"
	"github.com/ManuGH/coursecast/internal/health"
	"github.com/ManuGH/coursecast/internal/playback"
	"github.com/ManuGH/coursecast/internal/revocation"
)

const (
	sessionSecret = "session-secret-session-secret-32b"
	signingSecret = "playback-secret-playback-secret-32"
	day           = 24 * time.Hour
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testServer struct {
	srv     *Server
	handler http.Handler
	store   *entitlement.MemoryStore
	cache   *cache.MemoryCache
	clock   *clock
	cfg     config.AppConfig
}

func testConfig() config.AppConfig {
	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.Session.Secret = sessionSecret
	cfg.Playback.ActiveKeyID = "k1"
	cfg.Playback.Keys = []config.SigningKey{{ID: "k1", Secret: signingSecret}}
	cfg.RateLimit.TokenPerMinute = 1000
	return cfg
}

func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"vid-a/index.m3u8":          "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=2000000\n720p/index.m3u8\n",
		"vid-a/720p/index.m3u8":     "#EXTM3U\n#EXTINF:6.0,\nseg_00001.ts\n",
		"vid-a/720p/seg_00001.ts":   "0123456789",
		"vid-b/index.m3u8":          "#EXTM3U\n",
		"vid-free/index.m3u8":       "#EXTM3U\n",
		"vid-a/720p/not-allowed.sh": "echo",
	}
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
	return root
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := testConfig()
	c := &clock{now: t0}

	store := entitlement.NewMemoryStore()
	store.PutCourse("course-go", false)
	store.PutVideo("vid-a", "course-go", false)
	store.PutVideo("vid-b", "course-go", false)
	store.PutCourse("course-free", true)
	store.PutVideo("vid-free", "course-free", false)

	keys, err := auth.NewKeyring(cfg.Playback.ActiveKeyID, SigningKeys(cfg.Playback)...)
	require.NoError(t, err)
	settings := PlaybackSettings(cfg.Playback)

	resolver := entitlement.NewResolver(store, entitlement.WithClock(c.Now))
	issuer, err := playback.NewIssuer(resolver, keys, settings, playback.WithIssuerClock(c.Now))
	require.NoError(t, err)

	mem := cache.NewMemoryCache(time.Minute, cache.WithMemoryClock(c.Now))
	t.Cleanup(func() { _ = mem.Close() })

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewPingChecker("revocation", mem.Ping))

	srv, err := New(cfg, Deps{
		Keys:        keys,
		Issuer:      issuer,
		Verifier:    playback.NewVerifier(keys, settings).WithClock(c.Now),
		Sessions:    auth.NewSessionVerifier([]byte(sessionSecret), cfg.Session.Issuer, cfg.Session.Audience).WithClock(c.Now),
		Revocations: revocation.New(mem, c.Now),
		Backend:     gateway.FileBackend{Root: writeTree(t)},
		Health:      hm,
	})
	require.NoError(t, err)

	return &testServer{srv: srv, handler: srv.Handler(), store: store, cache: mem, clock: c, cfg: cfg}
}

func (ts *testServer) session(t *testing.T, user string) string {
	t.Helper()
	now := ts.clock.Now().Unix()
	tok, err := auth.GenerateHS256(auth.Key{ID: "auth", Secret: []byte(sessionSecret)}, auth.Claims{
		Iss: ts.cfg.Session.Issuer,
		Aud: ts.cfg.Session.Audience,
		Sub: user,
		Jti: "sess-" + user,
		Iat: now,
		Exp: now + 3600,
	})
	require.NoError(t, err)
	return tok
}

func (ts *testServer) buy(user, content string, ago time.Duration, days *int) {
	ts.store.AddGrant(entitlement.Grant{
		UserID: user, ContentID: content, GrantedAt: ts.clock.Now().Add(-ago), AccessDurationDays: days, Source: "purchase",
	})
}

func (ts *testServer) do(method, path, bearer string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return req, rr
}

func (ts *testServer) mint(t *testing.T, user, video string) TokenResponse {
	t.Helper()
	_, rr := ts.do(http.MethodPost, "/api/videos/token/"+video, ts.session(t, user))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func problemCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	c, _ := body["code"].(string)
	return c
}

var (
	openapiOnce sync.Once
	openapiDoc  *openapi3.T
	openapiErr  error
)

func loadOpenAPIDoc(t *testing.T) *openapi3.T {
	t.Helper()
	openapiOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(OpenAPISpec)
		if err != nil {
			openapiErr = err
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			openapiErr = err
			return
		}
		openapiDoc = doc
	})
	if openapiErr != nil {
		t.Fatalf("openapi load failed: %v", openapiErr)
	}
	return openapiDoc
}

func validateOpenAPIResponse(t *testing.T, req *http.Request, rr *httptest.ResponseRecorder, opts *openapi3filter.Options) {
	t.Helper()
	doc := loadOpenAPIDoc(t)
	router, err := legacy.NewRouter(doc)
	require.NoError(t, err, "openapi router init")

	route, pathParams, err := router.FindRoute(req)
	require.NoError(t, err, "openapi route lookup")

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status:  rr.Code,
		Header:  rr.Header(),
		Options: opts,
	}
	input.SetBodyBytes(rr.Body.Bytes())
	require.NoError(t, openapi3filter.ValidateResponse(context.Background(), input), "openapi response validation")
}

func init() {
	openapi3filter.RegisterBodyDecoder("application/problem+json", openapi3filter.JSONBodyDecoder)
}

func TestNew_RequiresComponents(t *testing.T) {
	_, err := New(testConfig(), Deps{})
	assert.Error(t, err)
}

func TestIssueToken_ThirtyDayAccessBoughtTenDaysAgo(t *testing.T) {
	ts := newTestServer(t)
	ts.buy("alice", "course-go", 10*day, entitlement.Days(30))

	req, rr := ts.do(http.MethodPost, "/api/videos/token/vid-a", ts.session(t, "alice"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	validateOpenAPIResponse(t, req, rr, nil)

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	expiresAt := t0.Add(20 * day)
	want := TokenResponse{
		Success:   true,
		Token:     resp.Token,
		ExpiresIn: 300,
		Access:    playback.Access{VideoID: "vid-a", CourseID: "course-go", Free: false, ExpiresAt: &expiresAt},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("token response mismatch (-want +got):\n%s", diff)
	}
}

func TestIssueToken_Errors(t *testing.T) {
	ts := newTestServer(t)
	ts.buy("bob", "course-go", 31*day, entitlement.Days(30))

	tests := []struct {
		name   string
		path   string
		bearer string
		status int
		code   string
	}{
		{"no session", "/api/videos/token/vid-a", "", http.StatusUnauthorized, playback.CodeUnauthenticated},
		{"garbled session", "/api/videos/token/vid-a", "not-a-jwt", http.StatusUnauthorized, playback.CodeUnauthenticated},
		{"not purchased", "/api/videos/token/vid-a", ts.session(t, "alice"), http.StatusForbidden, playback.CodeNotPurchased},
		{"access expired", "/api/videos/token/vid-a", ts.session(t, "bob"), http.StatusForbidden, playback.CodeAccessExpired},
		{"unknown video", "/api/videos/token/vid-zzz", ts.session(t, "alice"), http.StatusNotFound, playback.CodeNotFound},
		{"invalid video id", "/api/videos/token/..%2fetc", ts.session(t, "alice"), http.StatusNotFound, playback.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rr := ts.do(http.MethodPost, tt.path, tt.bearer)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			resp := decodeError(t, rr)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
			if !strings.Contains(tt.path, "%2f") {
				validateOpenAPIResponse(t, req, rr, nil)
			}
		})
	}
}

func TestIssueToken_FreeVideoNeedsNoPurchase(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.mint(t, "carol", "vid-free")
	assert.True(t, resp.Access.Free)
	assert.Nil(t, resp.Access.ExpiresAt)
	assert.Equal(t, 300, resp.ExpiresIn)
}

func TestIssueToken_StoreFailureIs503(t *testing.T) {
	ts := newTestServer(t)
	ts.buy("alice", "course-go", day, nil)
	ts.store.FailWith(errors.New("database is locked"))

	req, rr := ts.do(http.MethodPost, "/api/videos/token/vid-a", ts.session(t, "alice"))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, retryAfterSeconds, rr.Header().Get("Retry-After"))
	assert.Equal(t, playback.CodeUpstreamUnavailable, decodeError(t, rr).Code)
	validateOpenAPIResponse(t, req, rr, nil)
}

func TestPlaybackFlow_EndToEnd(t *testing.T) {
	ts := newTestServer(t)
	ts.buy("alice", "course-go", day, entitlement.Days(30))
	tok := ts.mint(t, "alice", "vid-a").Token

	req, rr := ts.do(http.MethodGet, "/api/videos/hls/vid-a/index.m3u8", tok)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "720p/index.m3u8")
	validateOpenAPIResponse(t, req, rr, &openapi3filter.Options{ExcludeResponseBody: true})

	req, rr = ts.do(http.MethodGet, "/api/videos/hls/vid-a/720p/seg_00001.ts", tok)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "video/MP2T", rr.Header().Get("Content-Type"))
	validateOpenAPIResponse(t, req, rr, &openapi3filter.Options{ExcludeResponseBody: true})

	// Token for A on B's manifest.
	req, rr = ts.do(http.MethodGet, "/api/videos/hls/vid-b/index.m3u8", tok)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, gateway.CodeTokenScopeMismatch, problemCode(t, rr))
	validateOpenAPIResponse(t, req, rr, nil)

	_, rr = ts.do(http.MethodDelete, "/api/videos/token", tok)
	require.Equal(t, http.StatusNoContent, rr.Code)

	_, rr = ts.do(http.MethodGet, "/api/videos/hls/vid-a/index.m3u8", tok)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, gateway.CodeTokenRevoked, problemCode(t, rr))
}

func TestGateway_ExpiryIsExact(t *testing.T) {
	ts := newTestServer(t)
	ts.buy("alice", "course-go", day, nil)
	tok := ts.mint(t, "alice", "vid-a").Token

	ts.clock.Advance(300 * time.Second)
	_, rr := ts.do(http.MethodGet, "/api/videos/hls/vid-a/index.m3u8", tok)
	require.Equal(t, http.StatusOK, rr.Code)

	ts.clock.Advance(time.Second)
	req, rr := ts.do(http.MethodGet, "/api/videos/hls/vid-a/index.m3u8", tok)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, gateway.CodeTokenExpired, problemCode(t, rr))
	validateOpenAPIResponse(t, req, rr, nil)
}

func TestGateway_UnlistedAssetIs404(t *testing.T) {
	ts := newTestServer(t)
	ts.buy("alice", "course-go", day, nil)
	tok := ts.mint(t, "alice", "vid-a").Token

	_, rr := ts.do(http.MethodGet, "/api/videos/hls/vid-a/720p/not-allowed.sh", tok)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, gateway.CodeAssetNotFound, problemCode(t, rr))
}

func TestRevokeToken(t *testing.T) {
	ts := newTestServer(t)
	ts.buy("alice", "course-go", day, nil)
	tok := ts.mint(t, "alice", "vid-a").Token

	req, rr := ts.do(http.MethodDelete, "/api/videos/token", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	validateOpenAPIResponse(t, req, rr, nil)

	_, rr = ts.do(http.MethodDelete, "/api/videos/token", ts.session(t, "alice"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "a session token cannot be revoked here")

	ts.clock.Advance(10 * time.Minute)
	_, rr = ts.do(http.MethodDelete, "/api/videos/token", tok)
	assert.Equal(t, http.StatusNoContent, rr.Code, "expired tokens revoke as a no-op")
}

func TestApplyConfig_RotatesKeysAndTTL(t *testing.T) {
	ts := newTestServer(t)
	ts.buy("alice", "course-go", day, nil)
	old := ts.mint(t, "alice", "vid-a").Token

	next := ts.cfg
	next.Playback.ActiveKeyID = "k2"
	next.Playback.DefaultTTL = 600 * time.Second
	next.Playback.Keys = []config.SigningKey{
		{ID: "k1", Secret: signingSecret},
		{ID: "k2", Secret: "second-playback-secret-second-32b"},
	}
	require.NoError(t, ts.srv.ApplyConfig(next))

	fresh := ts.mint(t, "alice", "vid-a")
	assert.Equal(t, 600, fresh.ExpiresIn)

	for _, tok := range []string{old, fresh.Token} {
		_, rr := ts.do(http.MethodGet, "/api/videos/hls/vid-a/index.m3u8", tok)
		assert.Equal(t, http.StatusOK, rr.Code, "tokens of both keys stay valid")
	}

	bad := next
	bad.Playback.ActiveKeyID = "missing"
	assert.Error(t, ts.srv.ApplyConfig(bad))
	assert.Equal(t, 600, ts.mint(t, "alice", "vid-a").ExpiresIn, "a rejected config changes nothing")
}

func TestApplyConfig_InvalidSettingsKeepKeyRing(t *testing.T) {
	ts := newTestServer(t)
	ts.buy("alice", "course-go", day, nil)
	old := ts.mint(t, "alice", "vid-a").Token

	bad := ts.cfg
	bad.Playback.ActiveKeyID = "k3"
	bad.Playback.Keys = []config.SigningKey{{ID: "k3", Secret: "third-playback-secret-third-32b!"}}
	bad.Playback.DefaultTTL = 2 * bad.Playback.MaxTTL
	require.Error(t, ts.srv.ApplyConfig(bad))

	_, rr := ts.do(http.MethodGet, "/api/videos/hls/vid-a/index.m3u8", old)
	assert.Equal(t, http.StatusOK, rr.Code, "k1 must still verify after a rejected reload")
}

func TestOperationalEndpoints(t *testing.T) {
	ts := newTestServer(t)

	req, rr := ts.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	validateOpenAPIResponse(t, req, rr, nil)

	req, rr = ts.do(http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	validateOpenAPIResponse(t, req, rr, nil)

	_, rr = ts.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "coursecast_http_request_duration_seconds")

	_, rr = ts.do(http.MethodGet, "/api/openapi.yaml", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, OpenAPISpec, rr.Body.Bytes())
}

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"listingsync/internal/adapters"
	"listingsync/internal/core"
	"listingsync/internal/httpclient"
	"listingsync/internal/oauth"
	"listingsync/internal/platforms"
	"listingsync/internal/publish"
	"listingsync/internal/storage"
	"listingsync/internal/storage/sqlite"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubPublisher serves publications from memory
type stubPublisher struct {
	mu       sync.Mutex
	pubs     map[string]*core.Publication
	bulk     []publish.BulkRequest
	err      error
	unpubErr error
}

func newStubPublisher(pubs ...*core.Publication) *stubPublisher {
	s := &stubPublisher{pubs: make(map[string]*core.Publication)}
	for _, p := range pubs {
		s.pubs[p.ID] = p
	}
	return s
}

func (s *stubPublisher) RequestBulkPublish(ctx context.Context, req publish.BulkRequest) (*publish.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulk = append(s.bulk, req)
	if s.err != nil {
		return nil, s.err
	}
	result := &publish.BulkResult{JobID: "job_1", Results: map[string]publish.PairResult{}, ScheduledAt: time.Now()}
	for _, p := range req.PropertyIDs {
		for _, pl := range req.Platforms {
			result.Results[core.PairKey(p, pl)] = publish.PairResult{Success: true, Message: "queued", PublicationID: "pub_" + p}
		}
	}
	return result, nil
}

func (s *stubPublisher) UpdatePublication(ctx context.Context, id string, listing *core.ListingData) (*core.Publication, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.GetPublication(ctx, id)
}

func (s *stubPublisher) Unpublish(ctx context.Context, id string) error {
	if s.unpubErr != nil {
		return s.unpubErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pubs, id)
	return nil
}

func (s *stubPublisher) Pause(ctx context.Context, id string) (*core.Publication, error) {
	return s.setStatus(id, core.PublicationStatusPaused)
}

func (s *stubPublisher) Resume(ctx context.Context, id string) (*core.Publication, error) {
	return s.setStatus(id, core.PublicationStatusActive)
}

func (s *stubPublisher) SyncPublication(ctx context.Context, id string) (*core.Publication, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.GetPublication(ctx, id)
}

func (s *stubPublisher) SyncStale(ctx context.Context, hoursStale int) (*publish.SyncReport, error) {
	return &publish.SyncReport{}, nil
}

func (s *stubPublisher) GetPublication(ctx context.Context, id string) (*core.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pub, ok := s.pubs[id]
	if !ok {
		return nil, core.ErrPublicationNotFound
	}
	cp := *pub
	return &cp, nil
}

func (s *stubPublisher) ListPublications(ctx context.Context, filter storage.PublicationFilter) ([]*core.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.Publication
	for _, p := range s.pubs {
		if p.UserID == filter.UserID && (filter.PropertyID == "" || p.PropertyID == filter.PropertyID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubPublisher) setStatus(id string, next core.PublicationStatus) (*core.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pub, ok := s.pubs[id]
	if !ok {
		return nil, core.ErrPublicationNotFound
	}
	if err := pub.TransitionTo(next, time.Now()); err != nil {
		return nil, err
	}
	cp := *pub
	return &cp, nil
}

// stubAdapter answers OAuth calls without a provider
type stubAdapter struct {
	platforms.Base
	exchange *oauth.ExchangeResult
}

func newStubAdapter(key string) *stubAdapter {
	return &stubAdapter{Base: platforms.NewBase(platforms.Settings{
		Key:         key,
		DisplayName: "Stub",
		BaseURL:     "https://" + key + ".example.com",
		OAuth:       oauth.Config{Platform: key, ClientID: "id", Required: true},
		Capabilities: platforms.Capabilities{
			Features: map[platforms.Feature]bool{platforms.FeaturePhotos: true},
		},
	}, nil, platforms.ClientOptions{}, testLogger())}
}

func (a *stubAdapter) AuthURL(ctx context.Context, opts oauth.BeginOptions) (*oauth.Authorization, error) {
	return &oauth.Authorization{
		URL:       "https://auth.example.com/authorize?state=st-1&user=" + opts.UserID,
		State:     "st-1",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}, nil
}

func (a *stubAdapter) ExchangeCode(ctx context.Context, code, state, userID string) *oauth.ExchangeResult {
	if a.exchange != nil {
		return a.exchange
	}
	return &oauth.ExchangeResult{
		Success: true,
		Tokens: &core.StoredTokens{
			UserID:       userID,
			Platform:     a.Settings().Key,
			AccessToken:  "access-" + code,
			RefreshToken: "refresh",
			TokenType:    "Bearer",
			IssuedAt:     time.Now(),
			Valid:        true,
		},
	}
}

func (a *stubAdapter) TransformProperty(p *core.Property) core.ListingData {
	return platforms.DefaultTransform(p)
}

func (a *stubAdapter) ValidateListing(listing core.ListingData) []platforms.ValidationError {
	return nil
}

func (a *stubAdapter) Publish(ctx context.Context, tokens *core.StoredTokens, listing core.ListingData) (*platforms.PublishResult, error) {
	return nil, httpclient.NewError(httpclient.CodeUnknown, "not used")
}

func (a *stubAdapter) Update(ctx context.Context, tokens *core.StoredTokens, externalID string, listing core.ListingData) (*platforms.PublishResult, error) {
	return nil, httpclient.NewError(httpclient.CodeUnknown, "not used")
}

func (a *stubAdapter) Delete(ctx context.Context, tokens *core.StoredTokens, externalID string) error {
	return nil
}

func (a *stubAdapter) Status(ctx context.Context, tokens *core.StoredTokens, externalID string) (*platforms.StatusResult, error) {
	return nil, httpclient.NewError(httpclient.CodeUnknown, "not used")
}

type stubRevoker struct {
	revoked []*core.StoredTokens
}

func (r *stubRevoker) Revoke(ctx context.Context, cfg oauth.Config, tokens *core.StoredTokens) {
	r.revoked = append(r.revoked, tokens)
}

type testEnv struct {
	router    http.Handler
	store     *sqlite.SQLiteStorage
	publisher *stubPublisher
	adapter   *stubAdapter
	revoker   *stubRevoker
}

func setupRouter(t *testing.T, rateLimit int, pubs ...*core.Publication) *testEnv {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})

	registry := adapters.NewRegistry(testLogger())
	adapter := newStubAdapter("stubboard")
	registry.Register(adapter)

	env := &testEnv{
		store:     store,
		publisher: newStubPublisher(pubs...),
		adapter:   adapter,
		revoker:   &stubRevoker{},
	}
	env.router = NewRouter(RouterConfig{
		Publisher:          env.publisher,
		Storage:            store,
		Registry:           registry,
		Revoker:            env.revoker,
		APIKey:             testAPIKey,
		ReturnURLBase:      "https://app.example.com",
		RateLimitPerMinute: rateLimit,
		Logger:             testLogger(),
	})
	return env
}

func (e *testEnv) do(method, path, userID, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-API-Key", testAPIKey)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func activePublication(id, userID string) *core.Publication {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &core.Publication{
		ID:          id,
		UserID:      userID,
		PropertyID:  "prop-1",
		Platform:    "stubboard",
		Status:      core.PublicationStatusActive,
		ExternalID:  "ext-1",
		ExternalURL: "https://stubboard.example.com/ext-1",
		Title:       "Sunny 2 Bed Apartment",
		Rent:        decimal.RequireFromString("1450"),
		PublishedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRouter_Health(t *testing.T) {
	env := setupRouter(t, 0)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "listingsync", body["service"])
	// stubboard is registered but lacks a client secret
	assert.Equal(t, map[string]any{"registered": float64(1), "available": float64(0)}, body["platforms"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_Auth(t *testing.T) {
	env := setupRouter(t, 0)

	tests := []struct {
		name     string
		apiKey   string
		userID   string
		wantCode int
		wantErr  string
	}{
		{"missing key", "", "user-1", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong key", "nope", "user-1", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"missing user", testAPIKey, "", http.StatusUnauthorized, "USER_REQUIRED"},
		{"ok", testAPIKey, "user-1", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/platforms", nil)
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			if tt.userID != "" {
				req.Header.Set("X-User-ID", tt.userID)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode(t, w)["code"])
			}
		})
	}
}

func TestRouter_RateLimit(t *testing.T) {
	// 60/min gives a burst of 6
	env := setupRouter(t, 60)

	var limited *httptest.ResponseRecorder
	for i := 0; i < 20; i++ {
		w := env.do(http.MethodGet, "/v1/platforms", "user-1", "")
		if w.Code == http.StatusTooManyRequests {
			limited = w
			break
		}
	}

	require.NotNil(t, limited, "expected a request to be rate limited")
	assert.Equal(t, "RATE_LIMITED", decode(t, limited)["code"])
}

func TestRouter_ContentType(t *testing.T) {
	env := setupRouter(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/v1/publications/bulk", strings.NewReader("propertyIds=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_Platforms(t *testing.T) {
	env := setupRouter(t, 0)

	w := env.do(http.MethodGet, "/v1/platforms", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var descriptors []adapters.Descriptor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &descriptors))
	require.Len(t, descriptors, 1)
	assert.Equal(t, "stubboard", descriptors[0].Key)
	assert.False(t, descriptors[0].Available)
	assert.True(t, descriptors[0].OAuthRequired)

	w = env.do(http.MethodGet, "/v1/platforms/stubboard/diagnostics", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "stubboard", body["platform"])
	assert.Equal(t, []any{"client_secret"}, body["missing"])

	w = env.do(http.MethodGet, "/v1/platforms/nowhere/diagnostics", "user-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PLATFORM_NOT_FOUND", decode(t, w)["code"])
}

func TestRouter_ConnectionLifecycle(t *testing.T) {
	env := setupRouter(t, 0)

	w := env.do(http.MethodPost, "/v1/platforms/stubboard/authorize", "user-1", `{"returnUrl":"https://app.example.com/settings"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w)["authUrl"], "user=user-1")

	w = env.do(http.MethodGet, "/v1/platforms/stubboard/connection", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["connected"])

	w = env.do(http.MethodGet, "/v1/platforms/stubboard/callback?code=abc&state=st-1", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["connected"])

	tokens, err := env.store.GetTokens(context.Background(), "user-1", "stubboard")
	require.NoError(t, err)
	assert.Equal(t, "access-abc", tokens.AccessToken)

	w = env.do(http.MethodGet, "/v1/platforms/stubboard/connection", "user-1", "")
	assert.Equal(t, true, decode(t, w)["connected"])

	w = env.do(http.MethodDelete, "/v1/platforms/stubboard/connection", "user-1", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, env.revoker.revoked, 1)
	assert.Equal(t, "access-abc", env.revoker.revoked[0].AccessToken)

	_, err = env.store.GetTokens(context.Background(), "user-1", "stubboard")
	assert.ErrorIs(t, err, core.ErrTokensNotFound)

	w = env.do(http.MethodDelete, "/v1/platforms/stubboard/connection", "user-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CallbackRedirects(t *testing.T) {
	env := setupRouter(t, 0)

	env.adapter.exchange = &oauth.ExchangeResult{
		Success:   true,
		ReturnURL: "https://app.example.com/settings?tab=platforms",
		Tokens:    &core.StoredTokens{UserID: "user-1", Platform: "stubboard", AccessToken: "a", Valid: true},
	}
	w := env.do(http.MethodGet, "/v1/platforms/stubboard/callback?code=abc&state=st-1", "user-1", "")
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "platforms", loc.Query().Get("tab"))
	assert.Equal(t, "stubboard", loc.Query().Get("connected"))

	env.adapter.exchange = &oauth.ExchangeResult{
		ReturnURL: "https://app.example.com/settings",
		Error:     httpclient.NewError(httpclient.CodeFlowExpired, "authorization flow expired"),
	}
	w = env.do(http.MethodGet, "/v1/platforms/stubboard/callback?code=abc&state=st-1", "user-1", "")
	require.Equal(t, http.StatusFound, w.Code)
	loc, err = url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "FLOW_EXPIRED", loc.Query().Get("error"))
}

func TestRouter_ReturnURLMustMatchAppOrigin(t *testing.T) {
	env := setupRouter(t, 0)

	tests := []struct {
		name      string
		returnURL string
		want      int
	}{
		{"same origin", "https://app.example.com/settings", http.StatusOK},
		{"foreign host", "https://evil.example.net/phish", http.StatusBadRequest},
		{"lookalike host", "https://app.example.com.evil.net/", http.StatusBadRequest},
		{"downgraded scheme", "http://app.example.com/settings", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/v1/platforms/stubboard/authorize", "user-1", `{"returnUrl":"`+tt.returnURL+`"}`)
			require.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusBadRequest {
				assert.Equal(t, "INVALID_RETURN_URL", decode(t, w)["code"])
			}
		})
	}

	// A stored flow pointing elsewhere never turns into a redirect
	env.adapter.exchange = &oauth.ExchangeResult{
		Success:   true,
		ReturnURL: "https://evil.example.net/phish",
		Tokens:    &core.StoredTokens{UserID: "user-1", Platform: "stubboard", AccessToken: "a", Valid: true},
	}
	w := env.do(http.MethodGet, "/v1/platforms/stubboard/callback?code=abc&state=st-1", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, w.Header().Get("Location"))
	assert.Equal(t, true, decode(t, w)["connected"])
}

func TestRouter_CallbackErrors(t *testing.T) {
	env := setupRouter(t, 0)

	w := env.do(http.MethodGet, "/v1/platforms/stubboard/callback?error=access_denied", "user-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "AUTHORIZATION_DENIED", decode(t, w)["code"])

	w = env.do(http.MethodGet, "/v1/platforms/stubboard/callback?code=abc", "user-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.adapter.exchange = &oauth.ExchangeResult{
		Error: httpclient.NewError(httpclient.CodeInvalidState, "unknown or already used state"),
	}
	w = env.do(http.MethodGet, "/v1/platforms/stubboard/callback?code=abc&state=forged", "user-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STATE", decode(t, w)["code"])
}

func TestRouter_BulkPublish(t *testing.T) {
	env := setupRouter(t, 0)

	w := env.do(http.MethodPost, "/v1/publications/bulk", "user-1",
		`{"propertyIds":["p1","p2"],"platforms":["stubboard"],"scheduledFor":"2026-03-02T09:00:00Z"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "job_1", body["jobId"])
	results := body["results"].(map[string]any)
	assert.Len(t, results, 2)
	assert.Contains(t, results, "p1-stubboard")

	require.Len(t, env.publisher.bulk, 1)
	req := env.publisher.bulk[0]
	assert.Equal(t, "user-1", req.UserID)
	assert.Nil(t, req.Listing)
	require.NotNil(t, req.ScheduledFor)
	assert.Equal(t, 9, req.ScheduledFor.Hour())
}

func TestRouter_BulkPublishInvalid(t *testing.T) {
	env := setupRouter(t, 0)

	w := env.do(http.MethodPost, "/v1/publications/bulk", "user-1", `{"propertyIds":[],"platforms":["stubboard"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decode(t, w)["code"])
	assert.Empty(t, env.publisher.bulk)
}

func TestRouter_Publications(t *testing.T) {
	env := setupRouter(t, 0,
		activePublication("pub_1", "user-1"),
		activePublication("pub_2", "user-2"),
	)

	w := env.do(http.MethodGet, "/v1/publications?propertyId=prop-1", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "pub_1", list[0]["id"])
	assert.Equal(t, "ext-1", list[0]["externalId"])

	w = env.do(http.MethodGet, "/v1/publications/pub_1", "user-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// another user's publication is invisible
	w = env.do(http.MethodGet, "/v1/publications/pub_2", "user-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PUBLICATION_NOT_FOUND", decode(t, w)["code"])

	w = env.do(http.MethodGet, "/v1/publications?status=bogus", "user-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_PauseResume(t *testing.T) {
	env := setupRouter(t, 0, activePublication("pub_1", "user-1"))

	w := env.do(http.MethodPost, "/v1/publications/pub_1/pause", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "paused", decode(t, w)["status"])

	w = env.do(http.MethodPost, "/v1/publications/pub_1/pause", "user-1", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode(t, w)["code"])

	w = env.do(http.MethodPost, "/v1/publications/pub_1/resume", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", decode(t, w)["status"])
}

func TestRouter_PlatformAuthFailureMeansReconnect(t *testing.T) {
	env := setupRouter(t, 0, activePublication("pub_1", "user-1"))
	env.publisher.err = httpclient.FromStatus(http.StatusUnauthorized, "token revoked", nil)

	w := env.do(http.MethodPost, "/v1/publications/pub_1/sync", "user-1", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "RECONNECT_REQUIRED", body["code"])
	assert.Equal(t, "reconnect required", body["error"])
}

func TestRouter_UpdatePublicationValidation(t *testing.T) {
	env := setupRouter(t, 0, activePublication("pub_1", "user-1"))
	env.publisher.err = httpclient.NewError(httpclient.CodeValidationError, "title: must be at least 10 characters")

	w := env.do(http.MethodPut, "/v1/publications/pub_1", "user-1", `{"listingData":{"title":"short"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w)["code"])
}

func TestRouter_DeletePublication(t *testing.T) {
	env := setupRouter(t, 0, activePublication("pub_1", "user-1"))

	w := env.do(http.MethodDelete, "/v1/publications/pub_1", "user-2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/v1/publications/pub_1", "user-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/v1/publications/pub_1", "user-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Properties(t *testing.T) {
	env := setupRouter(t, 0)

	body := `{"name":"Sunny 2 Bed","city":"Portland","state":"OR","monthlyRent":"1450.50","bedrooms":2}`
	w := env.do(http.MethodPut, "/v1/properties/prop-9", "user-1", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := env.store.GetProperty(context.Background(), "prop-9")
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.UserID)
	assert.True(t, stored.MonthlyRent.Equal(decimal.RequireFromString("1450.50")))

	// a different user cannot take over the record
	w = env.do(http.MethodPut, "/v1/properties/prop-9", "user-2", body)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/v1/properties/prop-9", "user-2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/v1/properties/prop-9", "user-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

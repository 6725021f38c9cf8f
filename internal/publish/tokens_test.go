package publish

import (
	"context"
	"sync"
	"testing"
	"time"

	"listingsync/internal/clock"
	"listingsync/internal/core"
	"listingsync/internal/httpclient"
	"listingsync/internal/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expiringTokens(platform string) *core.StoredTokens {
	tokens := connectedTokens(platform)
	expires := testNow.Add(2 * time.Minute) // inside the expiry buffer
	tokens.ExpiresAt = &expires
	tokens.RefreshToken = "rt-1"
	return tokens
}

func TestTokenSource_NonOAuthPlatform(t *testing.T) {
	store := setupStore(t)
	source := NewTokenSource(store, clock.NewMockClock(testNow), testLogger())

	tokens, err := source.EnsureValid(context.Background(), "user-1", newFakeAdapter("feed", false))
	assert.NoError(t, err)
	assert.Nil(t, tokens)
}

func TestTokenSource_EnsureValid(t *testing.T) {
	tests := []struct {
		name        string
		stored      *core.StoredTokens
		wantCode    httpclient.Code
		wantRefresh int32
	}{
		{
			name:     "not connected",
			wantCode: httpclient.CodeUnauthorized,
		},
		{
			name:   "valid without expiry",
			stored: connectedTokens("fake"),
		},
		{
			name: "invalidated connection",
			stored: func() *core.StoredTokens {
				tokens := expiringTokens("fake")
				tokens.Valid = false
				return tokens
			}(),
			wantCode: httpclient.CodeUnauthorized,
		},
		{
			name: "expired without refresh token",
			stored: func() *core.StoredTokens {
				tokens := expiringTokens("fake")
				tokens.RefreshToken = ""
				return tokens
			}(),
			wantCode: httpclient.CodeUnauthorized,
		},
		{
			name:        "expiring is refreshed",
			stored:      expiringTokens("fake"),
			wantRefresh: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupStore(t)
			ctx := context.Background()
			if tt.stored != nil {
				require.NoError(t, store.SaveTokens(ctx, tt.stored))
			}

			fake := newFakeAdapter("fake", true)
			fake.refresh = func(string) *oauth.RefreshResult {
				expires := testNow.Add(time.Hour)
				return &oauth.RefreshResult{Success: true, Update: &core.TokenUpdate{
					AccessToken:     "at-2",
					ExpiresAt:       &expires,
					LastRefreshedAt: testNow,
				}}
			}
			source := NewTokenSource(store, clock.NewMockClock(testNow), testLogger())

			tokens, err := source.EnsureValid(ctx, "user-1", fake)
			assert.Equal(t, tt.wantRefresh, fake.refreshCalls.Load())
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, httpclient.CodeOf(err))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, tokens)
			if tt.wantRefresh > 0 {
				assert.Equal(t, "at-2", tokens.AccessToken)
				assert.Equal(t, "rt-1", tokens.RefreshToken)

				stored, err := store.GetTokens(ctx, "user-1", "fake")
				require.NoError(t, err)
				assert.Equal(t, "at-2", stored.AccessToken)
				assert.NotNil(t, stored.LastRefreshedAt)
			}
		})
	}
}

func TestTokenSource_RejectedRefreshInvalidates(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveTokens(ctx, expiringTokens("fake")))

	fake := newFakeAdapter("fake", true)
	fake.refresh = func(string) *oauth.RefreshResult {
		return &oauth.RefreshResult{Error: httpclient.FromStatus(400, "invalid_grant", nil)}
	}
	source := NewTokenSource(store, clock.NewMockClock(testNow), testLogger())

	_, err := source.EnsureValid(ctx, "user-1", fake)
	require.Error(t, err)
	assert.True(t, httpclient.IsReconnectRequired(err))
	assert.Contains(t, err.Error(), "invalid_grant")

	stored, err := store.GetTokens(ctx, "user-1", "fake")
	require.NoError(t, err)
	assert.False(t, stored.Valid)

	// Later attempts fail fast without another provider call
	_, err = source.EnsureValid(ctx, "user-1", fake)
	assert.Equal(t, httpclient.CodeUnauthorized, httpclient.CodeOf(err))
	assert.Equal(t, int32(1), fake.refreshCalls.Load())
}

func TestTokenSource_TransientRefreshFailureKeepsConnection(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveTokens(ctx, expiringTokens("fake")))

	fake := newFakeAdapter("fake", true)
	fake.refresh = func(string) *oauth.RefreshResult {
		return &oauth.RefreshResult{Error: httpclient.FromStatus(503, "", nil)}
	}
	source := NewTokenSource(store, clock.NewMockClock(testNow), testLogger())

	_, err := source.EnsureValid(ctx, "user-1", fake)
	assert.Equal(t, httpclient.CodeServerError, httpclient.CodeOf(err))

	stored, err := store.GetTokens(ctx, "user-1", "fake")
	require.NoError(t, err)
	assert.True(t, stored.Valid)
}

func TestTokenSource_ConcurrentRefreshIsSingleFlight(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveTokens(ctx, expiringTokens("fake")))

	release := make(chan struct{})
	fake := newFakeAdapter("fake", true)
	fake.refresh = func(string) *oauth.RefreshResult {
		<-release
		expires := testNow.Add(time.Hour)
		return &oauth.RefreshResult{Success: true, Update: &core.TokenUpdate{
			AccessToken:     "at-2",
			ExpiresAt:       &expires,
			LastRefreshedAt: testNow,
		}}
	}
	source := NewTokenSource(store, clock.NewMockClock(testNow), testLogger())

	const callers = 8
	var wg sync.WaitGroup
	got := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens, err := source.EnsureValid(ctx, "user-1", fake)
			if assert.NoError(t, err) {
				got[i] = tokens.AccessToken
			}
		}(i)
	}

	require.Eventually(t, func() bool {
		return fake.refreshCalls.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), fake.refreshCalls.Load())
	for _, token := range got {
		assert.Equal(t, "at-2", token)
	}
}

package oauth

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlow(state string, expiresAt time.Time) *Flow {
	return &Flow{
		State:       state,
		Platform:    "rentboard",
		UserID:      "user-1",
		RedirectURI: "https://app.example.com/callback",
		CreatedAt:   expiresAt.Add(-DefaultFlowTTL),
		ExpiresAt:   expiresAt,
	}
}

func TestFlow_Expired(t *testing.T) {
	expiresAt := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	flow := newFlow("s", expiresAt)

	assert.False(t, flow.Expired(expiresAt.Add(-time.Second)))
	assert.True(t, flow.Expired(expiresAt))
	assert.True(t, flow.Expired(expiresAt.Add(time.Second)))
}

func TestMemoryFlowStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFlowStore()
	expiresAt := time.Now().Add(time.Hour)

	require.NoError(t, store.Save(ctx, newFlow("state-1", expiresAt)))
	assert.ErrorIs(t, store.Save(ctx, newFlow("state-1", expiresAt)), ErrStateCollision)

	flow, err := store.Take(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, "rentboard", flow.Platform)

	_, err = store.Take(ctx, "state-1")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestMemoryFlowStore_ConcurrentTake(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFlowStore()
	require.NoError(t, store.Save(ctx, newFlow("state-1", time.Now().Add(time.Hour))))

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Take(ctx, "state-1"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestMemoryFlowStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFlowStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, newFlow("old", now.Add(-time.Minute))))
	require.NoError(t, store.Save(ctx, newFlow("edge", now)))
	require.NoError(t, store.Save(ctx, newFlow("fresh", now.Add(time.Minute))))

	removed, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, store.Len())

	_, err = store.Take(ctx, "fresh")
	assert.NoError(t, err)
}

func TestFlowKeyTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	grace := 5 * time.Minute

	assert.Equal(t, 20*time.Minute, flowKeyTTL(now.Add(15*time.Minute), now, grace))
	assert.Equal(t, 2*time.Minute, flowKeyTTL(now.Add(-3*time.Minute), now, grace))
	assert.Equal(t, grace, flowKeyTTL(now.Add(-time.Hour), now, grace))
}

// TestRedisFlowStore runs against a real Redis when LISTINGSYNC_TEST_REDIS_ADDR is set
func TestRedisFlowStore(t *testing.T) {
	addr := os.Getenv("LISTINGSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LISTINGSYNC_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	prefix := "listingsync:test:flow:" + time.Now().Format("150405.000000") + ":"
	store := NewRedisFlowStore(client, prefix, time.Minute, nil)

	flow := newFlow("state-1", time.Now().Add(time.Hour))
	flow.CodeVerifier = "verifier"
	require.NoError(t, store.Save(ctx, flow))
	assert.ErrorIs(t, store.Save(ctx, flow), ErrStateCollision)

	ttl, err := client.TTL(ctx, prefix+"state-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Hour)

	got, err := store.Take(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, "verifier", got.CodeVerifier)
	assert.Equal(t, flow.ExpiresAt.Unix(), got.ExpiresAt.Unix())

	_, err = store.Take(ctx, "state-1")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

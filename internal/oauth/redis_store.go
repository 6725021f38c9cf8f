package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"listingsync/internal/clock"

	"github.com/redis/go-redis/v9"
)

// RedisFlowStore keeps flows in Redis so callbacks can land on any instance.
//
// Keys live for the flow TTL plus a grace period. The grace period lets the
// manager still see (and report) an expired flow instead of an unknown one.
type RedisFlowStore struct {
	client *redis.Client
	prefix string
	grace  time.Duration
	clock  clock.Clock
}

// NewRedisFlowStore creates a new RedisFlowStore.
// Parameters:
//   - client: Redis client instance
//   - prefix: Key prefix for namespacing (e.g., "oauth:flow:")
//   - grace: How long a key outlives its flow's expiry
//   - clk: Time source for key TTLs, nil means the wall clock
func NewRedisFlowStore(client *redis.Client, prefix string, grace time.Duration, clk clock.Clock) *RedisFlowStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &RedisFlowStore{
		client: client,
		prefix: prefix,
		grace:  grace,
		clock:  clk,
	}
}

// Save stores the flow with SET NX so concurrent flows cannot share a state
func (s *RedisFlowStore) Save(ctx context.Context, flow *Flow) error {
	if flow.State == "" {
		return errors.New("state cannot be empty")
	}

	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.buildKey(flow.State), data, flowKeyTTL(flow.ExpiresAt, s.clock.Now(), s.grace)).Result()
	if err != nil {
		return fmt.Errorf("failed to store flow in redis: %w", err)
	}
	if !ok {
		return ErrStateCollision
	}
	return nil
}

// Take uses GETDEL so the flow is read and removed in one atomic step
func (s *RedisFlowStore) Take(ctx context.Context, state string) (*Flow, error) {
	if state == "" {
		return nil, ErrFlowNotFound
	}

	data, err := s.client.GetDel(ctx, s.buildKey(state)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to retrieve flow from redis: %w", err)
	}

	var flow Flow
	if err := json.Unmarshal([]byte(data), &flow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
	}
	return &flow, nil
}

// DeleteExpired is a no-op: Redis expires keys on its own
func (s *RedisFlowStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (s *RedisFlowStore) buildKey(state string) string {
	return s.prefix + state
}

var _ FlowStore = (*RedisFlowStore)(nil)

// flowKeyTTL keeps a key until grace after the flow expires, and never less than grace
func flowKeyTTL(expiresAt, now time.Time, grace time.Duration) time.Duration {
	ttl := expiresAt.Sub(now) + grace
	if ttl <= 0 {
		return grace
	}
	return ttl
}

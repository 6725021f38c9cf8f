package publish

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"listingsync/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ShutdownDrainsQueue(t *testing.T) {
	gate := make(chan struct{})
	pool := NewPool(PoolConfig{Workers: 1, QueueSize: 10, Logger: testLogger()})

	var ran atomic.Int32
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) {
		<-gate
		ran.Add(1)
	}))
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) {
			ran.Add(1)
		}))
	}

	done := make(chan error, 1)
	go func() {
		done <- pool.Shutdown(context.Background())
	}()
	close(gate)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not finish")
	}
	assert.Equal(t, int32(6), ran.Load())

	err := pool.Submit(context.Background(), func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_TasksGetOwnDeadline(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 1, JobTimeout: time.Minute, Logger: testLogger()})
	defer pool.Shutdown(context.Background())

	submitCtx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	hasDeadline := make(chan bool, 1)
	require.NoError(t, pool.Submit(submitCtx, func(ctx context.Context) {
		_, ok := ctx.Deadline()
		hasDeadline <- ok
		result <- ctx.Err()
	}))
	cancel()

	assert.True(t, <-hasDeadline)
	assert.NoError(t, <-result)
}

func TestPool_SubmitAt(t *testing.T) {
	mc := clock.NewMockClock(testNow)
	pool := NewPool(PoolConfig{Workers: 1, Clock: mc, Logger: testLogger()})
	defer pool.Shutdown(context.Background())

	ran := make(chan time.Time, 1)
	require.NoError(t, pool.SubmitAt(testNow.Add(30*time.Minute), func(ctx context.Context) {
		ran <- mc.Now()
	}))

	select {
	case at := <-ran:
		assert.False(t, at.Before(testNow.Add(30*time.Minute)))
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled task did not run")
	}
	assert.Equal(t, []time.Duration{30 * time.Minute}, mc.Sleeps())
}

func TestPool_RecoversPanics(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 1, Logger: testLogger()})

	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) {
		panic("boom")
	}))
	var ran atomic.Bool
	require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) {
		ran.Store(true)
	}))

	require.NoError(t, pool.Shutdown(context.Background()))
	assert.True(t, ran.Load())
}

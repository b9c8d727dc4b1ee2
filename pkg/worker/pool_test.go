package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ProcessesSubmittedWork(t *testing.T) {
	var processed atomic.Int64
	var wg sync.WaitGroup

	pool := NewPool(2, 10, func(_ context.Context, n int) error {
		defer wg.Done()
		processed.Add(int64(n))
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pool.Start(ctx))

	for i := 1; i <= 5; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(i))
	}
	wg.Wait()

	assert.Equal(t, int64(15), processed.Load())
	require.NoError(t, pool.Stop(time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(5), stats.Submitted)
	assert.Equal(t, int64(5), stats.Processed)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestPool_SubmitBeforeStart(t *testing.T) {
	pool := NewPool(1, 1, func(_ context.Context, _ int) error { return nil })
	assert.ErrorIs(t, pool.Submit(1), ErrPoolNotStarted)
}

func TestPool_QueueFullDropsWork(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ int) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pool.Start(ctx))
	defer close(release)

	// First item occupies the worker, second fills the queue. Keep
	// submitting until the queue reports full; timing of the worker pickup
	// varies.
	sawFull := false
	for i := 0; i < 10; i++ {
		if err := pool.Submit(i); errors.Is(err, ErrQueueFull) {
			sawFull = true
			break
		}
	}

	assert.True(t, sawFull)
	assert.Greater(t, pool.Stats().Dropped, int64(0))
}

func TestPool_FailedWorkIsCounted(t *testing.T) {
	var wg sync.WaitGroup
	pool := NewPool(1, 4, func(_ context.Context, fail bool) error {
		defer wg.Done()
		if fail {
			return errors.New("processing error")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pool.Start(ctx))

	wg.Add(2)
	require.NoError(t, pool.Submit(true))
	require.NoError(t, pool.Submit(false))
	wg.Wait()

	require.NoError(t, pool.Stop(time.Second))
	assert.Equal(t, int64(1), pool.Stats().Failed)
}

func TestPool_DoubleStart(t *testing.T) {
	pool := NewPool(1, 1, func(_ context.Context, _ int) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, pool.Start(ctx))
	assert.ErrorIs(t, pool.Start(ctx), ErrPoolAlreadyStarted)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPool_SubmitAfterStopTimeout(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 4, func(_ context.Context, _ int) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pool.Start(ctx))
	defer close(release)

	require.NoError(t, pool.Submit(1))
	assert.ErrorIs(t, pool.Stop(10*time.Millisecond), ErrStopTimeout)

	// The queue is closed; a late Submit must fail cleanly, not panic
	assert.ErrorIs(t, pool.Submit(2), ErrPoolStopped)
}

func TestPool_StopIsIdempotent(t *testing.T) {
	pool := NewPool(1, 1, func(_ context.Context, _ int) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Stop(time.Second))
	require.NoError(t, pool.Stop(time.Second))
}

package cache

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

func TestLoaderCache_MissThenHit(t *testing.T) {
	var loads atomic.Int32

	c, err := NewLoaderCache(10, func(_ context.Context, key string) (string, error) {
		loads.Add(1)

		return "v-" + key, nil
	})
	require.NoError(t, err)

	v, hit, err := c.Get(t.Context(), "a")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "v-a", v)

	v, hit, err = c.Get(t.Context(), "a")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "v-a", v)
	assert.Equal(t, int32(1), loads.Load())
}

func TestLoaderCache_ConcurrentMissesShareOneLoad(t *testing.T) {
	var loads atomic.Int32

	release := make(chan struct{})

	c, err := NewLoaderCache(10, func(_ context.Context, _ string) (int, error) {
		loads.Add(1)
		<-release

		return 42, nil
	})
	require.NoError(t, err)

	const callers = 20

	var wg sync.WaitGroup

	results := make([]int, callers)

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			v, _, err := c.Get(context.Background(), "same")
			assert.NoError(t, err)

			results[i] = v
		}()
	}

	// Give every goroutine a chance to join the in-flight load.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())

	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestLoaderCache_ErrorsAreNotCached(t *testing.T) {
	var loads atomic.Int32

	boom := errors.New("boom")

	c, err := NewLoaderCache(10, func(_ context.Context, _ string) (string, error) {
		if loads.Add(1) == 1 {
			return "", boom
		}

		return "ok", nil
	})
	require.NoError(t, err)

	_, _, err = c.Get(t.Context(), "k")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, hit, err := c.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "ok", v)
}

func TestLoaderCache_CancelledCallerDoesNotPoisonLoad(t *testing.T) {
	release := make(chan struct{})

	c, err := NewLoaderCache(10, func(ctx context.Context, _ string) (string, error) {
		<-release

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		return "loaded", nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, _, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)

	close(release)

	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)

	v, hit, err := c.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "loaded", v)
}

func TestLoaderCache_InvalidateAndPurge(t *testing.T) {
	c, err := NewLoaderCache(10, func(_ context.Context, key string) (string, error) { return key, nil })
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c"} {
		_, _, err := c.Get(t.Context(), k)
		require.NoError(t, err)
	}

	c.Invalidate("a")
	assert.Equal(t, 2, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestLoaderCache_EvictsLeastRecentlyUsed(t *testing.T) {
	var loads atomic.Int32

	c, err := NewLoaderCache(2, func(_ context.Context, key string) (string, error) {
		loads.Add(1)

		return key, nil
	})
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c"} {
		_, _, err := c.Get(t.Context(), k)
		require.NoError(t, err)
	}

	_, hit, err := c.Get(t.Context(), "a")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(4), loads.Load())
}

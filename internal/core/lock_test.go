package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryCache is an in-process CacheRepository for lock tests.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *memoryCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	delete(c.data, key)
	return ok, nil
}

func (c *memoryCache) SetIfNotExists(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = value
	return true, nil
}

func TestLocalKeyedLockSerializesPerKey(t *testing.T) {
	lock := NewLocalKeyedLock()

	const goroutines = 8
	counter := 0
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			release, err := lock.Acquire(context.Background(), "parent-1")
			require.NoError(t, err)
			defer release()
			counter++
		}()
	}

	wg.Wait()
	assert.Equal(t, goroutines, counter)
}

func TestCacheKeyedLock(t *testing.T) {
	t.Run("acquire and release", func(t *testing.T) {
		cache := newMemoryCache()
		lock, err := NewCacheKeyedLock(CacheKeyedLockOptions{Cache: cache, PollInterval: time.Millisecond})
		require.NoError(t, err)

		release, err := lock.Acquire(context.Background(), "parent-1")
		require.NoError(t, err)

		// Held: a second acquire must block until release.
		blockedCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = lock.Acquire(blockedCtx, "parent-1")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		release()

		release2, err := lock.Acquire(context.Background(), "parent-1")
		require.NoError(t, err)
		release2()
	})

	t.Run("distinct keys do not contend", func(t *testing.T) {
		cache := newMemoryCache()
		lock, err := NewCacheKeyedLock(CacheKeyedLockOptions{Cache: cache, PollInterval: time.Millisecond})
		require.NoError(t, err)

		releaseA, err := lock.Acquire(context.Background(), "parent-a")
		require.NoError(t, err)
		defer releaseA()

		releaseB, err := lock.Acquire(context.Background(), "parent-b")
		require.NoError(t, err)
		defer releaseB()
	})

	t.Run("requires a cache", func(t *testing.T) {
		_, err := NewCacheKeyedLock(CacheKeyedLockOptions{})
		assert.Error(t, err)
	})
}

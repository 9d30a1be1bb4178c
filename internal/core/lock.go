package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// KeyedLock serializes the parent-completion critical section. Two children of
// the same parent completing concurrently must not both run the completion
// evaluation, or the parent could be double-completed.
type KeyedLock interface {
	// Acquire blocks until the lock for key is held or ctx is done. The
	// returned release function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LocalKeyedLock serializes per key within a single process. Suitable for
// single-node deployments and tests; multi-instance deployments should use
// CacheKeyedLock so correctness holds across orchestrator processes.
type LocalKeyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalKeyedLock creates an in-process keyed lock.
func NewLocalKeyedLock() *LocalKeyedLock {
	return &LocalKeyedLock{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the per-key mutex, creating it on first use.
func (l *LocalKeyedLock) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

// CacheKeyedLock implements a distributed lock over an atomic set-if-absent
// cache primitive (redis SET NX). The TTL bounds how long a crashed holder
// can block other instances.
type CacheKeyedLock struct {
	cache        CacheRepository
	prefix       string
	ttl          time.Duration
	pollInterval time.Duration
}

// CacheKeyedLockOptions configures a CacheKeyedLock.
type CacheKeyedLockOptions struct {
	Cache        CacheRepository // Required
	Prefix       string          // Optional: defaults to "job-lock:"
	TTL          time.Duration   // Optional: defaults to 30s
	PollInterval time.Duration   // Optional: defaults to 50ms
}

// NewCacheKeyedLock creates a keyed lock backed by the given cache.
func NewCacheKeyedLock(opts CacheKeyedLockOptions) (*CacheKeyedLock, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("cache repository is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "job-lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	return &CacheKeyedLock{
		cache:        opts.Cache,
		prefix:       opts.Prefix,
		ttl:          opts.TTL,
		pollInterval: opts.PollInterval,
	}, nil
}

// Acquire polls SetIfNotExists until the lock is won or ctx is done.
func (l *CacheKeyedLock) Acquire(ctx context.Context, key string) (func(), error) {
	cacheKey := l.prefix + key

	for {
		ok, err := l.cache.SetIfNotExists(ctx, cacheKey, []byte("1"), l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			release := func() {
				// Best effort: the TTL reclaims the lock if delete fails.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_, _ = l.cache.Delete(releaseCtx, cacheKey)
			}
			return release, nil
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		}
	}
}

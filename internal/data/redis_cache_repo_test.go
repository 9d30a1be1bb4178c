package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundingcalc/jobs-engine/internal/testutil"
)

func TestRedisCacheRepo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	repo := NewRedisCacheRepo(testutil.SetupTestRedis(t))
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "jobs:test:1", []byte("value"), time.Minute))

		got, err := repo.Get(ctx, "jobs:test:1")
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), got)
	})

	t.Run("get missing key", func(t *testing.T) {
		got, err := repo.Get(ctx, "jobs:test:missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "jobs:test:2", []byte("value"), time.Minute))

		existed, err := repo.Delete(ctx, "jobs:test:2")
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = repo.Delete(ctx, "jobs:test:2")
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("set if not exists", func(t *testing.T) {
		ok, err := repo.SetIfNotExists(ctx, "jobs:test:lock", []byte("a"), time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.SetIfNotExists(ctx, "jobs:test:lock", []byte("b"), time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "second writer must lose")

		got, err := repo.Get(ctx, "jobs:test:lock")
		require.NoError(t, err)
		assert.Equal(t, []byte("a"), got)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		assert.Error(t, repo.Set(ctx, "", nil, time.Minute))
		_, err := repo.Get(ctx, "")
		assert.Error(t, err)
	})
}

package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CoachFox/internal/pkg/env"
)

func TestOptionsFromEnv(t *testing.T) {
	prev := env.Env
	env.Env = map[string]string{
		"CACHE_HOST":     "redis.internal",
		"CACHE_PORT":     "6380",
		"CACHE_PASSWORD": "secret",
		"CACHE_DB":       "3",
	}
	t.Cleanup(func() { env.Env = prev })

	opts := Options()
	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)
}

func TestSetClientAndPing(t *testing.T) {
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = Close() })

	require.NoError(t, Ping(context.Background()))
	require.NoError(t, GetClient().Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	mr.Close()
	assert.Error(t, Ping(context.Background()))
}

func TestLimiterStorageUsesCacheServer(t *testing.T) {
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = Close() })

	storage := NewLimiterStorage()
	t.Cleanup(func() { _ = storage.Close() })

	require.NoError(t, storage.Set("limiter:1.2.3.4", []byte("3"), 0))
	got, err := storage.Get("limiter:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), got)

	mr.Select(limiterDatabase)
	assert.True(t, mr.Exists("limiter:1.2.3.4"))
}

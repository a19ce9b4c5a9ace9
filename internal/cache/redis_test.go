package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestRedis_GetSetDelete(t *testing.T) {
	t.Run("miss on absent key", func(t *testing.T) {
		store, _ := setupTestRedis(t)

		_, err := store.Get(context.Background(), "product_images_7")

		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("stores value with ttl", func(t *testing.T) {
		store, mr := setupTestRedis(t)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "product_images_7", []byte(`{"is_default":false}`), time.Hour))

		got, err := store.Get(ctx, "product_images_7")
		require.NoError(t, err)
		assert.Equal(t, `{"is_default":false}`, string(got))
		assert.Equal(t, time.Hour, mr.TTL("product_images_7"))
	})

	t.Run("entry expires after ttl", func(t *testing.T) {
		store, mr := setupTestRedis(t)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "product_images_8", []byte("x"), 5*time.Minute))
		mr.FastForward(5 * time.Minute)

		_, err := store.Get(ctx, "product_images_8")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store, mr := setupTestRedis(t)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "product_images_9", []byte("x"), time.Hour))
		require.NoError(t, store.Delete(ctx, "product_images_9"))
		require.NoError(t, store.Delete(ctx, "product_images_9"))

		assert.False(t, mr.Exists("product_images_9"))
	})

	t.Run("rejects non-positive ttl", func(t *testing.T) {
		store, _ := setupTestRedis(t)

		err := store.Set(context.Background(), "k", []byte("x"), 0)

		assert.Error(t, err)
	})
}

func TestRedis_ServerDown(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()

	_, err := store.Get(context.Background(), "product_images_1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
	assert.Contains(t, err.Error(), "getting product_images_1")
}

func TestNewRedis_InvalidURL(t *testing.T) {
	_, err := NewRedis("not-a-redis-url://")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing redis url")
}

func TestRedis_Ping(t *testing.T) {
	store, _ := setupTestRedis(t)

	assert.NoError(t, store.Ping(context.Background()))
}

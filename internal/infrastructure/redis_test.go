package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDeduper(t *testing.T) (*Deduper, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	return NewDeduper(rdb), mr
}

func TestDeduperSeen(t *testing.T) {
	d, mr := setupDeduper(t)
	ctx := context.Background()
	key := UpdateKey(7, 1001)

	seen, err := d.Seen(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = d.Seen(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(2 * time.Minute)

	seen, err = d.Seen(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, seen, "key should expire after ttl")
}

func TestDeduperForget(t *testing.T) {
	d, _ := setupDeduper(t)
	ctx := context.Background()
	key := PaymentKey("cryptopay", "42")

	_, err := d.Seen(ctx, key, time.Hour)
	require.NoError(t, err)
	require.NoError(t, d.Forget(ctx, key))

	seen, err := d.Seen(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestDeduperRedisDown(t *testing.T) {
	d, mr := setupDeduper(t)
	mr.Close()

	_, err := d.Seen(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

func TestDedupKeys(t *testing.T) {
	assert.Equal(t, "tg:update:7:1001", UpdateKey(7, 1001))
	assert.Equal(t, "pay:cryptopay:abc", PaymentKey("cryptopay", "abc"))
}

package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDedup(t *testing.T) (*miniredis.Miniredis, *RedisDeduplicator) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	d := NewRedisDeduplicator(client, time.Hour)
	return mr, d
}

func TestClaim_Expiry(t *testing.T) {
	mr, d := newDedup(t)
	ctx := context.Background()

	dup, err := d.Claim(ctx, []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, dup)

	dup, err = d.Claim(ctx, []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, dup)

	assert.Equal(t, time.Hour, mr.TTL("event:abc"))

	mr.FastForward(2 * time.Hour)
	dup, err = d.Claim(ctx, []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, dup, "expired keys are forgotten")
}

func TestClaimAndRelease(t *testing.T) {
	_, d := newDedup(t)
	ctx := context.Background()

	_, err := d.Claim(ctx, []string{"b"})
	require.NoError(t, err)

	dup, err := d.Claim(ctx, []string{"a", "b", "c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false, true}, dup)

	require.NoError(t, d.Release(ctx, []string{"a", "c"}))

	dup, err = d.Claim(ctx, []string{"a", "c"})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false}, dup)

	empty, err := d.Claim(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

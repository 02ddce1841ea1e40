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

type payload struct {
	Version string  `json:"version"`
	Rate    float64 `json:"rate"`
}

func newTestCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, ttl), mr
}

func TestReportKey(t *testing.T) {
	assert.Equal(t, "report:group_v2:seq-41", ReportKey("group_v2", "seq-41"))
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()
	key := ReportKey("group_v1", "abc")

	var got payload
	hit, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, key, payload{Version: "group_v1", Rate: 12.5}))
	assert.True(t, mr.Exists(key))

	hit, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload{Version: "group_v1", Rate: 12.5}, got)
}

func TestRedisCache_Expiry(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", payload{Version: "v"}))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	hit, err := c.Get(ctx, "k", &payload{})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCache_CorruptValue(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	require.NoError(t, mr.Set("k", "not snappy"))

	hit, err := c.Get(context.Background(), "k", &payload{})
	assert.False(t, hit)
	assert.Error(t, err)
}

func TestRedisCache_Unavailable(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	mr.Close()

	_, err := c.Get(context.Background(), "k", &payload{})
	assert.Error(t, err)
	assert.Error(t, c.Set(context.Background(), "k", payload{}))
}

func TestNop(t *testing.T) {
	var c ReportCache = Nop{}
	require.NoError(t, c.Set(context.Background(), "k", 1))
	hit, err := c.Get(context.Background(), "k", new(int))
	require.NoError(t, err)
	assert.False(t, hit)
}

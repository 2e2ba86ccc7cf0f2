package predcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryStoreExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "NVDA", 123.45, 43200*time.Second))

	rec, found, err := cache.Get(ctx, "NVDA")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 123.45, rec.Value)
	assert.Equal(t, clock.t, rec.ProducedAt)
	assert.Equal(t, clock.t.Add(12*time.Hour), rec.ExpiresAt())

	clock.Advance(43199 * time.Second)
	_, found, err = cache.Get(ctx, "NVDA")
	require.NoError(t, err)
	assert.True(t, found, "still live one second before expiry")

	clock.Advance(time.Second)
	_, found, err = cache.Get(ctx, "NVDA")
	require.NoError(t, err)
	assert.False(t, found, "entry at its expiry instant is not served")
}

func TestMemoryStoreOverwrite(t *testing.T) {
	cache := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "AAPL", 1, time.Hour))
	require.NoError(t, cache.Set(ctx, "AAPL", 2, time.Hour))

	rec, found, err := cache.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2.0, rec.Value)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisStore(client)
}

func TestRedisStoreExpiry(t *testing.T) {
	mr, cache := newRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "NVDA", 99.5, 43200*time.Second))
	assert.True(t, mr.Exists("prediction_value:NVDA"))
	assert.Equal(t, 43200*time.Second, mr.TTL("prediction_value:NVDA"))

	rec, found, err := cache.Get(ctx, "NVDA")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 99.5, rec.Value)
	assert.Equal(t, 12*time.Hour, rec.TTL)

	mr.FastForward(43200 * time.Second)
	_, found, err = cache.Get(ctx, "NVDA")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreAcceptsBareNumbers(t *testing.T) {
	mr, cache := newRedis(t)
	require.NoError(t, mr.Set("prediction_value:MSFT", "412.3"))

	rec, found, err := cache.Get(context.Background(), "MSFT")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 412.3, rec.Value)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, cache := newRedis(t)
	mr.Close()

	_, _, err := cache.Get(context.Background(), "NVDA")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))

	err = cache.Set(context.Background(), "NVDA", 1, time.Minute)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

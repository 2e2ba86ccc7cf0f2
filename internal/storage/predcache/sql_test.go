package predcache

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/database"
	"github.com/aristath/foresight/internal/domain"
)

func newSQLStore(t *testing.T, clock *fakeClock) *SQLStore {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	s := NewSQLStore(database.Wrap(conn, database.DriverSQLite, "test"))
	s.now = clock.Now
	return s
}

func TestSQLStoreExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := newSQLStore(t, clock)
	ctx := context.Background()

	_, found, err := cache.Get(ctx, "NVDA")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "NVDA", 123.45, 12*time.Hour))

	rec, found, err := cache.Get(ctx, "NVDA")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 123.45, rec.Value)
	assert.True(t, clock.t.Equal(rec.ProducedAt))
	assert.Equal(t, 12*time.Hour, rec.TTL)

	clock.Advance(12*time.Hour - time.Second)
	_, found, err = cache.Get(ctx, "NVDA")
	require.NoError(t, err)
	assert.True(t, found)

	clock.Advance(time.Second)
	_, found, err = cache.Get(ctx, "NVDA")
	require.NoError(t, err)
	assert.False(t, found, "expired at exactly produced_at + ttl")
}

func TestSQLStoreOverwrite(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := newSQLStore(t, clock)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "NABIL", 500, time.Hour))
	clock.Advance(30 * time.Minute)
	require.NoError(t, cache.Set(ctx, "NABIL", 510, time.Hour))

	rec, found, err := cache.Get(ctx, "NABIL")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 510.0, rec.Value)
	assert.True(t, clock.t.Add(time.Hour).Equal(rec.ExpiresAt()))
}

func TestSQLStoreDeleteExpired(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := newSQLStore(t, clock)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "NVDA", 1, time.Hour))
	require.NoError(t, cache.Set(ctx, "MSFT", 2, 3*time.Hour))

	clock.Advance(2 * time.Hour)
	deleted, err := cache.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, found, err := cache.Get(ctx, "MSFT")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSQLStoreUnavailable(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	cache := newSQLStore(t, clock)
	require.NoError(t, cache.db.Close())

	_, _, err := cache.Get(context.Background(), "NVDA")
	require.Error(t, err)
	assert.Equal(t, domain.KindStoreUnavailable, domain.KindOf(err))
}

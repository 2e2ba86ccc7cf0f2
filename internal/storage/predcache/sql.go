package predcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/foresight/internal/database"
	"github.com/aristath/foresight/internal/domain"
)

var _ domain.PredictionCache = (*SQLStore)(nil)

// SQLTable holds one row per cached prediction
const SQLTable = "prediction_cache"

// SQLStore keeps predictions in the durable database with an expiry
// timestamp. Expired rows are ignored on read and removed by DeleteExpired.
type SQLStore struct {
	db  *database.DB
	now func() time.Time

	mu    sync.Mutex
	ready bool
}

// NewSQLStore creates a database-backed prediction cache. The table is
// created on first use.
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if _, err := s.db.Conn().ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		cache_key TEXT PRIMARY KEY,
		value DOUBLE PRECISION NOT NULL,
		produced_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	)`, SQLTable)); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// Set upserts the prediction for symbol with expiry now + ttl
func (s *SQLStore) Set(ctx context.Context, symbol string, value float64, ttl time.Duration) error {
	if err := s.ensureSchema(ctx); err != nil {
		return domain.Unavailable("cache schema", err)
	}
	now := s.now()
	query := s.db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (cache_key, value, produced_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET value = excluded.value, produced_at = excluded.produced_at, expires_at = excluded.expires_at`,
		SQLTable,
	))
	if _, err := s.db.Conn().ExecContext(ctx, query,
		domain.PredictionKey(symbol), value, now.UnixNano(), now.Add(ttl).UnixNano(),
	); err != nil {
		return domain.Unavailable("cache set "+symbol, err)
	}
	return nil
}

// Get returns the prediction only while expires_at is in the future
func (s *SQLStore) Get(ctx context.Context, symbol string) (domain.PredictionRecord, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return domain.PredictionRecord{}, false, domain.Unavailable("cache schema", err)
	}
	query := s.db.Rebind(fmt.Sprintf(
		"SELECT value, produced_at, expires_at FROM %s WHERE cache_key = ? AND expires_at > ?", SQLTable))

	var value float64
	var produced, expires int64
	err := s.db.Conn().QueryRowContext(ctx, query, domain.PredictionKey(symbol), s.now().UnixNano()).
		Scan(&value, &produced, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PredictionRecord{}, false, nil
	}
	if err != nil {
		return domain.PredictionRecord{}, false, domain.Unavailable("cache get "+symbol, err)
	}
	return domain.PredictionRecord{
		Symbol:     symbol,
		Value:      value,
		ProducedAt: time.Unix(0, produced).UTC(),
		TTL:        time.Duration(expires - produced),
	}, true, nil
}

// DeleteExpired removes rows whose expiry has passed and returns how many
func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, domain.Unavailable("cache schema", err)
	}
	result, err := s.db.Conn().ExecContext(ctx,
		s.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE expires_at <= ?", SQLTable)), s.now().UnixNano())
	if err != nil {
		return 0, domain.Unavailable("cache sweep", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", SQLTable, err)
	}
	return deleted, nil
}

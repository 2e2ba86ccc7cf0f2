package predcache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aristath/foresight/internal/domain"
)

var _ domain.PredictionCache = (*RedisStore)(nil)

// payload is the stored JSON document
type payload struct {
	Value      float64   `json:"value"`
	ProducedAt time.Time `json:"produced_at"`
	TTLSeconds float64   `json:"ttl_seconds"`
}

// RedisStore relies on native key expiry
type RedisStore struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisStore creates a redis-backed prediction cache
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Set stores the prediction as a JSON payload that redis expires after ttl
func (s *RedisStore) Set(ctx context.Context, symbol string, value float64, ttl time.Duration) error {
	data, err := json.Marshal(payload{
		Value:      value,
		ProducedAt: s.now().UTC(),
		TTLSeconds: ttl.Seconds(),
	})
	if err != nil {
		return domain.NewError(domain.KindInternal, "cache encode", symbol, err)
	}
	if err := s.client.Set(ctx, domain.PredictionKey(symbol), data, ttl).Err(); err != nil {
		return domain.Unavailable("cache set "+symbol, err)
	}
	return nil
}

// Get returns the cached prediction. Bare numeric values are accepted too.
func (s *RedisStore) Get(ctx context.Context, symbol string) (domain.PredictionRecord, bool, error) {
	raw, err := s.client.Get(ctx, domain.PredictionKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PredictionRecord{}, false, nil
	}
	if err != nil {
		return domain.PredictionRecord{}, false, domain.Unavailable("cache get "+symbol, err)
	}

	rec := domain.PredictionRecord{Symbol: symbol}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var p payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.PredictionRecord{}, false, domain.NewError(domain.KindInternal, "cache decode", symbol, err)
		}
		rec.Value = p.Value
		rec.ProducedAt = p.ProducedAt
		rec.TTL = time.Duration(p.TTLSeconds * float64(time.Second))
		return rec, true, nil
	}

	// bare numbers are written by older producers
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return domain.PredictionRecord{}, false, domain.NewError(domain.KindInternal, "cache decode", symbol, err)
	}
	rec.Value = v
	return rec, true, nil
}

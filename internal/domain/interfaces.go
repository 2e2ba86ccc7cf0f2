package domain

import (
	"context"
	"time"
)

// BlobStore persists opaque model artifacts by logical name.
// Get reports a missing key as found=false, not as an error.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
}

// SeriesSource resolves the bar history of an instrument. limit <= 0 returns
// the full history, otherwise only the trailing limit bars.
type SeriesSource interface {
	Resolve(ctx context.Context, inst Instrument, limit int) (BarSeries, bool, error)
}

// PredictionRecord is a cached prediction
type PredictionRecord struct {
	Symbol     string        `json:"symbol"`
	Value      float64       `json:"value"`
	ProducedAt time.Time     `json:"produced_at"`
	TTL        time.Duration `json:"ttl"`
}

// ExpiresAt is the instant after which the record must not be served
func (r PredictionRecord) ExpiresAt() time.Time {
	return r.ProducedAt.Add(r.TTL)
}

// PredictionCache stores predictions with a time-to-live.
// Get never returns an expired record.
type PredictionCache interface {
	Get(ctx context.Context, symbol string) (PredictionRecord, bool, error)
	Set(ctx context.Context, symbol string, value float64, ttl time.Duration) error
}

// BarStore is the durable side of bar persistence
type BarStore interface {
	Replace(ctx context.Context, symbol string, bars []Bar) error
	Exists(ctx context.Context, symbol string) (bool, error)
}

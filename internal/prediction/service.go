// Package prediction serves per-instrument predictions with a cache-aside
// policy: cached values are returned as is, misses are computed from the
// stored model and written through to the cache.
package prediction

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/forecast"
	"github.com/aristath/foresight/internal/metrics"
)

// Prediction is the answer to one request
type Prediction struct {
	Instrument domain.Instrument `json:"-"`
	Value      float64           `json:"prediction"`
	Cached     bool              `json:"cached"`
	ProducedAt time.Time         `json:"produced_at"`
}

// Predictor computes a prediction from a series and a model
type Predictor interface {
	Predict(series domain.BarSeries, model forecast.Model) (float64, error)
	TimeSteps() int
}

// Service is the single entry point for prediction requests
type Service struct {
	cache   domain.PredictionCache
	blobs   domain.BlobStore
	series  domain.SeriesSource
	codec   forecast.Codec
	engine  Predictor
	ttl     time.Duration
	metrics *metrics.Recorder
	now     func() time.Time
	log     zerolog.Logger
}

// NewService creates a prediction service writing through with ttl
func NewService(
	cache domain.PredictionCache,
	blobs domain.BlobStore,
	series domain.SeriesSource,
	codec forecast.Codec,
	engine Predictor,
	ttl time.Duration,
	rec *metrics.Recorder,
	log zerolog.Logger,
) *Service {
	return &Service{
		cache:   cache,
		blobs:   blobs,
		series:  series,
		codec:   codec,
		engine:  engine,
		ttl:     ttl,
		metrics: rec,
		now:     time.Now,
		log:     log.With().Str("service", "prediction").Logger(),
	}
}

// GetPrediction returns the cached prediction for inst or computes a new one.
// A failing cache lookup is treated as a miss.
func (s *Service) GetPrediction(ctx context.Context, inst domain.Instrument) (Prediction, error) {
	log := s.log.With().Str("market", string(inst.Market)).Str("symbol", inst.Symbol).Logger()

	rec, found, err := s.cache.Get(ctx, inst.Symbol)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Cache lookup failed, computing")
		s.metrics.CacheLookup("error")
	case found:
		s.metrics.CacheLookup("hit")
		return Prediction{Instrument: inst, Value: rec.Value, Cached: true, ProducedAt: rec.ProducedAt}, nil
	default:
		s.metrics.CacheLookup("miss")
	}

	start := s.now()
	value, err := s.compute(ctx, inst)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(domain.KindOf(err))).Msg("Prediction failed")
		return Prediction{}, err
	}
	s.metrics.PredictionComputed(string(inst.Market), s.now().Sub(start))

	if err := s.cache.Set(ctx, inst.Symbol, value, s.ttl); err != nil {
		log.Error().Err(err).Msg("Failed to cache prediction")
	}

	log.Info().Float64("prediction", value).Msg("Prediction computed")
	return Prediction{Instrument: inst, Value: value, ProducedAt: start}, nil
}

func (s *Service) compute(ctx context.Context, inst domain.Instrument) (float64, error) {
	data, found, err := s.blobs.Get(ctx, inst.ModelKey())
	if err != nil {
		return 0, storeError("load model", err)
	}
	if !found {
		return 0, domain.NewError(domain.KindModelNotFound, "load model", inst.ModelKey(), nil)
	}
	model, err := s.codec.Decode(data)
	if err != nil {
		return 0, domain.NewError(domain.KindInternal, "decode model", inst.ModelKey(), err)
	}

	series, found, err := s.series.Resolve(ctx, inst, s.engine.TimeSteps())
	if err != nil {
		return 0, storeError("load series", err)
	}
	if !found {
		return 0, domain.NewError(domain.KindDataNotFound, "load series", inst.String(), nil)
	}

	return s.engine.Predict(series, model)
}

// storeError keeps classified errors and marks everything else unavailable
func storeError(op string, err error) error {
	var kinded *domain.Error
	if errors.As(err, &kinded) {
		return err
	}
	return domain.Unavailable(op, err)
}

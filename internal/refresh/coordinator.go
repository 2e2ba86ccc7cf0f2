// Package refresh repopulates the shared stores from freshly produced local
// data: model artifacts into the blob store, predictions into the cache and
// bar series into the durable store.
package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/forecast"
	"github.com/aristath/foresight/internal/metrics"
	"github.com/aristath/foresight/internal/scheduler"
)

// Stage guards, one per sub-operation
const (
	LockModels      = "stage:refresh-models"
	LockPredictions = "stage:refresh-predictions"
	LockBars        = "stage:refresh-bars"
)

// Stage names used in reports and metrics
const (
	StageModels      = "refresh-models"
	StagePredictions = "refresh-predictions"
	StageBars        = "refresh-bars"
)

// Report counts what a stage did
type Report struct {
	Stage     string `json:"stage"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// ArtifactSource lists and reads local model artifacts
type ArtifactSource interface {
	List() ([]string, error)
	Read(key string) ([]byte, error)
}

// BarFiles lists and reads local bar working copies
type BarFiles interface {
	Symbols() ([]string, error)
	Read(symbol string) (domain.BarSeries, bool, error)
}

// Predictor computes a prediction from a series and a model
type Predictor interface {
	Predict(series domain.BarSeries, model forecast.Model) (float64, error)
	TimeSteps() int
}

// Deps are the collaborators of a Coordinator
type Deps struct {
	LocalModels ArtifactSource
	LocalBars   BarFiles
	Blobs       domain.BlobStore
	Durable     domain.BarStore
	Cache       domain.PredictionCache
	Series      domain.SeriesSource
	Codec       forecast.Codec
	Engine      Predictor
	Locks       *scheduler.Locks
	Metrics     *metrics.Recorder
}

// Coordinator runs the refresh stages
type Coordinator struct {
	deps Deps
	ttl  time.Duration
	log  zerolog.Logger
}

// NewCoordinator creates a refresh coordinator writing predictions with ttl
func NewCoordinator(deps Deps, ttl time.Duration, log zerolog.Logger) *Coordinator {
	if deps.Locks == nil {
		deps.Locks = scheduler.NewLocks()
	}
	return &Coordinator{
		deps: deps,
		ttl:  ttl,
		log:  log.With().Str("component", "refresh").Logger(),
	}
}

// RefreshAll runs models, predictions and bars in that order. A busy or
// failing stage does not prevent the following ones.
func (c *Coordinator) RefreshAll(ctx context.Context, instruments []domain.Instrument) ([]Report, error) {
	var (
		reports []Report
		errs    []error
	)
	for _, stage := range []func() (Report, error){
		func() (Report, error) { return c.RefreshModels(ctx) },
		func() (Report, error) { return c.RefreshPredictions(ctx, instruments) },
		func() (Report, error) { return c.PersistBars(ctx) },
	} {
		report, err := stage()
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// RefreshModels copies every local artifact into the blob store under its
// logical name. Undecodable artifacts are skipped.
func (c *Coordinator) RefreshModels(ctx context.Context) (Report, error) {
	report := Report{Stage: StageModels}
	release, ok := c.deps.Locks.TryAcquire(LockModels)
	if !ok {
		c.log.Warn().Str("stage", StageModels).Msg("Stage already running, skipping")
		return report, scheduler.ErrJobBusy
	}
	defer release()

	keys, err := c.deps.LocalModels.List()
	if err != nil {
		return report, err
	}

	for _, key := range keys {
		log := c.log.With().Str("stage", StageModels).Str("model", key).Logger()
		data, err := c.deps.LocalModels.Read(key)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read local artifact")
			c.count(&report, "failed")
			continue
		}
		if _, err := c.deps.Codec.Decode(data); err != nil {
			log.Warn().Err(err).Msg("Local artifact unreadable, skipping")
			c.count(&report, "skipped")
			continue
		}
		if err := c.deps.Blobs.Set(ctx, key, data); err != nil {
			log.Error().Err(err).Msg("Failed to store artifact")
			c.count(&report, "failed")
			continue
		}
		log.Debug().Int("bytes", len(data)).Msg("Artifact stored")
		c.count(&report, "processed")
	}

	c.logReport(report)
	return report, nil
}

// RefreshPredictions computes and caches a prediction for each instrument
// that has both a stored model and enough bars.
func (c *Coordinator) RefreshPredictions(ctx context.Context, instruments []domain.Instrument) (Report, error) {
	report := Report{Stage: StagePredictions}
	release, ok := c.deps.Locks.TryAcquire(LockPredictions)
	if !ok {
		c.log.Warn().Str("stage", StagePredictions).Msg("Stage already running, skipping")
		return report, scheduler.ErrJobBusy
	}
	defer release()

	for _, inst := range instruments {
		log := c.log.With().
			Str("stage", StagePredictions).
			Str("market", string(inst.Market)).
			Str("symbol", inst.Symbol).
			Logger()

		data, found, err := c.deps.Blobs.Get(ctx, inst.ModelKey())
		if err != nil {
			log.Error().Err(err).Msg("Failed to load model")
			c.count(&report, "failed")
			continue
		}
		if !found {
			log.Warn().Msg("No stored model, skipping")
			c.count(&report, "skipped")
			continue
		}
		model, err := c.deps.Codec.Decode(data)
		if err != nil {
			log.Error().Err(err).Msg("Stored model unreadable")
			c.count(&report, "failed")
			continue
		}

		series, found, err := c.deps.Series.Resolve(ctx, inst, c.deps.Engine.TimeSteps())
		if err != nil {
			log.Error().Err(err).Msg("Failed to load series")
			c.count(&report, "failed")
			continue
		}
		if !found {
			log.Warn().Msg("No price data, skipping")
			c.count(&report, "skipped")
			continue
		}

		value, err := c.deps.Engine.Predict(series, model)
		if errors.Is(err, domain.ErrInsufficientData) {
			log.Warn().Err(err).Msg("Not enough bars, skipping")
			c.count(&report, "skipped")
			continue
		}
		if err != nil {
			log.Error().Err(err).Msg("Prediction failed")
			c.count(&report, "failed")
			continue
		}

		if err := c.deps.Cache.Set(ctx, inst.Symbol, value, c.ttl); err != nil {
			log.Error().Err(err).Msg("Failed to cache prediction")
			c.count(&report, "failed")
			continue
		}
		log.Debug().Float64("prediction", value).Msg("Prediction cached")
		c.count(&report, "processed")
	}

	c.logReport(report)
	return report, nil
}

// PersistBars replaces the durable table of every symbol that has a local
// working copy.
func (c *Coordinator) PersistBars(ctx context.Context) (Report, error) {
	report := Report{Stage: StageBars}
	release, ok := c.deps.Locks.TryAcquire(LockBars)
	if !ok {
		c.log.Warn().Str("stage", StageBars).Msg("Stage already running, skipping")
		return report, scheduler.ErrJobBusy
	}
	defer release()

	symbols, err := c.deps.LocalBars.Symbols()
	if err != nil {
		return report, err
	}

	for _, symbol := range symbols {
		log := c.log.With().Str("stage", StageBars).Str("symbol", symbol).Logger()
		series, found, err := c.deps.LocalBars.Read(symbol)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read working copy")
			c.count(&report, "failed")
			continue
		}
		if !found {
			c.count(&report, "skipped")
			continue
		}
		if err := c.deps.Durable.Replace(ctx, symbol, series.Bars); err != nil {
			log.Error().Err(err).Msg("Failed to persist bars")
			c.count(&report, "failed")
			continue
		}
		log.Debug().Int("bars", series.Len()).Msg("Bars persisted")
		c.count(&report, "processed")
	}

	c.logReport(report)
	return report, nil
}

func (c *Coordinator) count(r *Report, result string) {
	switch result {
	case "processed":
		r.Processed++
	case "skipped":
		r.Skipped++
	default:
		r.Failed++
	}
	c.deps.Metrics.StageItem(r.Stage, result)
}

func (c *Coordinator) logReport(r Report) {
	c.log.Info().
		Str("stage", r.Stage).
		Int("processed", r.Processed).
		Int("skipped", r.Skipped).
		Int("failed", r.Failed).
		Msg("Stage finished")
}

// Package training runs the per-instrument model fine-tuning cycle.
package training

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/forecast"
	"github.com/aristath/foresight/internal/metrics"
	"github.com/aristath/foresight/internal/scheduler"
)

// StageLock guards the training stage against overlapping cycles
const StageLock = "stage:train"

// Status is the result of one instrument's training attempt
type Status string

const (
	StatusTrained Status = "trained"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome reports what happened to one instrument
type Outcome struct {
	Instrument domain.Instrument  `json:"instrument"`
	Status     Status             `json:"status"`
	Reason     string             `json:"reason,omitempty"`
	Report     forecast.FitReport `json:"-"`
	Err        error              `json:"-"`
}

// ArtifactWriter receives a local copy of every fitted artifact
type ArtifactWriter interface {
	Write(key string, data []byte) error
}

// Config holds the training hyper-parameters
type Config struct {
	LookBack   int
	TrainSplit float64
}

// Coordinator trains one model per instrument
type Coordinator struct {
	series  domain.SeriesSource
	blobs   domain.BlobStore
	local   ArtifactWriter
	trainer forecast.Trainer
	codec   forecast.Codec
	locks   *scheduler.Locks
	metrics *metrics.Recorder
	cfg     Config
	log     zerolog.Logger
}

// NewCoordinator creates a training coordinator. local and rec may be nil.
func NewCoordinator(
	series domain.SeriesSource,
	blobs domain.BlobStore,
	local ArtifactWriter,
	trainer forecast.Trainer,
	codec forecast.Codec,
	locks *scheduler.Locks,
	rec *metrics.Recorder,
	cfg Config,
	log zerolog.Logger,
) *Coordinator {
	if locks == nil {
		locks = scheduler.NewLocks()
	}
	return &Coordinator{
		series:  series,
		blobs:   blobs,
		local:   local,
		trainer: trainer,
		codec:   codec,
		locks:   locks,
		metrics: rec,
		cfg:     cfg,
		log:     log.With().Str("component", "training").Logger(),
	}
}

// RunTrainingCycle trains every instrument in order. A failure for one
// instrument is recorded in its outcome and never stops the others.
func (c *Coordinator) RunTrainingCycle(ctx context.Context, instruments []domain.Instrument) ([]Outcome, error) {
	release, ok := c.locks.TryAcquire(StageLock)
	if !ok {
		c.log.Warn().Msg("Training cycle already running, skipping")
		return nil, scheduler.ErrJobBusy
	}
	defer release()

	c.log.Info().Int("instruments", len(instruments)).Msg("Starting training cycle")

	outcomes := make([]Outcome, 0, len(instruments))
	var trained, skipped, failed int
	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		out := c.trainOne(ctx, inst)
		outcomes = append(outcomes, out)
		c.metrics.TrainingOutcome(string(inst.Market), string(out.Status))

		switch out.Status {
		case StatusTrained:
			trained++
		case StatusSkipped:
			skipped++
		default:
			failed++
		}
	}

	c.log.Info().
		Int("trained", trained).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("Training cycle finished")
	return outcomes, nil
}

func (c *Coordinator) trainOne(ctx context.Context, inst domain.Instrument) Outcome {
	log := c.log.With().Str("market", string(inst.Market)).Str("symbol", inst.Symbol).Logger()
	out := Outcome{Instrument: inst}
	fail := func(step string, err error) Outcome {
		out.Status = StatusFailed
		out.Reason = step
		out.Err = err
		log.Error().Err(err).Str("step", step).Msg("Training failed")
		return out
	}

	series, found, err := c.series.Resolve(ctx, inst, 0)
	if err != nil {
		return fail("load series", err)
	}
	if !found {
		out.Status = StatusSkipped
		out.Reason = "no price data"
		log.Warn().Msg("No price data, skipping")
		return out
	}

	key := inst.ModelKey()
	base, err := c.loadBase(ctx, key, log)
	if err != nil {
		return fail("load model", err)
	}

	set, err := forecast.PrepareTraining(series.Closes(), c.cfg.LookBack, c.cfg.TrainSplit)
	if err != nil {
		out.Status = StatusSkipped
		out.Reason = "insufficient data"
		out.Err = err
		log.Warn().Err(err).Int("bars", series.Len()).Msg("Not enough bars to train, skipping")
		return out
	}

	model, report, err := c.trainer.Fit(ctx, base, set.Train, set.Validation)
	if err != nil {
		return fail("fit", err)
	}
	out.Report = report

	data, err := c.codec.Encode(model)
	if err != nil {
		return fail("encode", err)
	}
	if c.local != nil {
		if err := c.local.Write(key, data); err != nil {
			return fail("write local artifact", err)
		}
	}
	if err := c.blobs.Set(ctx, key, data); err != nil {
		return fail("store artifact", err)
	}

	out.Status = StatusTrained
	log.Info().
		Int("train_samples", report.TrainSamples).
		Int("validation_samples", report.ValidationSamples).
		Float64("validation_mse", report.ValidationMSE).
		Bool("reinitialized", report.Reinitialized).
		Msg("Model trained")
	return out
}

// loadBase returns the stored model for key, or a fresh one when there is
// none. An undecodable artifact is replaced by a fresh model.
func (c *Coordinator) loadBase(ctx context.Context, key string, log zerolog.Logger) (forecast.Model, error) {
	data, found, err := c.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Debug().Msg("No stored model, starting fresh")
		return c.trainer.Fresh(), nil
	}
	model, err := c.codec.Decode(data)
	if err != nil {
		log.Warn().Err(err).Msg("Stored model unreadable, starting fresh")
		return c.trainer.Fresh(), nil
	}
	return model, nil
}

// Summary formats outcomes for operator output
func Summary(outcomes []Outcome) string {
	var trained, skipped, failed int
	for _, o := range outcomes {
		switch o.Status {
		case StatusTrained:
			trained++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return fmt.Sprintf("trained=%d skipped=%d failed=%d", trained, skipped, failed)
}

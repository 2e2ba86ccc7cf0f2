// Package jobs defines the scheduled jobs and the pipeline they run.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/cleanup"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/ingest"
	"github.com/aristath/foresight/internal/refresh"
	"github.com/aristath/foresight/internal/scheduler"
	"github.com/aristath/foresight/internal/training"
)

// Job ids
const (
	Training     scheduler.JobID = "training"
	RefreshCache scheduler.JobID = "refresh-cache"
	Scrape       scheduler.JobID = "scrape"
)

// Trainer runs the training stage
type Trainer interface {
	RunTrainingCycle(ctx context.Context, instruments []domain.Instrument) ([]training.Outcome, error)
}

// Refresher runs the cache refresh stages
type Refresher interface {
	RefreshAll(ctx context.Context, instruments []domain.Instrument) ([]refresh.Report, error)
}

// Purger runs the cleanup stage
type Purger interface {
	PurgeTransientArtifacts(ctx context.Context) (cleanup.Result, error)
}

// Scraper runs the data refresh
type Scraper interface {
	Scrape(ctx context.Context, instruments []domain.Instrument) ([]ingest.Outcome, error)
}

// Pipeline runs the stages over the configured universe
type Pipeline struct {
	universe *domain.Universe
	trainer  Trainer
	refresh  Refresher
	purger   Purger
	scraper  Scraper
	log      zerolog.Logger
}

// NewPipeline creates the job pipeline
func NewPipeline(universe *domain.Universe, trainer Trainer, refresher Refresher, purger Purger, scraper Scraper, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		universe: universe,
		trainer:  trainer,
		refresh:  refresher,
		purger:   purger,
		scraper:  scraper,
		log:      log.With().Str("component", "pipeline").Logger(),
	}
}

// Train runs training, then the cache refresh, then cleanup. A stage that
// fails or is busy is logged and the next stage still runs; the joined stage
// errors are returned.
func (p *Pipeline) Train(ctx context.Context) error {
	instruments := p.universe.Instruments()
	var errs []error

	outcomes, err := p.trainer.RunTrainingCycle(ctx, instruments)
	if err != nil {
		p.log.Warn().Err(err).Msg("Training stage did not run to completion")
		errs = append(errs, fmt.Errorf("train: %w", err))
	} else {
		p.log.Info().Str("summary", training.Summary(outcomes)).Msg("Training stage finished")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := p.RefreshCache(ctx); err != nil {
		errs = append(errs, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if _, err := p.purger.PurgeTransientArtifacts(ctx); err != nil {
		p.log.Warn().Err(err).Msg("Cleanup stage did not run to completion")
		errs = append(errs, fmt.Errorf("cleanup: %w", err))
	}
	return errors.Join(errs...)
}

// RefreshCache refreshes models, predictions and bars
func (p *Pipeline) RefreshCache(ctx context.Context) error {
	reports, err := p.refresh.RefreshAll(ctx, p.universe.Instruments())
	for _, r := range reports {
		p.log.Debug().
			Str("stage", r.Stage).
			Int("processed", r.Processed).
			Int("skipped", r.Skipped).
			Int("failed", r.Failed).
			Msg("Refresh report")
	}
	if err != nil {
		p.log.Warn().Err(err).Msg("Refresh stage did not run to completion")
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// Purge runs cleanup on its own
func (p *Pipeline) Purge(ctx context.Context) error {
	_, err := p.purger.PurgeTransientArtifacts(ctx)
	return err
}

// Scrape refreshes every instrument's working copy from its data source
func (p *Pipeline) Scrape(ctx context.Context) error {
	outcomes, err := p.scraper.Scrape(ctx, p.universe.Instruments())
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	p.log.Info().Int("scraped", len(outcomes)-failed).Int("failed", failed).Msg("Scrape finished")
	return nil
}

// Schedules are the triggers of the three jobs. A manual trigger registers a
// job for on-demand runs only.
type Schedules struct {
	Training     scheduler.Trigger
	RefreshCache scheduler.Trigger
	Scrape       scheduler.Trigger
}

// Register adds the pipeline's jobs to s
func Register(s *scheduler.Scheduler, p *Pipeline, sched Schedules) error {
	for _, j := range []struct {
		id      scheduler.JobID
		trigger scheduler.Trigger
		action  scheduler.Action
	}{
		{Training, sched.Training, p.Train},
		{RefreshCache, sched.RefreshCache, p.RefreshCache},
		{Scrape, sched.Scrape, p.Scrape},
	} {
		if err := s.Schedule(j.id, j.trigger, j.action); err != nil {
			return fmt.Errorf("failed to register job %s: %w", j.id, err)
		}
	}
	return nil
}

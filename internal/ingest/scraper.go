// Package ingest refreshes local bar working copies from the market data
// sources.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/metrics"
	"github.com/aristath/foresight/internal/scheduler"
)

// StageLock guards the scrape stage
const StageLock = "stage:scrape"

const stage = "scrape"

// Source fetches daily bars for one market
type Source interface {
	History(ctx context.Context, symbol string, months int) ([]domain.Bar, error)
}

// Sink stores fetched bars as a local working copy
type Sink interface {
	Write(symbol string, bars []domain.Bar) error
}

// Outcome reports the scrape of one instrument
type Outcome struct {
	Instrument domain.Instrument `json:"instrument"`
	Bars       int               `json:"bars"`
	Err        error             `json:"-"`
}

// Scraper fetches history for each instrument from its market's source
type Scraper struct {
	sources map[domain.Market]Source
	sink    Sink
	months  int
	locks   *scheduler.Locks
	metrics *metrics.Recorder
	log     zerolog.Logger
}

// NewScraper creates a scraper requesting months of history per instrument
func NewScraper(sources map[domain.Market]Source, sink Sink, months int, locks *scheduler.Locks, rec *metrics.Recorder, log zerolog.Logger) *Scraper {
	if locks == nil {
		locks = scheduler.NewLocks()
	}
	return &Scraper{
		sources: sources,
		sink:    sink,
		months:  months,
		locks:   locks,
		metrics: rec,
		log:     log.With().Str("job", "scrape").Logger(),
	}
}

// Scrape fetches and stores every instrument in order. A failing instrument
// is logged and does not stop the others.
func (s *Scraper) Scrape(ctx context.Context, instruments []domain.Instrument) ([]Outcome, error) {
	release, ok := s.locks.TryAcquire(StageLock)
	if !ok {
		s.log.Warn().Msg("Scrape already running, skipping")
		return nil, scheduler.ErrJobBusy
	}
	defer release()

	s.log.Info().Int("instruments", len(instruments)).Msg("Starting scrape")

	outcomes := make([]Outcome, 0, len(instruments))
	failed := 0
	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		out := s.scrapeOne(ctx, inst)
		if out.Err != nil {
			failed++
			s.metrics.StageItem(stage, "failed")
		} else {
			s.metrics.StageItem(stage, "processed")
		}
		outcomes = append(outcomes, out)
	}

	s.log.Info().
		Int("scraped", len(outcomes)-failed).
		Int("failed", failed).
		Msg("Scrape completed")
	return outcomes, nil
}

func (s *Scraper) scrapeOne(ctx context.Context, inst domain.Instrument) Outcome {
	out := Outcome{Instrument: inst}
	log := s.log.With().Str("market", string(inst.Market)).Str("symbol", inst.Symbol).Logger()

	source, ok := s.sources[inst.Market]
	if !ok {
		out.Err = domain.Errorf(domain.KindInternal, "scrape", inst.String(), "no data source for market %s", inst.Market)
		log.Error().Err(out.Err).Msg("Scrape failed")
		return out
	}

	bars, err := source.History(ctx, inst.Symbol, s.months)
	if err == nil && len(bars) == 0 {
		err = domain.NewError(domain.KindDataNotFound, "scrape", inst.String(), errors.New("source returned no bars"))
	}
	if err != nil {
		out.Err = err
		log.Error().Err(err).Msg("Scrape failed")
		return out
	}

	if err := s.sink.Write(inst.Symbol, bars); err != nil {
		out.Err = fmt.Errorf("failed to write working copy: %w", err)
		log.Error().Err(out.Err).Msg("Scrape failed")
		return out
	}

	out.Bars = len(bars)
	log.Debug().Int("bars", out.Bars).Msg("Working copy written")
	return out
}

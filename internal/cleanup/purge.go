// Package cleanup removes transient local artifacts once their durable
// counterparts exist.
package cleanup

import (
	"bytes"
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/metrics"
	"github.com/aristath/foresight/internal/scheduler"
)

// StageLock guards the cleanup stage
const StageLock = "stage:cleanup"

const stage = "cleanup"

// LocalModels is the local model artifact directory
type LocalModels interface {
	List() ([]string, error)
	Read(key string) ([]byte, error)
	Remove(key string) error
}

// LocalBars is the local bar working copy directory
type LocalBars interface {
	Symbols() ([]string, error)
	Read(symbol string) (domain.BarSeries, bool, error)
	Remove(symbol string) error
}

// DurableBars reads the canonical bar tables
type DurableBars interface {
	Trailing(ctx context.Context, symbol string, n int) (domain.BarSeries, bool, error)
}

// Result counts the files handled by one purge
type Result struct {
	Removed int `json:"removed"`
	Kept    int `json:"kept"`
	Errors  int `json:"errors"`
}

// Purger deletes local working copies and model files
type Purger struct {
	models  LocalModels
	bars    LocalBars
	blobs   domain.BlobStore
	durable DurableBars
	locks   *scheduler.Locks
	metrics *metrics.Recorder
	log     zerolog.Logger
}

// NewPurger creates a purger
func NewPurger(models LocalModels, bars LocalBars, blobs domain.BlobStore, durable DurableBars, locks *scheduler.Locks, rec *metrics.Recorder, log zerolog.Logger) *Purger {
	if locks == nil {
		locks = scheduler.NewLocks()
	}
	return &Purger{
		models:  models,
		bars:    bars,
		blobs:   blobs,
		durable: durable,
		locks:   locks,
		metrics: rec,
		log:     log.With().Str("job", "cleanup").Logger(),
	}
}

// PurgeTransientArtifacts removes every local bar file whose durable table
// already holds all of its bars and every local model file whose blob copy has
// the same bytes. A file without a current durable copy is kept. Running it
// twice is harmless.
func (p *Purger) PurgeTransientArtifacts(ctx context.Context) (Result, error) {
	var res Result
	release, ok := p.locks.TryAcquire(StageLock)
	if !ok {
		p.log.Warn().Msg("Cleanup already running, skipping")
		return res, scheduler.ErrJobBusy
	}
	defer release()

	p.log.Info().Msg("Starting cleanup job")

	symbols, err := p.bars.Symbols()
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to list working copies")
		res.Errors++
	}
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		durable, err := p.barsPersisted(ctx, symbol)
		p.handle(&res, "bars", symbol, durable, err, func() error { return p.bars.Remove(symbol) })
	}

	keys, err := p.models.List()
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to list model files")
		res.Errors++
	}
	for _, key := range keys {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		durable, err := p.modelUploaded(ctx, key)
		p.handle(&res, "model", key, durable, err, func() error { return p.models.Remove(key) })
	}

	p.log.Info().
		Int("removed", res.Removed).
		Int("kept", res.Kept).
		Int("errors", res.Errors).
		Msg("Cleanup completed")
	return res, nil
}

// barsPersisted reports whether the durable table covers the working copy:
// at least as many rows and a last bar no older than the local one. An empty
// working copy is covered by any existing table.
func (p *Purger) barsPersisted(ctx context.Context, symbol string) (bool, error) {
	local, found, err := p.bars.Read(symbol)
	if err != nil {
		return false, err
	}
	durable, ok, err := p.durable.Trailing(ctx, symbol, 0)
	if err != nil || !ok {
		return false, err
	}
	if !found {
		return true, nil
	}
	if durable.Len() < local.Len() {
		return false, nil
	}
	last := local.Bars[local.Len()-1]
	stored := durable.Bars[durable.Len()-1]
	if stored.Date.Before(last.Date) {
		return false, nil
	}
	return !stored.Date.Equal(last.Date) || stored.Close == last.Close, nil
}

// modelUploaded reports whether the blob store holds the local model bytes
func (p *Purger) modelUploaded(ctx context.Context, key string) (bool, error) {
	local, err := p.models.Read(key)
	if err != nil {
		return false, err
	}
	remote, found, err := p.blobs.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	return bytes.Equal(local, remote), nil
}

func (p *Purger) handle(res *Result, kind, name string, durable bool, checkErr error, remove func() error) {
	log := p.log.With().Str("kind", kind).Str("name", name).Logger()
	switch {
	case checkErr != nil:
		log.Error().Err(checkErr).Msg("Failed to check durable copy")
		res.Errors++
		p.metrics.StageItem(stage, "failed")
	case !durable:
		log.Warn().Msg("Durable copy missing or stale, keeping local file")
		res.Kept++
		p.metrics.StageItem(stage, "skipped")
	default:
		if err := remove(); err != nil {
			log.Error().Err(err).Msg("Failed to remove local file")
			res.Errors++
			p.metrics.StageItem(stage, "failed")
			return
		}
		log.Debug().Msg("Removed local file")
		res.Removed++
		p.metrics.StageItem(stage, "processed")
	}
}

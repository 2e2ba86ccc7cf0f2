package bars

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/domain"
)

// Resolver locates an instrument's bar series, preferring the local working
// copy and falling back to the durable store.
type Resolver struct {
	local   *WorkingCopies
	durable *Repository
	log     zerolog.Logger
}

// NewResolver creates a series resolver. local may be nil.
func NewResolver(local *WorkingCopies, durable *Repository, log zerolog.Logger) *Resolver {
	return &Resolver{
		local:   local,
		durable: durable,
		log:     log.With().Str("component", "series_resolver").Logger(),
	}
}

// Resolve implements domain.SeriesSource
func (r *Resolver) Resolve(ctx context.Context, inst domain.Instrument, limit int) (domain.BarSeries, bool, error) {
	if r.local != nil {
		series, found, err := r.local.Read(inst.Symbol)
		switch {
		case err != nil:
			r.log.Warn().Err(err).Str("symbol", inst.Symbol).Msg("Unreadable working copy, falling back to durable store")
		case found:
			return series.Trailing(limit), true, nil
		}
	}
	return r.durable.Trailing(ctx, inst.Symbol, limit)
}

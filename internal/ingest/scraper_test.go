package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/scheduler"
	"github.com/aristath/foresight/internal/storage/bars"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) History(ctx context.Context, symbol string, months int) ([]domain.Bar, error) {
	args := m.Called(ctx, symbol, months)
	bs, _ := args.Get(0).([]domain.Bar)
	return bs, args.Error(1)
}

func someBars(n int) []domain.Bar {
	out := make([]domain.Bar, n)
	for i := range out {
		out[i] = domain.Bar{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i), Close: float64(10 + i)}
	}
	return out
}

func TestScrapeIsolatesFailures(t *testing.T) {
	nas := &mockSource{}
	nps := &mockSource{}
	nas.On("History", mock.Anything, "NVDA", 6).Return(someBars(5), nil)
	nas.On("History", mock.Anything, "AAPL", 6).Return(nil, domain.Unavailable("yahoo", errors.New("timeout")))
	nps.On("History", mock.Anything, "NABIL", 6).Return([]domain.Bar{}, nil)
	nps.On("History", mock.Anything, "EBL", 6).Return(someBars(3), nil)

	sink := bars.NewWorkingCopies(t.TempDir())
	s := NewScraper(map[domain.Market]Source{domain.MarketNAS: nas, domain.MarketNPS: nps}, sink, 6, nil, nil, zerolog.Nop())

	instruments := []domain.Instrument{
		{Market: domain.MarketNAS, Symbol: "NVDA"},
		{Market: domain.MarketNAS, Symbol: "AAPL"},
		{Market: domain.MarketNPS, Symbol: "NABIL"},
		{Market: domain.MarketNPS, Symbol: "EBL"},
	}
	outcomes, err := s.Scrape(context.Background(), instruments)
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 5, outcomes[0].Bars)
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, outcomes[2].Err, domain.ErrDataNotFound)
	assert.NoError(t, outcomes[3].Err)

	symbols, err := sink.Symbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"EBL", "NVDA"}, symbols)

	series, found, err := sink.Read("NVDA")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 5, series.Len())

	nas.AssertExpectations(t)
	nps.AssertExpectations(t)
}

func TestScrapeMissingSource(t *testing.T) {
	s := NewScraper(map[domain.Market]Source{}, bars.NewWorkingCopies(t.TempDir()), 6, nil, nil, zerolog.Nop())
	outcomes, err := s.Scrape(context.Background(), []domain.Instrument{{Market: domain.MarketNAS, Symbol: "NVDA"}})
	require.NoError(t, err)
	assert.ErrorIs(t, outcomes[0].Err, domain.ErrInternal)
}

func TestScrapeBusy(t *testing.T) {
	locks := scheduler.NewLocks()
	release, ok := locks.TryAcquire(StageLock)
	require.True(t, ok)
	defer release()

	s := NewScraper(nil, bars.NewWorkingCopies(t.TempDir()), 6, locks, nil, zerolog.Nop())
	_, err := s.Scrape(context.Background(), nil)
	assert.ErrorIs(t, err, scheduler.ErrJobBusy)
}

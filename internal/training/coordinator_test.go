package training

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/forecast"
	"github.com/aristath/foresight/internal/scheduler"
	"github.com/aristath/foresight/internal/storage/blob"
)

type mapSeries map[string]domain.BarSeries

func (m mapSeries) Resolve(_ context.Context, inst domain.Instrument, limit int) (domain.BarSeries, bool, error) {
	s, ok := m[inst.Symbol]
	if !ok {
		return domain.BarSeries{}, false, nil
	}
	return s.Trailing(limit), true, nil
}

// flakyBlobs fails Get or Set for selected keys
type flakyBlobs struct {
	*blob.MemoryStore
	failGet map[string]bool
	failSet map[string]bool
}

func (f *flakyBlobs) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet[key] {
		return nil, false, domain.Unavailable("blob get "+key, errors.New("connection reset"))
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *flakyBlobs) Set(ctx context.Context, key string, data []byte) error {
	if f.failSet[key] {
		return domain.Unavailable("blob set "+key, errors.New("connection reset"))
	}
	return f.MemoryStore.Set(ctx, key, data)
}

func newFlaky() *flakyBlobs {
	return &flakyBlobs{MemoryStore: blob.NewMemoryStore(), failGet: map[string]bool{}, failSet: map[string]bool{}}
}

func wave(symbol string, n int) domain.BarSeries {
	s := domain.BarSeries{Symbol: symbol}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := 100 + 10*float64(i%17)/17 + float64(i)/10
		s.Bars = append(s.Bars, domain.Bar{Date: base.AddDate(0, 0, i), Close: price})
	}
	return s
}

func inst(market domain.Market, symbol string) domain.Instrument {
	return domain.Instrument{Market: market, Symbol: symbol}
}

func newCoordinator(series domain.SeriesSource, blobs domain.BlobStore, local ArtifactWriter, locks *scheduler.Locks) *Coordinator {
	return NewCoordinator(series, blobs, local, forecast.NewRidgeTrainer(15, 0), forecast.RidgeCodec{}, locks, nil,
		Config{LookBack: 15, TrainSplit: 0.7}, zerolog.Nop())
}

func TestRunTrainingCycleIsolatesFailures(t *testing.T) {
	series := mapSeries{"AAA": wave("AAA", 200), "BBB": wave("BBB", 200), "CCC": wave("CCC", 200)}
	blobs := newFlaky()
	blobs.failGet["NAS_AAA"] = true
	c := newCoordinator(series, blobs, nil, nil)

	instruments := []domain.Instrument{
		inst(domain.MarketNAS, "AAA"),
		inst(domain.MarketNAS, "BBB"),
		inst(domain.MarketNAS, "DDD"),
		inst(domain.MarketNPS, "CCC"),
	}
	outcomes, err := c.RunTrainingCycle(context.Background(), instruments)
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.True(t, errors.Is(outcomes[0].Err, domain.ErrStoreUnavailable))
	assert.Equal(t, StatusTrained, outcomes[1].Status)
	assert.Equal(t, StatusSkipped, outcomes[2].Status)
	assert.Equal(t, "no price data", outcomes[2].Reason)
	assert.Equal(t, StatusTrained, outcomes[3].Status)
	for i, o := range outcomes {
		assert.Equal(t, instruments[i], o.Instrument, "outcomes keep processing order")
	}

	for key, want := range map[string]bool{"NAS_AAA": false, "NAS_BBB": true, "NAS_DDD": false, "NPS_CCC": true} {
		ok, err := blobs.Exists(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, want, ok, key)
	}
	assert.Equal(t, "trained=2 skipped=1 failed=1", Summary(outcomes))
}

func TestFailedStoreKeepsPriorArtifact(t *testing.T) {
	ctx := context.Background()
	blobs := newFlaky()
	prior := []byte("prior-artifact")
	require.NoError(t, blobs.MemoryStore.Set(ctx, "NAS_NVDA", prior))
	blobs.failSet["NAS_NVDA"] = true

	c := newCoordinator(mapSeries{"NVDA": wave("NVDA", 200)}, blobs, nil, nil)
	outcomes, err := c.RunTrainingCycle(ctx, []domain.Instrument{inst(domain.MarketNAS, "NVDA")})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Equal(t, "store artifact", outcomes[0].Reason)

	data, found, err := blobs.MemoryStore.Get(ctx, "NAS_NVDA")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, prior, data)
}

func TestTrainingFineTunesStoredModel(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	local := blob.NewDirectory(t.TempDir())
	c := newCoordinator(mapSeries{"NVDA": wave("NVDA", 200)}, blobs, local, nil)
	nvda := []domain.Instrument{inst(domain.MarketNAS, "NVDA")}

	_, err := c.RunTrainingCycle(ctx, nvda)
	require.NoError(t, err)
	first := decode(t, blobs, "NAS_NVDA")

	outcomes, err := c.RunTrainingCycle(ctx, nvda)
	require.NoError(t, err)
	require.Equal(t, StatusTrained, outcomes[0].Status)
	assert.False(t, outcomes[0].Report.Reinitialized)
	second := decode(t, blobs, "NAS_NVDA")

	assert.Equal(t, 2*first.Samples, second.Samples, "second cycle continues from the stored model")

	keys, err := local.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"NAS_NVDA"}, keys)
	localData, err := local.Read("NAS_NVDA")
	require.NoError(t, err)
	stored, _, err := blobs.Get(ctx, "NAS_NVDA")
	require.NoError(t, err)
	assert.Equal(t, stored, localData)
}

func decode(t *testing.T, store domain.BlobStore, key string) *forecast.Ridge {
	t.Helper()
	data, found, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found)
	m, err := forecast.RidgeCodec{}.Decode(data)
	require.NoError(t, err)
	return m.(*forecast.Ridge)
}

func TestTrainingSkipsShortSeries(t *testing.T) {
	c := newCoordinator(mapSeries{"NVDA": wave("NVDA", 20)}, blob.NewMemoryStore(), nil, nil)

	outcomes, err := c.RunTrainingCycle(context.Background(), []domain.Instrument{inst(domain.MarketNAS, "NVDA")})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, outcomes[0].Status)
	assert.Equal(t, "insufficient data", outcomes[0].Reason)
}

func TestTrainingReplacesCorruptArtifact(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	require.NoError(t, blobs.Set(ctx, "NAS_NVDA", []byte("garbage")))
	c := newCoordinator(mapSeries{"NVDA": wave("NVDA", 200)}, blobs, nil, nil)

	outcomes, err := c.RunTrainingCycle(ctx, []domain.Instrument{inst(domain.MarketNAS, "NVDA")})
	require.NoError(t, err)
	assert.Equal(t, StatusTrained, outcomes[0].Status)
	decode(t, blobs, "NAS_NVDA")
}

func TestTrainingCycleBusy(t *testing.T) {
	locks := scheduler.NewLocks()
	release, ok := locks.TryAcquire(StageLock)
	require.True(t, ok)
	defer release()

	c := newCoordinator(mapSeries{}, blob.NewMemoryStore(), nil, locks)
	_, err := c.RunTrainingCycle(context.Background(), nil)
	assert.ErrorIs(t, err, scheduler.ErrJobBusy)
}

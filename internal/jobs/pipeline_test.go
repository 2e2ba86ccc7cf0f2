package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/cleanup"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/ingest"
	"github.com/aristath/foresight/internal/refresh"
	"github.com/aristath/foresight/internal/scheduler"
	"github.com/aristath/foresight/internal/training"
)

// stages records the order in which stages ran
type stages struct {
	mu       sync.Mutex
	calls    []string
	seen     []domain.Instrument
	trainErr error
}

func (s *stages) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
}

func (s *stages) RunTrainingCycle(_ context.Context, instruments []domain.Instrument) ([]training.Outcome, error) {
	s.record("train")
	s.seen = instruments
	return nil, s.trainErr
}

func (s *stages) RefreshAll(context.Context, []domain.Instrument) ([]refresh.Report, error) {
	s.record("refresh")
	return []refresh.Report{{Stage: refresh.StageModels}}, nil
}

func (s *stages) PurgeTransientArtifacts(context.Context) (cleanup.Result, error) {
	s.record("cleanup")
	return cleanup.Result{}, nil
}

func (s *stages) Scrape(_ context.Context, instruments []domain.Instrument) ([]ingest.Outcome, error) {
	s.record("scrape")
	return []ingest.Outcome{{Instrument: instruments[0], Err: errors.New("x")}}, nil
}

func universe(t *testing.T) *domain.Universe {
	t.Helper()
	u, err := domain.NewUniverse(map[domain.Market][]string{
		domain.MarketNAS: {"NVDA", "MSFT"},
		domain.MarketNPS: {"NABIL"},
	})
	require.NoError(t, err)
	return u
}

func TestTrainRunsStagesInOrder(t *testing.T) {
	s := &stages{}
	p := NewPipeline(universe(t), s, s, s, s, zerolog.Nop())

	require.NoError(t, p.Train(context.Background()))
	assert.Equal(t, []string{"train", "refresh", "cleanup"}, s.calls)
	assert.Equal(t, []domain.Instrument{
		{Market: domain.MarketNAS, Symbol: "NVDA"},
		{Market: domain.MarketNAS, Symbol: "MSFT"},
		{Market: domain.MarketNPS, Symbol: "NABIL"},
	}, s.seen)
}

func TestTrainContinuesPastBusyStage(t *testing.T) {
	s := &stages{trainErr: scheduler.ErrJobBusy}
	p := NewPipeline(universe(t), s, s, s, s, zerolog.Nop())

	err := p.Train(context.Background())
	assert.ErrorIs(t, err, scheduler.ErrJobBusy)
	assert.Equal(t, []string{"train", "refresh", "cleanup"}, s.calls)
}

func TestRegisterSchedulesAllJobs(t *testing.T) {
	s := &stages{}
	p := NewPipeline(universe(t), s, s, s, s, zerolog.Nop())
	sched := scheduler.New(zerolog.Nop(), nil)

	weekly, err := scheduler.ParseTrigger("0 0 11 * * MON")
	require.NoError(t, err)
	require.NoError(t, Register(sched, p, Schedules{Training: weekly}))

	jobs := sched.Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, RefreshCache, jobs[0].ID)
	assert.Equal(t, Scrape, jobs[1].ID)
	assert.Equal(t, Training, jobs[2].ID)

	require.NoError(t, sched.Run(context.Background(), Scrape))
	require.NoError(t, sched.Run(context.Background(), RefreshCache))
	assert.Equal(t, []string{"scrape", "refresh"}, s.calls)

	sched.Stop()
	assert.ErrorIs(t, sched.Run(context.Background(), Scrape), scheduler.ErrStopped)
}

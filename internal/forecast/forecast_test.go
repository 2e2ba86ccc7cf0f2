package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/domain"
)

func linearSeries(n int, start float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)
	}
	return out
}

func barSeries(symbol string, closes []float64) domain.BarSeries {
	s := domain.BarSeries{Symbol: symbol}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s.Bars = append(s.Bars, domain.Bar{Date: base.AddDate(0, 0, i), Close: c})
	}
	return s
}

func TestMinMaxScaler(t *testing.T) {
	s, err := FitMinMax([]float64{10, 20, 15})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0.5}, s.Transform([]float64{10, 20, 15}))
	assert.InDelta(t, 17.5, s.Inverse(0.75), 1e-12)

	flat, err := FitMinMax([]float64{5, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, flat.Transform([]float64{5, 5, 5}))
	assert.Equal(t, 5.0, flat.Inverse(0))

	_, err = FitMinMax(nil)
	assert.Error(t, err)
}

func TestBuildSequencesCount(t *testing.T) {
	for _, n := range []int{0, 10, 15, 16, 100} {
		ds := BuildSequences(linearSeries(n, 0), 15)
		want := n - 15
		if want < 0 {
			want = 0
		}
		assert.Equal(t, want, ds.Len(), "n=%d", n)
	}

	ds := BuildSequences([]float64{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, [][]float64{{1, 2}, {2, 3}, {3, 4}}, ds.X)
	assert.Equal(t, []float64{3, 4, 5}, ds.Y)
}

func TestSplitChronological(t *testing.T) {
	head, tail := SplitChronological(linearSeries(10, 0), 0.7)
	assert.Equal(t, linearSeries(7, 0), head)
	assert.Equal(t, []float64{7, 8, 9}, tail)
}

func TestPrepareTraining(t *testing.T) {
	set, err := PrepareTraining(linearSeries(200, 1), 15, 0.7)
	require.NoError(t, err)
	assert.Equal(t, 140-15, set.Train.Len())
	assert.Equal(t, 60-15, set.Validation.Len())
	assert.Equal(t, 1.0, set.Scaler.Min)
	assert.Equal(t, 199.0, set.Scaler.Scale)

	_, err = PrepareTraining(linearSeries(20, 1), 15, 0.7)
	assert.Error(t, err)
}

func TestRidgeRecoversRecurrence(t *testing.T) {
	// sin(ωt) satisfies x_t = 2cos(ω)·x_{t-1} - x_{t-2}
	omega := 0.3
	series := make([]float64, 300)
	for i := range series {
		series[i] = math.Sin(omega * float64(i))
	}
	trainer := NewRidgeTrainer(2, 1e-9)

	model, report, err := trainer.Fit(context.Background(), trainer.Fresh(), BuildSequences(series[:200], 2), BuildSequences(series[200:], 2))
	require.NoError(t, err)

	r := model.(*Ridge)
	assert.InDelta(t, -1, r.Weights[0], 1e-3)
	assert.InDelta(t, 2*math.Cos(omega), r.Weights[1], 1e-3)
	assert.InDelta(t, 0, r.Bias, 1e-3)
	assert.Less(t, report.ValidationMSE, 1e-6)
	assert.Equal(t, 198, report.TrainSamples)
	assert.False(t, report.Reinitialized)
	assert.Equal(t, 198, r.Samples)
}

func TestRidgeFineTuneStaysNearPrior(t *testing.T) {
	ctx := context.Background()
	set, err := PrepareTraining(linearSeries(200, 1), 15, 0.7)
	require.NoError(t, err)

	base, _, err := NewRidgeTrainer(15, 1e-6).Fit(ctx, nil, set.Train, set.Validation)
	require.NoError(t, err)
	snapshot := append([]float64(nil), base.(*Ridge).Weights...)

	other, err := PrepareTraining([]float64{5, 3, 8, 1, 9, 2, 7, 4, 6, 5, 3, 8, 1, 9, 2, 7, 4, 6, 5, 3, 8, 1, 9, 2, 7, 4, 6, 5, 3, 8}, 15, 0.9)
	require.NoError(t, err)

	stiff := NewRidgeTrainer(15, 1e9)
	tuned, _, err := stiff.Fit(ctx, base, other.Train, other.Validation)
	require.NoError(t, err)

	assert.Equal(t, snapshot, base.(*Ridge).Weights, "base model must not be mutated")
	for i, w := range tuned.(*Ridge).Weights {
		assert.InDelta(t, snapshot[i], w, 1e-3)
	}
}

func TestRidgeFitRejectsEmptyAndIncompatible(t *testing.T) {
	trainer := NewRidgeTrainer(3, 0)

	_, _, err := trainer.Fit(context.Background(), trainer.Fresh(), Dataset{}, Dataset{})
	assert.Error(t, err)

	other := NewRidgeTrainer(5, 0).Fresh()
	_, report, err := trainer.Fit(context.Background(), other, BuildSequences(linearSeries(20, 0), 3), Dataset{})
	require.NoError(t, err)
	assert.True(t, report.Reinitialized)
	assert.True(t, math.IsNaN(report.ValidationMSE))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = trainer.Fit(ctx, nil, BuildSequences(linearSeries(20, 0), 3), Dataset{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRidgeCodec(t *testing.T) {
	codec := RidgeCodec{}
	model := &Ridge{
		Weights:  []float64{0.1, -0.2, 1.1},
		Bias:     0.01,
		Lambda:   DefaultLambda,
		Samples:  42,
		FittedAt: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
	}

	data, err := codec.Encode(model)
	require.NoError(t, err)

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	r := decoded.(*Ridge)
	assert.Equal(t, model.Weights, r.Weights)
	assert.Equal(t, model.Bias, r.Bias)
	assert.Equal(t, model.Samples, r.Samples)
	assert.True(t, model.FittedAt.Equal(r.FittedAt))

	_, err = codec.Decode([]byte("not msgpack"))
	assert.Error(t, err)
}

func TestEngineInsufficientData(t *testing.T) {
	engine := NewEngine(80)
	model := NewRidgeTrainer(15, 0).Fresh()

	_, err := engine.Predict(barSeries("NVDA", linearSeries(79, 1)), model)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestEnginePredictsNextValue(t *testing.T) {
	engine := NewEngine(80)
	// x_t = 2x_{t-1} - x_{t-2} extends an arithmetic progression
	weights := make([]float64, 15)
	weights[13], weights[14] = -1, 2
	model := &Ridge{Weights: weights}

	got, err := engine.Predict(barSeries("NVDA", linearSeries(200, 1)), model)
	require.NoError(t, err)
	assert.InDelta(t, 201, got, 1e-9)
}

func TestEngineRejectsOversizedModel(t *testing.T) {
	engine := NewEngine(10)
	_, err := engine.Predict(barSeries("NVDA", linearSeries(20, 1)), &Ridge{Weights: make([]float64, 11)})
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

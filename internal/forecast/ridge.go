package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultLambda is the ridge penalty used when none is configured
const DefaultLambda = 1e-2

// Ridge is a linear autoregressive model: the next value is a weighted sum of
// the previous LookBack values plus a bias.
type Ridge struct {
	Weights []float64
	Bias    float64
	Lambda  float64
	// Samples counts every pair this model has been fitted on, across fine-tunes
	Samples  int
	FittedAt time.Time
}

// LookBack returns the window length the model consumes
func (r *Ridge) LookBack() int {
	return len(r.Weights)
}

// Predict applies the model to the trailing LookBack values of window
func (r *Ridge) Predict(window []float64) (float64, error) {
	l := len(r.Weights)
	if l == 0 {
		return 0, fmt.Errorf("model has no weights")
	}
	if len(window) < l {
		return 0, fmt.Errorf("window of %d values is shorter than look-back %d", len(window), l)
	}
	return floats.Dot(r.Weights, window[len(window)-l:]) + r.Bias, nil
}

func (r *Ridge) clone() *Ridge {
	c := *r
	c.Weights = append([]float64(nil), r.Weights...)
	return &c
}

// RidgeTrainer fits Ridge models in closed form. Fine-tuning penalises the
// distance to the previous weights instead of the distance to zero, so a
// refit on new data moves the model rather than replacing it.
type RidgeTrainer struct {
	lookBack int
	lambda   float64
	now      func() time.Time
}

// NewRidgeTrainer creates a trainer for windows of lookBack values
func NewRidgeTrainer(lookBack int, lambda float64) *RidgeTrainer {
	if lambda <= 0 {
		lambda = DefaultLambda
	}
	return &RidgeTrainer{lookBack: lookBack, lambda: lambda, now: time.Now}
}

// Fresh returns a zero model
func (t *RidgeTrainer) Fresh() Model {
	return &Ridge{Weights: make([]float64, t.lookBack), Lambda: t.lambda}
}

// Fit solves (XᵀX + λI)w = Xᵀy + λw₀ where w₀ are the base model's weights
// with the bias appended.
func (t *RidgeTrainer) Fit(ctx context.Context, base Model, train, validation Dataset) (Model, FitReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, FitReport{}, err
	}
	report := FitReport{TrainSamples: train.Len(), ValidationSamples: validation.Len()}
	if train.Len() == 0 {
		return nil, report, fmt.Errorf("no training samples")
	}

	prior, ok := base.(*Ridge)
	if !ok || prior == nil || prior.LookBack() != t.lookBack {
		prior = t.Fresh().(*Ridge)
		report.Reinitialized = base != nil
	}
	prior = prior.clone()

	p := t.lookBack + 1
	n := train.Len()
	design := mat.NewDense(n, p, nil)
	for i, row := range train.X {
		if len(row) != t.lookBack {
			return nil, report, fmt.Errorf("sample %d has %d values, want %d", i, len(row), t.lookBack)
		}
		for j, v := range row {
			design.Set(i, j, v)
		}
		design.Set(i, t.lookBack, 1)
	}
	target := mat.NewVecDense(n, append([]float64(nil), train.Y...))
	w0 := mat.NewVecDense(p, append(append([]float64(nil), prior.Weights...), prior.Bias))

	var gram mat.Dense
	gram.Mul(design.T(), design)
	for i := 0; i < p; i++ {
		gram.Set(i, i, gram.At(i, i)+t.lambda)
	}

	var rhs mat.VecDense
	rhs.MulVec(design.T(), target)
	rhs.AddScaledVec(&rhs, t.lambda, w0)

	var solution mat.VecDense
	if err := solution.SolveVec(&gram, &rhs); err != nil {
		return nil, report, fmt.Errorf("solve normal equations: %w", err)
	}

	fitted := &Ridge{
		Weights:  make([]float64, t.lookBack),
		Bias:     solution.AtVec(t.lookBack),
		Lambda:   t.lambda,
		Samples:  prior.Samples + n,
		FittedAt: t.now().UTC(),
	}
	for j := 0; j < t.lookBack; j++ {
		fitted.Weights[j] = solution.AtVec(j)
	}
	for _, w := range append(fitted.Weights, fitted.Bias) {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, report, fmt.Errorf("fit produced non-finite weights")
		}
	}

	report.TrainMSE = meanSquaredError(fitted, train)
	report.ValidationMSE = meanSquaredError(fitted, validation)
	report.FittedAt = fitted.FittedAt
	return fitted, report, nil
}

func meanSquaredError(m Model, ds Dataset) float64 {
	if ds.Len() == 0 {
		return math.NaN()
	}
	sq := make([]float64, ds.Len())
	for i, x := range ds.X {
		pred, err := m.Predict(x)
		if err != nil {
			return math.NaN()
		}
		d := pred - ds.Y[i]
		sq[i] = d * d
	}
	return stat.Mean(sq, nil)
}

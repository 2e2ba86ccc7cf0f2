package forecast

import (
	"math"

	"github.com/aristath/foresight/internal/domain"
)

// DefaultTimeSteps is the prediction window length
const DefaultTimeSteps = 80

// Engine produces one-step-ahead close predictions
type Engine struct {
	timeSteps int
}

// NewEngine creates an engine using windows of timeSteps closes
func NewEngine(timeSteps int) *Engine {
	if timeSteps <= 0 {
		timeSteps = DefaultTimeSteps
	}
	return &Engine{timeSteps: timeSteps}
}

// TimeSteps returns the number of trailing bars a prediction needs
func (e *Engine) TimeSteps() int {
	return e.timeSteps
}

// Predict scales the trailing window of closes onto [0, 1] using that window's
// own range, asks the model for the next scaled value and maps it back.
func (e *Engine) Predict(series domain.BarSeries, model Model) (float64, error) {
	if series.Len() < e.timeSteps {
		return 0, domain.Errorf(domain.KindInsufficientData, "predict", series.Symbol,
			"need %d bars, have %d", e.timeSteps, series.Len())
	}
	if model == nil {
		return 0, domain.NewError(domain.KindModelNotFound, "predict", series.Symbol, nil)
	}
	if model.LookBack() > e.timeSteps {
		return 0, domain.Errorf(domain.KindInternal, "predict", series.Symbol,
			"model look-back %d exceeds window %d", model.LookBack(), e.timeSteps)
	}

	window := series.Trailing(e.timeSteps).Closes()
	scaler, err := FitMinMax(window)
	if err != nil {
		return 0, domain.NewError(domain.KindInternal, "predict", series.Symbol, err)
	}
	next, err := model.Predict(scaler.Transform(window))
	if err != nil {
		return 0, domain.NewError(domain.KindInternal, "predict", series.Symbol, err)
	}
	value := scaler.Inverse(next)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, domain.Errorf(domain.KindInternal, "predict", series.Symbol, "non-finite prediction")
	}
	return value, nil
}

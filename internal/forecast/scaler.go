// Package forecast turns closing-price series into one-step-ahead predictions:
// min-max scaling, sliding-window sequences, a trainable sequence model and
// the prediction engine that ties them together.
package forecast

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// MinMaxScaler maps values linearly onto [0, 1] using the range observed by Fit
type MinMaxScaler struct {
	Min   float64
	Scale float64 // max - min, 1 when the range is zero
}

// FitMinMax fits a scaler on values
func FitMinMax(values []float64) (MinMaxScaler, error) {
	if len(values) == 0 {
		return MinMaxScaler{}, errors.New("cannot fit scaler on empty series")
	}
	lo, hi := floats.Min(values), floats.Max(values)
	scale := hi - lo
	if scale == 0 {
		scale = 1
	}
	return MinMaxScaler{Min: lo, Scale: scale}, nil
}

// Transform returns scaled copies of values
func (s MinMaxScaler) Transform(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - s.Min) / s.Scale
	}
	return out
}

// Inverse maps a scaled value back onto the original range
func (s MinMaxScaler) Inverse(v float64) float64 {
	return v*s.Scale + s.Min
}

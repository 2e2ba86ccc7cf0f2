package forecast

import "fmt"

// Dataset holds supervised pairs: X[i] is a window, Y[i] the value following it
type Dataset struct {
	X [][]float64
	Y []float64
}

// Len returns the number of pairs
func (d Dataset) Len() int {
	return len(d.Y)
}

// BuildSequences slides a window of lookBack values over series and produces
// exactly len(series)-lookBack pairs (none when the series is too short).
func BuildSequences(series []float64, lookBack int) Dataset {
	n := len(series) - lookBack
	if lookBack <= 0 || n <= 0 {
		return Dataset{}
	}
	ds := Dataset{X: make([][]float64, n), Y: make([]float64, n)}
	for i := 0; i < n; i++ {
		window := make([]float64, lookBack)
		copy(window, series[i:i+lookBack])
		ds.X[i] = window
		ds.Y[i] = series[i+lookBack]
	}
	return ds
}

// SplitChronological cuts values at int(len*ratio) without shuffling
func SplitChronological(values []float64, ratio float64) (head, tail []float64) {
	idx := int(float64(len(values)) * ratio)
	if idx < 0 {
		idx = 0
	}
	if idx > len(values) {
		idx = len(values)
	}
	return values[:idx], values[idx:]
}

// TrainingSet is a scaled series split into training and validation pairs
type TrainingSet struct {
	Scaler     MinMaxScaler
	Train      Dataset
	Validation Dataset
}

// PrepareTraining scales closes over their full observed range, splits them
// chronologically and builds look-back sequences on each side.
func PrepareTraining(closes []float64, lookBack int, ratio float64) (TrainingSet, error) {
	scaler, err := FitMinMax(closes)
	if err != nil {
		return TrainingSet{}, err
	}
	scaled := scaler.Transform(closes)
	head, tail := SplitChronological(scaled, ratio)

	set := TrainingSet{
		Scaler:     scaler,
		Train:      BuildSequences(head, lookBack),
		Validation: BuildSequences(tail, lookBack),
	}
	if set.Train.Len() == 0 {
		return set, fmt.Errorf("%d closes leave no training sequences for look-back %d", len(closes), lookBack)
	}
	return set, nil
}

package domain

import (
	"sort"
	"time"
)

// Bar is one daily OHLCV observation
type Bar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   int64     `json:"volume"`
}

// BarSeries is an ordered sequence of bars for one symbol
type BarSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Len returns the number of bars
func (s BarSeries) Len() int {
	return len(s.Bars)
}

// Closes returns the close prices in series order
func (s BarSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Trailing returns the last n bars. n <= 0 or n >= Len returns the whole series.
func (s BarSeries) Trailing(n int) BarSeries {
	if n <= 0 || n >= len(s.Bars) {
		return s
	}
	return BarSeries{Symbol: s.Symbol, Bars: s.Bars[len(s.Bars)-n:]}
}

// Sorted returns a copy ordered by ascending date
func (s BarSeries) Sorted() BarSeries {
	bars := make([]Bar, len(s.Bars))
	copy(bars, s.Bars)
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	return BarSeries{Symbol: s.Symbol, Bars: bars}
}

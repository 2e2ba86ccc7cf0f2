package bars

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/foresight/internal/domain"
)

const csvExt = ".csv"

var csvHeader = []string{"Date", "Open", "High", "Low", "Close", "Adj Close", "Volume"}

// accepted date layouts, the first is used when writing
var csvDateLayouts = []string{
	dateLayout,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// WorkingCopies manages the transient dataPrice{SYMBOL}.csv files
type WorkingCopies struct {
	dir string
}

// NewWorkingCopies manages CSV files inside dir
func NewWorkingCopies(dir string) *WorkingCopies {
	return &WorkingCopies{dir: dir}
}

// Dir returns the directory holding the working copies
func (w *WorkingCopies) Dir() string {
	return w.dir
}

// Path returns the file path of symbol's working copy
func (w *WorkingCopies) Path(symbol string) string {
	return filepath.Join(w.dir, domain.TableName(symbol)+csvExt)
}

// Write replaces symbol's working copy with bars
func (w *WorkingCopies) Write(symbol string, bars []domain.Bar) error {
	if !domain.ValidSymbol(symbol) {
		return fmt.Errorf("invalid symbol %q", symbol)
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create prices directory: %w", err)
	}

	tmp, err := os.CreateTemp(w.dir, ".tmp-"+symbol+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	_ = cw.Write(csvHeader)
	for _, b := range bars {
		_ = cw.Write([]string{
			b.Date.UTC().Format(dateLayout),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.AdjClose),
			strconv.FormatInt(b.Volume, 10),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", symbol, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", symbol, err)
	}
	return os.Rename(tmp.Name(), w.Path(symbol))
}

// Read loads symbol's working copy. A missing file is found=false.
func (w *WorkingCopies) Read(symbol string) (domain.BarSeries, bool, error) {
	if !domain.ValidSymbol(symbol) {
		return domain.BarSeries{}, false, nil
	}
	f, err := os.Open(w.Path(symbol))
	if errors.Is(err, os.ErrNotExist) {
		return domain.BarSeries{}, false, nil
	}
	if err != nil {
		return domain.BarSeries{}, false, fmt.Errorf("failed to open %s: %w", symbol, err)
	}
	defer f.Close()

	bars, err := parseCSV(f)
	if err != nil {
		return domain.BarSeries{}, false, fmt.Errorf("failed to parse %s: %w", w.Path(symbol), err)
	}
	series := domain.BarSeries{Symbol: symbol, Bars: bars}.Sorted()
	return series, series.Len() > 0, nil
}

// Symbols lists the symbols that currently have a working copy, sorted
func (w *WorkingCopies) Symbols() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", w.dir, err)
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), csvExt) {
			continue
		}
		if sym, ok := domain.SymbolFromTable(strings.TrimSuffix(e.Name(), csvExt)); ok {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Remove deletes symbol's working copy. Removing a missing file is not an error.
func (w *WorkingCopies) Remove(symbol string) error {
	err := os.Remove(w.Path(symbol))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func parseCSV(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	dateCol, ok := cols["date"]
	if !ok {
		return nil, fmt.Errorf("missing Date column")
	}
	closeCol, ok := cols["close"]
	if !ok {
		return nil, fmt.Errorf("missing Close column")
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var bars []domain.Bar
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if closeCol >= len(rec) || strings.TrimSpace(rec[closeCol]) == "" {
			continue
		}
		date, err := parseDate(rec[dateCol])
		if err != nil {
			return nil, err
		}
		closePrice, err := strconv.ParseFloat(strings.TrimSpace(rec[closeCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("bad close %q: %w", rec[closeCol], err)
		}
		bars = append(bars, domain.Bar{
			Date:     date,
			Open:     parseFloat(field(rec, "open")),
			High:     parseFloat(field(rec, "high")),
			Low:      parseFloat(field(rec, "low")),
			Close:    closePrice,
			AdjClose: parseFloat(field(rec, "adj close")),
			Volume:   int64(parseFloat(field(rec, "volume"))),
		})
	}
	return bars, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad date %q", s)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

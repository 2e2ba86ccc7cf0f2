// Package bars persists daily price bars: durably in SQL tables named
// dataPrice{SYMBOL}, and locally as CSV working copies written by the scrape job.
package bars

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/database"
	"github.com/aristath/foresight/internal/domain"
)

const dateLayout = "2006-01-02"

// Repository is the durable tabular store for bar series
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a bar repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "bars").Logger(),
	}
}

func tableFor(symbol string) (string, error) {
	if !domain.ValidSymbol(symbol) {
		return "", domain.Errorf(domain.KindInvalidInput, "bars table", symbol, "invalid symbol %q", symbol)
	}
	return domain.TableName(symbol), nil
}

// Replace overwrites the table for symbol with bars. The table is created when
// missing. Bars sharing a date keep the last occurrence.
func (r *Repository) Replace(ctx context.Context, symbol string, bars []domain.Bar) error {
	table, err := tableFor(symbol)
	if err != nil {
		return err
	}
	quoted := database.QuoteIdent(table)
	rows := dedupeByDate(bars)

	err = r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			date TEXT PRIMARY KEY,
			open DOUBLE PRECISION,
			high DOUBLE PRECISION,
			low DOUBLE PRECISION,
			close DOUBLE PRECISION NOT NULL,
			adj_close DOUBLE PRECISION,
			volume BIGINT
		)`, quoted)
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", quoted)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}

		stmt, err := tx.PrepareContext(ctx, r.db.Rebind(fmt.Sprintf(
			"INSERT INTO %s (date, open, high, low, close, adj_close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)", quoted)))
		if err != nil {
			return fmt.Errorf("prepare insert %s: %w", table, err)
		}
		defer stmt.Close()

		for _, b := range rows {
			if _, err := stmt.ExecContext(ctx,
				b.Date.UTC().Format(dateLayout), b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume,
			); err != nil {
				return fmt.Errorf("insert into %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Unavailable("replace "+table, err)
	}

	r.log.Debug().Str("symbol", symbol).Int("rows", len(rows)).Msg("Replaced bar series")
	return nil
}

// Exists reports whether a durable table exists for symbol
func (r *Repository) Exists(ctx context.Context, symbol string) (bool, error) {
	table, err := tableFor(symbol)
	if err != nil {
		return false, err
	}
	ok, err := r.db.TableExists(ctx, table)
	if err != nil {
		return false, domain.Unavailable("exists "+table, err)
	}
	return ok, nil
}

// Trailing returns the last n bars in ascending date order. n <= 0 returns all.
// A missing or empty table is reported as found=false.
func (r *Repository) Trailing(ctx context.Context, symbol string, n int) (domain.BarSeries, bool, error) {
	table, err := tableFor(symbol)
	if err != nil {
		return domain.BarSeries{}, false, err
	}
	if ok, err := r.Exists(ctx, symbol); err != nil || !ok {
		return domain.BarSeries{}, false, err
	}

	quoted := database.QuoteIdent(table)
	var (
		query string
		args  []interface{}
	)
	if n > 0 {
		query = r.db.Rebind(fmt.Sprintf(
			"SELECT date, open, high, low, close, adj_close, volume FROM %s ORDER BY date DESC LIMIT ?", quoted))
		args = append(args, n)
	} else {
		query = fmt.Sprintf("SELECT date, open, high, low, close, adj_close, volume FROM %s ORDER BY date ASC", quoted)
	}

	bars, err := r.query(ctx, table, query, args...)
	if err != nil {
		return domain.BarSeries{}, false, err
	}
	if n > 0 {
		for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
			bars[i], bars[j] = bars[j], bars[i]
		}
	}
	return domain.BarSeries{Symbol: symbol, Bars: bars}, len(bars) > 0, nil
}

// Range returns bars with from <= date <= to in ascending order
func (r *Repository) Range(ctx context.Context, symbol string, from, to time.Time) (domain.BarSeries, bool, error) {
	table, err := tableFor(symbol)
	if err != nil {
		return domain.BarSeries{}, false, err
	}
	if ok, err := r.Exists(ctx, symbol); err != nil || !ok {
		return domain.BarSeries{}, false, err
	}

	query := r.db.Rebind(fmt.Sprintf(
		"SELECT date, open, high, low, close, adj_close, volume FROM %s WHERE date >= ? AND date <= ? ORDER BY date ASC",
		database.QuoteIdent(table)))
	bars, err := r.query(ctx, table, query, from.UTC().Format(dateLayout), to.UTC().Format(dateLayout))
	if err != nil {
		return domain.BarSeries{}, false, err
	}
	return domain.BarSeries{Symbol: symbol, Bars: bars}, len(bars) > 0, nil
}

func (r *Repository) query(ctx context.Context, table, query string, args ...interface{}) ([]domain.Bar, error) {
	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Unavailable("query "+table, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			date   string
			b      domain.Bar
			open   sql.NullFloat64
			high   sql.NullFloat64
			low    sql.NullFloat64
			adj    sql.NullFloat64
			volume sql.NullInt64
		)
		if err := rows.Scan(&date, &open, &high, &low, &b.Close, &adj, &volume); err != nil {
			return nil, domain.Unavailable("scan "+table, err)
		}
		t, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, domain.NewError(domain.KindInternal, "parse date "+table, date, err)
		}
		b.Date = t
		b.Open, b.High, b.Low, b.AdjClose = open.Float64, high.Float64, low.Float64, adj.Float64
		b.Volume = volume.Int64
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("iterate "+table, err)
	}
	return bars, nil
}

func dedupeByDate(bars []domain.Bar) []domain.Bar {
	index := make(map[string]int, len(bars))
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		key := b.Date.UTC().Format(dateLayout)
		if i, ok := index[key]; ok {
			out[i] = b
			continue
		}
		index[key] = len(out)
		out = append(out, b)
	}
	return out
}

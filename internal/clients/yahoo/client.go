// Package yahoo fetches daily bars for NASDAQ instruments through the
// go-yfinance library.
package yahoo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	"github.com/aristath/foresight/internal/domain"
)

// Client implements the NAS data source using go-yfinance
type Client struct {
	log zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		log: log.With().Str("client", "yahoo").Logger(),
	}
}

// Period converts a month count into a Yahoo history period
func Period(months int) string {
	switch {
	case months <= 0:
		return "1mo"
	case months%12 == 0:
		return fmt.Sprintf("%dy", months/12)
	default:
		return fmt.Sprintf("%dmo", months)
	}
}

// History fetches the last months of daily bars for symbol, oldest first.
func (c *Client) History(ctx context.Context, symbol string, months int) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	params := models.HistoryParams{
		Period:     Period(months),
		Interval:   "1d",
		AutoAdjust: false,
	}

	history, err := t.History(params)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, domain.NewError(domain.KindDataNotFound, "yahoo history", symbol, err)
		}
		return nil, domain.Unavailable("yahoo history "+symbol, err)
	}

	bars := convert(history)
	c.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Fetched history")
	return bars, nil
}

// convert maps library bars onto domain bars, dropping rows without a close
func convert(history []models.Bar) []domain.Bar {
	bars := make([]domain.Bar, 0, len(history))
	for _, b := range history {
		if b.Close <= 0 {
			continue
		}
		adj := b.AdjClose
		if adj == 0 {
			adj = b.Close
		}
		bars = append(bars, domain.Bar{
			Date:     b.Date.UTC().Truncate(24 * time.Hour),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			AdjClose: adj,
			Volume:   int64(b.Volume),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars
}

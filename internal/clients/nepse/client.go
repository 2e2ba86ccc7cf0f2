// Package nepse provides a client for the Nepal Stock Exchange trading
// history API.
package nepse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/domain"
)

const (
	defaultBaseURL = "https://www.nepalstock.com"
	// the exchange caps a single history page at 500 rows
	pageSize   = 500
	dateLayout = "2006-01-02"
)

// HistoryRow is one trading day as returned by the exchange
type HistoryRow struct {
	BusinessDate        string  `json:"businessDate"`
	OpenPrice           float64 `json:"openPrice"`
	HighPrice           float64 `json:"highPrice"`
	LowPrice            float64 `json:"lowPrice"`
	ClosePrice          float64 `json:"closePrice"`
	TotalTradedQuantity float64 `json:"totalTradedQuantity"`
}

// HistoryResponse is one page of trading history
type HistoryResponse struct {
	Content       []HistoryRow `json:"content"`
	TotalElements int          `json:"totalElements"`
}

// Client is the NEPSE API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
	log        zerolog.Logger
}

// NewClient creates a new NEPSE client. An empty baseURL selects the public
// exchange endpoint.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
		log: log.With().Str("client", "nepse").Logger(),
	}
}

// History fetches the last months of daily bars for symbol, oldest first.
func (c *Client) History(ctx context.Context, symbol string, months int) ([]domain.Bar, error) {
	to := c.now().UTC()
	from := to.AddDate(0, -months, 0)

	q := url.Values{}
	q.Set("startDate", from.Format(dateLayout))
	q.Set("endDate", to.Format(dateLayout))
	q.Set("size", fmt.Sprint(pageSize))
	endpoint := fmt.Sprintf("%s/api/nots/market/history/security/%s?%s", c.baseURL, url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Unavailable("nepse history "+symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.NewError(domain.KindDataNotFound, "nepse history", symbol, nil)
	case resp.StatusCode >= 500:
		return nil, domain.Unavailable("nepse history "+symbol, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("nepse API error (status %d): %s", resp.StatusCode, string(body))
	}

	var page HistoryResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	bars := make([]domain.Bar, 0, len(page.Content))
	for _, row := range page.Content {
		date, err := time.Parse(dateLayout, row.BusinessDate)
		if err != nil {
			c.log.Warn().Str("symbol", symbol).Str("date", row.BusinessDate).Msg("Skipping row with bad date")
			continue
		}
		bars = append(bars, domain.Bar{
			Date:     date,
			Open:     row.OpenPrice,
			High:     row.HighPrice,
			Low:      row.LowPrice,
			Close:    row.ClosePrice,
			AdjClose: row.ClosePrice,
			Volume:   int64(row.TotalTradedQuantity),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	c.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Fetched history")
	return bars, nil
}

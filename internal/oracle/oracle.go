// Package oracle provides current trade prices for canonical symbols.
// The settlement engine treats this as a black box: a price comes back
// or the trade fails — prices are never fabricated or defaulted.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockdash/trade-engine/internal/metrics"
)

// ErrPriceUnavailable means no price could be obtained for the symbol,
// either because the upstream kept failing or because it does not know
// the instrument.
var ErrPriceUnavailable = errors.New("oracle: price unavailable")

// Source returns the current trade price for a canonical symbol.
type Source interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// YahooSource fetches prices from the Yahoo Finance v8 chart API.
// Transient failures (network, 5xx, 429) are retried with backoff a
// bounded number of times; unknown symbols fail immediately.
type YahooSource struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewYahooSource creates a price source against baseURL
// (e.g. https://query1.finance.yahoo.com). A nil client gets a
// 5-second-timeout default.
func NewYahooSource(baseURL string, client *http.Client) *YahooSource {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &YahooSource{
		baseURL:    baseURL,
		client:     client,
		maxRetries: 3,
		backoff:    250 * time.Millisecond,
	}
}

// chartResponse is the subset of the Yahoo chart payload we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice json.Number `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// CurrentPrice fetches the regular market price for symbol. The retry
// loop only covers transient faults; a response saying the symbol is
// unknown is terminal on the first attempt.
func (y *YahooSource) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var lastErr error
	for attempt := 0; attempt <= y.maxRetries; attempt++ {
		if attempt > 0 {
			wait := y.backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, symbol, ctx.Err())
			case <-time.After(wait):
			}
			slog.Debug("retrying price fetch", "symbol", symbol, "attempt", attempt)
		}

		price, retryable, err := y.fetch(ctx, symbol)
		if err == nil {
			return price, nil
		}
		lastErr = err
		metrics.OracleFailures.Inc()
		if !retryable {
			break
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, symbol, lastErr)
}

func (y *YahooSource) fetch(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s", y.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, false, err
	}
	req.Header.Set("User-Agent", "stockdash-trade-engine/1.0")

	resp, err := y.client.Do(req)
	if err != nil {
		return decimal.Zero, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, false, fmt.Errorf("symbol not found (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return decimal.Zero, true, fmt.Errorf("upstream status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return decimal.Zero, false, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, true, fmt.Errorf("decode quote: %w", err)
	}
	if body.Chart.Error != nil {
		return decimal.Zero, false, fmt.Errorf("upstream error %s: %s",
			body.Chart.Error.Code, body.Chart.Error.Description)
	}
	if len(body.Chart.Result) == 0 {
		return decimal.Zero, false, fmt.Errorf("no result for symbol")
	}

	raw := body.Chart.Result[0].Meta.RegularMarketPrice.String()
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("bad price %q: %w", raw, err)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false, fmt.Errorf("non-positive price %s", price)
	}
	return price, false, nil
}

package oracle_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stockdash/trade-engine/internal/oracle"
)

func quoteBody(price string) string {
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"regularMarketPrice":%s}}],"error":null}}`, price)
}

func TestCurrentPrice_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/RELIANCE.NS" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, quoteBody("2451.25"))
	}))
	defer srv.Close()

	src := oracle.NewYahooSource(srv.URL, srv.Client())
	price, err := src.CurrentPrice(context.Background(), "RELIANCE.NS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.NewFromFloat(2451.25)) {
		t.Errorf("expected 2451.25, got %s", price)
	}
}

func TestCurrentPrice_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, quoteBody("100.5"))
	}))
	defer srv.Close()

	src := oracle.NewYahooSource(srv.URL, srv.Client())
	price, err := src.CurrentPrice(context.Background(), "TCS.NS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.NewFromFloat(100.5)) {
		t.Errorf("expected 100.5, got %s", price)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 upstream calls, got %d", got)
	}
}

func TestCurrentPrice_UnknownSymbolIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := oracle.NewYahooSource(srv.URL, srv.Client())
	_, err := src.CurrentPrice(context.Background(), "NOPE.NS")
	if !errors.Is(err, oracle.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("unknown symbols must not be retried, got %d calls", got)
	}
}

func TestCurrentPrice_UpstreamErrorPayloadIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer srv.Close()

	src := oracle.NewYahooSource(srv.URL, srv.Client())
	_, err := src.CurrentPrice(context.Background(), "NOPE.NS")
	if !errors.Is(err, oracle.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream error payloads must not be retried, got %d calls", got)
	}
}

func TestCurrentPrice_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := oracle.NewYahooSource(srv.URL, srv.Client())
	_, err := src.CurrentPrice(context.Background(), "TCS.NS")
	if !errors.Is(err, oracle.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
	// Initial attempt plus three retries.
	if got := calls.Load(); got != 4 {
		t.Errorf("expected 4 attempts, got %d", got)
	}
}

func TestCurrentPrice_NonPositivePriceRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quoteBody("0"))
	}))
	defer srv.Close()

	src := oracle.NewYahooSource(srv.URL, srv.Client())
	_, err := src.CurrentPrice(context.Background(), "TCS.NS")
	if !errors.Is(err, oracle.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable for zero price, got %v", err)
	}
}

func TestCurrentPrice_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := oracle.NewYahooSource(srv.URL, srv.Client())
	_, err := src.CurrentPrice(ctx, "TCS.NS")
	if !errors.Is(err, oracle.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
}

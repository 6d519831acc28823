package symbol_test

import (
	"errors"
	"testing"

	"github.com/stockdash/trade-engine/internal/symbol"
)

func TestNormalize_KnownTicker(t *testing.T) {
	n := symbol.NewNormalizer(symbol.DefaultConfig())

	got, err := n.Normalize("RELIANCE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "RELIANCE.NS" {
		t.Errorf("expected RELIANCE.NS, got %s", got)
	}
}

func TestNormalize_LowercaseAndWhitespace(t *testing.T) {
	n := symbol.NewNormalizer(symbol.DefaultConfig())

	got, err := n.Normalize("  tcs ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "TCS.NS" {
		t.Errorf("expected TCS.NS, got %s", got)
	}
}

func TestNormalize_SuffixedPassThrough(t *testing.T) {
	n := symbol.NewNormalizer(symbol.DefaultConfig())

	cases := map[string]string{
		"RELIANCE.NS":  "RELIANCE.NS",
		"TATASTEEL.BO": "TATASTEEL.BO",
		"reliance.ns":  "RELIANCE.NS",
	}
	for in, want := range cases {
		got, err := n.Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("Normalize(%q) = %s, expected %s", in, got, want)
		}
	}

	// Even a denied ticker with an explicit suffix passes through: the
	// deny list is keyed on bare tickers.
	got, err := n.Normalize("AAPL.NS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "AAPL.NS" {
		t.Errorf("expected AAPL.NS, got %s", got)
	}
}

func TestNormalize_DeniedInstrument(t *testing.T) {
	n := symbol.NewNormalizer(symbol.DefaultConfig())

	for _, in := range []string{"AAPL", "tsla", "NVDA"} {
		_, err := n.Normalize(in)
		if !errors.Is(err, symbol.ErrUnsupportedInstrument) {
			t.Errorf("Normalize(%q): expected ErrUnsupportedInstrument, got %v", in, err)
		}
	}
}

func TestNormalize_UnlistedGetsDefaultSuffix(t *testing.T) {
	n := symbol.NewNormalizer(symbol.DefaultConfig())

	got, err := n.Normalize("ZOMATO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ZOMATO.NS" {
		t.Errorf("expected ZOMATO.NS, got %s", got)
	}
}

func TestNormalize_Empty(t *testing.T) {
	n := symbol.NewNormalizer(symbol.DefaultConfig())

	if _, err := n.Normalize("   "); !errors.Is(err, symbol.ErrUnsupportedInstrument) {
		t.Errorf("expected ErrUnsupportedInstrument for blank input, got %v", err)
	}
}

func TestNewNormalizer_CustomConfig(t *testing.T) {
	n := symbol.NewNormalizer(symbol.Config{
		Aliases:       map[string]string{"abc": "ABC.XX"},
		Denied:        []string{"bad"},
		DefaultSuffix: ".XX",
	})

	if got, _ := n.Normalize("ABC"); got != "ABC.XX" {
		t.Errorf("alias lookup failed, got %s", got)
	}
	if _, err := n.Normalize("BAD"); !errors.Is(err, symbol.ErrUnsupportedInstrument) {
		t.Errorf("expected deny, got %v", err)
	}
	if got, _ := n.Normalize("other"); got != "OTHER.XX" {
		t.Errorf("expected OTHER.XX, got %s", got)
	}
}

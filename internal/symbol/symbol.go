// Package symbol maps user-supplied tickers to the canonical
// exchange-qualified form used across the ledger, and rejects
// instruments the platform does not support.
package symbol

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnsupportedInstrument means the ticker is on the deny list.
var ErrUnsupportedInstrument = errors.New("symbol: unsupported instrument")

// Config is the immutable symbol table the normalizer works from.
// Aliases maps a bare ticker to its canonical exchange-qualified form;
// Denied lists tickers that must never settle here.
type Config struct {
	Aliases       map[string]string `json:"aliases"`
	Denied        []string          `json:"denied"`
	DefaultSuffix string            `json:"default_suffix"`
}

// DefaultConfig returns the built-in symbol table: NSE-listed large
// caps plus the US tickers the dashboard shows but does not trade.
func DefaultConfig() Config {
	return Config{
		Aliases: map[string]string{
			"RELIANCE":   "RELIANCE.NS",
			"TCS":        "TCS.NS",
			"INFY":       "INFY.NS",
			"HDFCBANK":   "HDFCBANK.NS",
			"ICICIBANK":  "ICICIBANK.NS",
			"SBIN":       "SBIN.NS",
			"BHARTIARTL": "BHARTIARTL.NS",
			"ITC":        "ITC.NS",
			"WIPRO":      "WIPRO.NS",
			"HCLTECH":    "HCLTECH.NS",
			"TATAMOTORS": "TATAMOTORS.NS",
			"TATASTEEL":  "TATASTEEL.NS",
			"AXISBANK":   "AXISBANK.NS",
			"KOTAKBANK":  "KOTAKBANK.NS",
			"LT":         "LT.NS",
			"MARUTI":     "MARUTI.NS",
			"ASIANPAINT": "ASIANPAINT.NS",
			"BAJFINANCE": "BAJFINANCE.NS",
			"SUNPHARMA":  "SUNPHARMA.NS",
			"NTPC":       "NTPC.NS",
		},
		Denied: []string{
			"AAPL", "MSFT", "GOOGL", "GOOG", "AMZN",
			"TSLA", "META", "NVDA", "NFLX", "AMD",
		},
		DefaultSuffix: ".NS",
	}
}

// LoadConfig reads a symbol table from a JSON file, falling back to
// DefaultConfig defaults for fields the file leaves empty.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read symbol table: %w", err)
	}
	cfg := Config{}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse symbol table %s: %w", path, err)
	}
	def := DefaultConfig()
	if cfg.Aliases == nil {
		cfg.Aliases = def.Aliases
	}
	if cfg.Denied == nil {
		cfg.Denied = def.Denied
	}
	if cfg.DefaultSuffix == "" {
		cfg.DefaultSuffix = def.DefaultSuffix
	}
	return cfg, nil
}

// Normalizer resolves raw tickers to canonical symbols. It is a pure
// lookup; construct once and share freely.
type Normalizer struct {
	aliases       map[string]string
	denied        map[string]bool
	defaultSuffix string
}

// NewNormalizer builds a Normalizer from cfg. The config is copied;
// later mutation of cfg does not affect the normalizer.
func NewNormalizer(cfg Config) *Normalizer {
	n := &Normalizer{
		aliases:       make(map[string]string, len(cfg.Aliases)),
		denied:        make(map[string]bool, len(cfg.Denied)),
		defaultSuffix: cfg.DefaultSuffix,
	}
	for raw, canonical := range cfg.Aliases {
		n.aliases[strings.ToUpper(raw)] = strings.ToUpper(canonical)
	}
	for _, d := range cfg.Denied {
		n.denied[strings.ToUpper(d)] = true
	}
	return n
}

// Normalize maps a raw ticker to its canonical exchange-qualified form.
//
// Inputs already carrying an exchange suffix pass through unchanged.
// Known tickers map through the alias table; denied tickers fail with
// ErrUnsupportedInstrument. Anything else gets the default suffix, so
// unlisted-but-legitimate tickers still resolve.
func (n *Normalizer) Normalize(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrUnsupportedInstrument)
	}
	if strings.Contains(s, ".") {
		return s, nil
	}
	if n.denied[s] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedInstrument, s)
	}
	if canonical, ok := n.aliases[s]; ok {
		return canonical, nil
	}
	return s + n.defaultSuffix, nil
}

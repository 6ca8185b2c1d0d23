package domain

import (
	"fmt"
	"strings"
)

// AssetClass classifies the instrument family a Pair belongs to.
type AssetClass string

const (
	AssetForex  AssetClass = "forex"
	AssetMetal  AssetClass = "metal"
	AssetIndex  AssetClass = "index"
	AssetCrypto AssetClass = "crypto"
)

// metalBases and indexSymbols let NewPair classify without an external table;
// anything not recognized falls back to forex, the dominant asset class.
var metalBases = map[string]bool{"XAU": true, "XAG": true, "XPT": true, "XPD": true}
var indexSymbols = map[string]bool{"US30": true, "SPX500": true, "NAS100": true, "GER40": true, "UK100": true}
var cryptoBases = map[string]bool{"BTC": true, "ETH": true, "XRP": true, "LTC": true}

// Pair is an upper-cased instrument symbol, e.g. EURUSD.
type Pair struct {
	Symbol string
	Class  AssetClass
	Base   string
	Quote  string
}

// NewPair validates and classifies a raw symbol string.
func NewPair(raw string) (Pair, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if indexSymbols[symbol] {
		return Pair{Symbol: symbol, Class: AssetIndex}, nil
	}
	if len(symbol) < 6 {
		return Pair{}, fmt.Errorf("invalid pair symbol %q: expected at least 6 characters", raw)
	}
	base, quote := symbol[:3], symbol[3:6]
	if base == "" || quote == "" {
		return Pair{}, fmt.Errorf("invalid pair symbol %q: could not extract base/quote", raw)
	}

	class := AssetForex
	switch {
	case metalBases[base]:
		class = AssetMetal
	case cryptoBases[base] || cryptoBases[quote]:
		class = AssetCrypto
	}

	return Pair{Symbol: symbol, Class: class, Base: base, Quote: quote}, nil
}

func (p Pair) String() string { return p.Symbol }

// IsJPY reports whether the quote currency is JPY, which uses a 0.01 pip size
// instead of the 0.0001 used by most pairs.
func (p Pair) IsJPY() bool { return p.Quote == "JPY" }

// PipSize returns the minimum price increment for the pair.
func (p Pair) PipSize() float64 {
	if p.IsJPY() {
		return 0.01
	}
	if p.Class == AssetMetal || p.Class == AssetIndex || p.Class == AssetCrypto {
		return 0.01
	}
	return 0.0001
}

// SpreadCategory buckets a pair for spread-threshold lookups in the quality
// guard: majors, yen crosses, minors, and everything else.
func (p Pair) SpreadCategory() string {
	majors := map[string]bool{
		"EURUSD": true, "GBPUSD": true, "USDJPY": true, "USDCHF": true,
		"USDCAD": true, "AUDUSD": true, "NZDUSD": true,
	}
	switch {
	case p.IsJPY():
		return "yen"
	case majors[p.Symbol]:
		return "majors"
	case p.Class == AssetForex:
		return "minors"
	default:
		return "crosses"
	}
}

package models

import "fmt"

// Symbol identifies one of the supported crypto markets.
type Symbol string

const (
	BTC Symbol = "btc"
	ETH Symbol = "eth"
	LTC Symbol = "ltc"
	BCH Symbol = "bch"
)

var allSymbols = []Symbol{BTC, ETH, LTC, BCH}

// Symbols returns every recognized market symbol.
func Symbols() []Symbol {
	out := make([]Symbol, len(allSymbols))
	copy(out, allSymbols)
	return out
}

// Valid reports whether s is a recognized market symbol.
func (s Symbol) Valid() bool {
	for _, v := range allSymbols {
		if s == v {
			return true
		}
	}
	return false
}

func (s Symbol) String() string { return string(s) }

// ParseSymbol validates a raw market name.
func ParseSymbol(raw string) (Symbol, error) {
	s := Symbol(raw)
	if !s.Valid() {
		return "", fmt.Errorf("market %q is not recognized, should be one of %v", raw, allSymbols)
	}
	return s, nil
}

package kraken

import (
	"fmt"

	"CryptoPull/internal/domain/models"
)

// MarketConfig carries the three names Kraken uses for one market: the
// websocket subscription pair, the REST OHLC pair parameter, and the key the
// OHLC response nests its rows under (which differs from the request pair for
// most markets).
type MarketConfig struct {
	SubscriptionPair string
	OHLCPair         string
	ResponseKey      string
}

var marketTable = map[models.Symbol]MarketConfig{
	models.BTC: {SubscriptionPair: "XBT/USD", OHLCPair: "XBTUSD", ResponseKey: "XXBTZUSD"},
	models.ETH: {SubscriptionPair: "ETH/USD", OHLCPair: "ETHUSD", ResponseKey: "XETHZUSD"},
	models.BCH: {SubscriptionPair: "BCH/USD", OHLCPair: "BCHUSD", ResponseKey: "BCHUSD"},
	models.LTC: {SubscriptionPair: "LTC/USD", OHLCPair: "LTCUSD", ResponseKey: "XLTCZUSD"},
}

// ConfigFor returns the Kraken naming for a market.
func ConfigFor(symbol models.Symbol) (MarketConfig, error) {
	cfg, ok := marketTable[symbol]
	if !ok {
		return MarketConfig{}, fmt.Errorf("kraken: no market config for %q", symbol)
	}
	return cfg, nil
}

// symbolBySubscriptionPair maps websocket pair names back to our symbols.
var symbolBySubscriptionPair = func() map[string]models.Symbol {
	m := make(map[string]models.Symbol, len(marketTable))
	for sym, cfg := range marketTable {
		m[cfg.SubscriptionPair] = sym
	}
	return m
}()

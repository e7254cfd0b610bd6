package kraken

import (
	"encoding/json"
	"fmt"
	"strconv"

	"CryptoPull/internal/backfill"
	"CryptoPull/internal/domain/models"
	xhttp "CryptoPull/pkg/http"
)

// DefaultRESTURL is Kraken's public OHLC endpoint.
const DefaultRESTURL = "https://api.kraken.com/0/public/OHLC"

// ohlcInterval requests hourly rows, in minutes as Kraken expects.
const ohlcInterval = "60"

// HistoryAdapter pages Kraken's OHLC endpoint for one market. It implements
// backfill.VenueAdapter.
type HistoryAdapter struct {
	baseURL string
	market  models.Symbol
	cfg     MarketConfig
}

// NewHistoryAdapter builds the OHLC paging adapter for a market.
func NewHistoryAdapter(baseURL string, market models.Symbol) (*HistoryAdapter, error) {
	cfg, err := ConfigFor(market)
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	return &HistoryAdapter{baseURL: baseURL, market: market, cfg: cfg}, nil
}

func (a *HistoryAdapter) Venue() string         { return "kraken" }
func (a *HistoryAdapter) Market() models.Symbol { return a.market }

// BuildRequest asks for the page after cursor. Without a cursor the endpoint
// serves its maximum lookback window, which becomes the first page.
func (a *HistoryAdapter) BuildRequest(cursor int64, haveCursor bool) *xhttp.RequestOptions {
	params := map[string][]string{
		"pair":     {a.cfg.OHLCPair},
		"interval": {ohlcInterval},
	}
	if haveCursor {
		params["since"] = []string{strconv.FormatInt(cursor, 10)}
	}
	return &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         a.baseURL,
		QueryParams: params,
	}
}

type ohlcEnvelope struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// ParsePage decodes an OHLC response. Rows arrive under the market's response
// key; result.last is the bucket start of the newest committed row and becomes
// the page's commit boundary.
func (a *HistoryAdapter) ParsePage(body []byte) (backfill.Page, error) {
	var env ohlcEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return backfill.Page{}, fmt.Errorf("kraken ohlc: %w", err)
	}
	if len(env.Error) > 0 {
		return backfill.Page{}, fmt.Errorf("kraken ohlc: api error %v", env.Error)
	}

	rowsRaw, ok := env.Result[a.cfg.ResponseKey]
	if !ok {
		return backfill.Page{}, fmt.Errorf("kraken ohlc: response has no %q key", a.cfg.ResponseKey)
	}
	candles, err := parseRows(rowsRaw)
	if err != nil {
		return backfill.Page{}, err
	}

	lastRaw, ok := env.Result["last"]
	if !ok {
		return backfill.Page{}, fmt.Errorf("kraken ohlc: response has no last key")
	}
	var boundary int64
	if err := json.Unmarshal(lastRaw, &boundary); err != nil {
		return backfill.Page{}, fmt.Errorf("kraken ohlc: last: %w", err)
	}

	return backfill.Page{Candles: candles, CommitBoundary: boundary}, nil
}

// parseRows decodes [time, open, high, low, close, vwap, volume, count] rows.
// Prices and volume are strings; time and count are numbers.
func parseRows(raw json.RawMessage) ([]models.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("kraken ohlc rows: %w", err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			return nil, fmt.Errorf("kraken ohlc: short row %v", row)
		}
		var ts int64
		if err := json.Unmarshal(row[0], &ts); err != nil {
			return nil, fmt.Errorf("kraken ohlc row time: %w", err)
		}
		var c models.Candle
		c.BucketStart = ts
		fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close}
		for i, dst := range fields {
			v, err := parsePriceField(row[i+1])
			if err != nil {
				return nil, err
			}
			*dst = v
		}
		vol, err := parsePriceField(row[6])
		if err != nil {
			return nil, err
		}
		c.Volume = vol
		candles = append(candles, c)
	}
	return candles, nil
}

func parsePriceField(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("kraken ohlc field %s: %w", raw, err)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("kraken ohlc field %q: %w", s, err)
	}
	return v, nil
}

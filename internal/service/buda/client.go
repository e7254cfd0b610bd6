// Package buda recovers hourly candles for the Chilean-peso markets by paging
// Buda's public trade history and aggregating it locally; the venue has no
// OHLC endpoint.
package buda

import (
	"context"
	"fmt"
	"strconv"

	"CryptoPull/internal/domain/models"
	xhttp "CryptoPull/pkg/http"
)

// DefaultBaseURL is Buda's public API root.
const DefaultBaseURL = "https://www.buda.com/api/v2/markets/"

// MarketID maps a symbol to Buda's market identifier.
func MarketID(symbol models.Symbol) string { return symbol.String() + "-clp" }

type httpClient interface {
	SendAndParse(ctx context.Context, opts *xhttp.RequestOptions, dest interface{}) error
}

// TradesPage is one page of the trades endpoint, newest first. Entries older
// than LastTimestamp live on the next page.
type TradesPage struct {
	Trades        []models.Trade
	LastTimestamp int64 // ms, cursor for the next (older) page
}

// Client fetches trade history pages from Buda.
type Client struct {
	baseURL string
	http    httpClient
	limit   int
}

// NewClient builds a Buda API client. limit caps entries per page; zero keeps
// the venue default.
func NewClient(baseURL string, http httpClient, limit int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, http: http, limit: limit}
}

type tradesEnvelope struct {
	Trades struct {
		LastTimestamp string     `json:"last_timestamp"`
		Entries       [][]string `json:"entries"`
	} `json:"trades"`
}

// Trades fetches the page of trades immediately older than beforeMS. A zero
// beforeMS starts from the newest trade.
func (c *Client) Trades(ctx context.Context, market models.Symbol, beforeMS int64) (TradesPage, error) {
	params := map[string][]string{}
	if beforeMS > 0 {
		params["timestamp"] = []string{strconv.FormatInt(beforeMS, 10)}
	}
	if c.limit > 0 {
		params["limit"] = []string{strconv.Itoa(c.limit)}
	}

	var env tradesEnvelope
	opts := &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + MarketID(market) + "/trades",
		QueryParams: params,
	}
	if err := c.http.SendAndParse(ctx, opts, &env); err != nil {
		return TradesPage{}, fmt.Errorf("buda trades %s: %w", market, err)
	}

	page := TradesPage{Trades: make([]models.Trade, 0, len(env.Trades.Entries))}
	for _, entry := range env.Trades.Entries {
		t, err := parseEntry(market, entry)
		if err != nil {
			return TradesPage{}, fmt.Errorf("buda trades %s: %w", market, err)
		}
		page.Trades = append(page.Trades, t)
	}

	if env.Trades.LastTimestamp != "" {
		last, err := strconv.ParseInt(env.Trades.LastTimestamp, 10, 64)
		if err != nil {
			return TradesPage{}, fmt.Errorf("buda trades %s: last_timestamp %q: %w", market, env.Trades.LastTimestamp, err)
		}
		page.LastTimestamp = last
	}
	return page, nil
}

// parseEntry decodes a [timestamp_ms, amount, price, direction] tuple.
func parseEntry(market models.Symbol, entry []string) (models.Trade, error) {
	if len(entry) < 4 {
		return models.Trade{}, fmt.Errorf("short entry %v", entry)
	}
	ms, err := strconv.ParseInt(entry[0], 10, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("timestamp %q: %w", entry[0], err)
	}
	amount, err := strconv.ParseFloat(entry[1], 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("amount %q: %w", entry[1], err)
	}
	price, err := strconv.ParseFloat(entry[2], 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("price %q: %w", entry[2], err)
	}
	side := models.SideBuy
	if entry[3] == "sell" {
		side = models.SideSell
	}
	return models.Trade{
		Symbol:    market,
		Timestamp: ms / 1000,
		Price:     price,
		Amount:    amount,
		Side:      side,
	}, nil
}

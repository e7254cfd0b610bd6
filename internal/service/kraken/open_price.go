package kraken

import (
	"context"
	"fmt"

	"CryptoPull/internal/domain/models"
	xhttp "CryptoPull/pkg/http"
)

type httpClient interface {
	SendAndParse(ctx context.Context, opts *xhttp.RequestOptions, dest interface{}) error
}

// Primer seeds the live aggregation with the current hour's partial candle, so
// the in-progress bucket opens at the venue's open price instead of the first
// streamed trade.
type Primer struct {
	baseURL string
	client  httpClient
}

// NewPrimer builds a Primer against the OHLC endpoint.
func NewPrimer(baseURL string, client httpClient) *Primer {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	return &Primer{baseURL: baseURL, client: client}
}

// CurrentCandle fetches the newest (uncommitted) hourly row for a market.
func (p *Primer) CurrentCandle(ctx context.Context, market models.Symbol) (models.Candle, error) {
	adapter, err := NewHistoryAdapter(p.baseURL, market)
	if err != nil {
		return models.Candle{}, err
	}

	opts := adapter.BuildRequest(0, false)
	var body []byte
	if err := p.client.SendAndParse(ctx, opts, &body); err != nil {
		return models.Candle{}, fmt.Errorf("kraken open price %s: %w", market, err)
	}
	page, err := adapter.ParsePage(body)
	if err != nil {
		return models.Candle{}, fmt.Errorf("kraken open price %s: %w", market, err)
	}
	if len(page.Candles) == 0 {
		return models.Candle{}, fmt.Errorf("kraken open price %s: empty response", market)
	}
	return page.Candles[len(page.Candles)-1], nil
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"CryptoPull/internal/domain/models"
	drepo "CryptoPull/internal/domain/repository"
	"CryptoPull/pkg/cache"
)

// CandlesUseCase provides business logic for retrieving candles.
type CandlesUseCase struct {
	reader drepo.CandleReader
	cache  cache.Service
}

func NewCandlesUseCase(reader drepo.CandleReader, cacheSvc cache.Service) *CandlesUseCase {
	return &CandlesUseCase{reader: reader, cache: cacheSvc}
}

type GetCandlesParams struct {
	Venue  string
	Symbol models.Symbol
	From   time.Time
	To     time.Time
	Limit  int
}

type GetCandlesResult struct {
	Venue   string          `json:"venue"`
	Symbol  models.Symbol   `json:"symbol"`
	From    time.Time       `json:"from"`
	To      time.Time       `json:"to"`
	Count   int             `json:"count"`
	Candles []models.Candle `json:"candles"`
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if !p.Symbol.Valid() {
		return nil, fmt.Errorf("unknown symbol %q", p.Symbol)
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 10000
	}
	if p.Limit > 50000 {
		p.Limit = 50000
	}
	if p.Venue == "" {
		p.Venue = "kraken"
	}

	candles, err := uc.reader.Candles(ctx, p.Venue, p.Symbol, p.From, p.To, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}

	return &GetCandlesResult{
		Venue:   p.Venue,
		Symbol:  p.Symbol,
		From:    p.From,
		To:      p.To,
		Count:   len(candles),
		Candles: candles,
	}, nil
}

// LiveCandle returns the cached in-progress candle for a market, if present.
func (uc *CandlesUseCase) LiveCandle(ctx context.Context, symbol models.Symbol) (*models.Candle, error) {
	if !symbol.Valid() {
		return nil, fmt.Errorf("unknown symbol %q", symbol)
	}
	if uc.cache == nil {
		return nil, nil
	}
	var c models.Candle
	if err := uc.cache.Get(ctx, LiveCandleKey(symbol), &c); err != nil {
		return nil, nil // cache miss is not an error for callers
	}
	return &c, nil
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"CryptoPull/internal/domain/models"
	drepo "CryptoPull/internal/domain/repository"
)

// TradeProcessor routes live trades to the configured backend: "kafka"
// publishes for the consumer group, "clickhouse" writes directly.
type TradeProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

// NewTradeProcessor creates a new TradeProcessor instance.
func NewTradeProcessor(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *TradeProcessor {
	return &TradeProcessor{pub: pub, store: store, metrics: metrics, backend: backend}
}

// Process routes a single trade to the configured backend.
func (p *TradeProcessor) Process(ctx context.Context, t *models.Trade) error {
	if t == nil {
		return fmt.Errorf("trade is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, t)
	case "clickhouse":
		err = p.store.Store(ctx, t)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process trade: %w", err)
	}
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *TradeProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

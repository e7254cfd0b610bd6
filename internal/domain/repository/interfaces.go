package repository

import (
	"context"
	"time"

	"CryptoPull/internal/domain/models"
)

// Persistor is the durable store for committed candles. It is the sole source
// of truth for backfill progress: the cursor is the max persisted bucket start.
// A Persistor instance is scoped to a single venue, so two venues recovering
// the same symbol never see or advance each other's cursor. Implementations
// must serialize writes per market; callers never ask the cursor to move
// backward.
type Persistor interface {
	// LastTimestamp returns the newest persisted bucket start for a market,
	// or ok=false when no history exists yet.
	LastTimestamp(ctx context.Context, market models.Symbol) (ts int64, ok bool, err error)
	Append(ctx context.Context, market models.Symbol, candles []models.Candle) error
}

// CandleReader serves persisted candles to the query side. Venues price the
// same symbol in different currencies, so every read names its venue.
type CandleReader interface {
	Candles(ctx context.Context, venue string, market models.Symbol, from, to time.Time, limit int) ([]models.Candle, error)
}

// Publisher forwards live trades to the streaming backend.
type Publisher interface {
	Publish(ctx context.Context, t *models.Trade) error
	Close() error
}

// Storage persists live trades directly (the non-queue backend).
type Storage interface {
	Store(ctx context.Context, t *models.Trade) error
	Health(ctx context.Context) error
	Close() error
}

// Severity classifies an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertSink delivers operator alerts. Fire-and-forget: implementations must
// never propagate their own failures back into the caller's control flow.
type AlertSink interface {
	Notify(severity Severity, message string)
}

type Metrics interface {
	RecordTradeReceived(symbol string)
	RecordReconnect(venue string)
	RecordBackfillPage(venue string, candles int)
	RecordCandlesPersisted(symbol string, count int)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}

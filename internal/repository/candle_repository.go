package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CryptoPull/internal/domain/models"
	"CryptoPull/internal/domain/repository"
)

// ClickHouseCandleStore holds hourly candles for every venue in one table.
// The table is a ReplacingMergeTree keyed on (venue, symbol, bucket_start), so
// re-appending a bucket is harmless and the recover loops stay idempotent.
// Cursor reads and writes always go through a venue-scoped view (ForVenue):
// both venues trade the same symbols, and an unscoped cursor would let one
// venue's recovery starve the other's.
type ClickHouseCandleStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseCandleStore creates the candle store against an existing table.
func NewClickHouseCandleStore(db *sql.DB, table string) *ClickHouseCandleStore {
	return &ClickHouseCandleStore{db: db, table: table}
}

// CandleSchema returns the DDL for the candle table, for InitSchema.
func CandleSchema(table string) []string {
	return []string{fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    venue LowCardinality(String),
    symbol LowCardinality(String),
    bucket_start DateTime,
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    volume Float64
) ENGINE = ReplacingMergeTree()
ORDER BY (venue, symbol, bucket_start)`, table)}
}

// ForVenue returns the store scoped to one venue's series, implementing
// Persistor for that venue only.
func (s *ClickHouseCandleStore) ForVenue(venue string) *VenueCandleStore {
	return &VenueCandleStore{store: s, venue: venue}
}

func (s *ClickHouseCandleStore) lastTimestamp(ctx context.Context, venue string, market models.Symbol) (int64, bool, error) {
	q := fmt.Sprintf("SELECT toUnixTimestamp(max(bucket_start)), count() FROM %s WHERE venue = ? AND symbol = ?", s.table)
	var ts int64
	var count uint64
	if err := s.db.QueryRowContext(ctx, q, venue, market.String()).Scan(&ts, &count); err != nil {
		return 0, false, fmt.Errorf("candle cursor %s/%s: %w", venue, market, err)
	}
	if count == 0 {
		return 0, false, nil
	}
	return ts, true, nil
}

func (s *ClickHouseCandleStore) append(ctx context.Context, venue string, market models.Symbol, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	values := make([]string, 0, len(candles))
	args := make([]interface{}, 0, len(candles)*8)
	for _, c := range candles {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			venue,
			market.String(),
			time.Unix(c.BucketStart, 0),
			c.Open,
			c.High,
			c.Low,
			c.Close,
			c.Volume,
		)
	}
	q := fmt.Sprintf("INSERT INTO %s (venue, symbol, bucket_start, open, high, low, close, volume) VALUES %s",
		s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("append candles %s/%s: %w", venue, market, err)
	}
	return nil
}

// Candles reads one venue's persisted candles for a market ordered by bucket
// start.
func (s *ClickHouseCandleStore) Candles(ctx context.Context, venue string, market models.Symbol, from, to time.Time, limit int) ([]models.Candle, error) {
	q := fmt.Sprintf(`SELECT toUnixTimestamp(bucket_start), open, high, low, close, volume
FROM %s FINAL
WHERE venue = ? AND symbol = ? AND bucket_start >= ? AND bucket_start <= ?
ORDER BY bucket_start ASC LIMIT ?`, s.table)

	rows, err := s.db.QueryContext(ctx, q, venue, market.String(), from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query candles %s/%s: %w", venue, market, err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.BucketStart, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Health pings the backing database.
func (s *ClickHouseCandleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// VenueCandleStore is one venue's view of the candle table.
type VenueCandleStore struct {
	store *ClickHouseCandleStore
	venue string
}

// LastTimestamp returns the newest persisted bucket start for a market on
// this venue.
func (v *VenueCandleStore) LastTimestamp(ctx context.Context, market models.Symbol) (int64, bool, error) {
	return v.store.lastTimestamp(ctx, v.venue, market)
}

// Append inserts candles for a market on this venue in one batched statement.
func (v *VenueCandleStore) Append(ctx context.Context, market models.Symbol, candles []models.Candle) error {
	return v.store.append(ctx, v.venue, market, candles)
}

var _ repository.Persistor = (*VenueCandleStore)(nil)
var _ repository.CandleReader = (*ClickHouseCandleStore)(nil)

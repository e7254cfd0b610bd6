package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CryptoPull/internal/domain/models"
	"CryptoPull/internal/domain/repository"
	pkgkafka "CryptoPull/pkg/kafka"
)

// ClickHouseTradeStorage implements Storage for live trades.
type ClickHouseTradeStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseTradeStorage creates ClickHouse trade storage.
func NewClickHouseTradeStorage(db *sql.DB, table string) repository.Storage {
	return &ClickHouseTradeStorage{db: db, table: table}
}

// TradeSchema returns the DDL for the raw trades table, for InitSchema.
func TradeSchema(table string) []string {
	return []string{fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    symbol LowCardinality(String),
    ts DateTime,
    price Float64,
    amount Float64,
    side LowCardinality(String),
    source LowCardinality(String)
) ENGINE = MergeTree()
ORDER BY (symbol, ts)`, table)}
}

func (s *ClickHouseTradeStorage) Store(ctx context.Context, t *models.Trade) error {
	q := fmt.Sprintf("INSERT INTO %s (symbol, ts, price, amount, side, source) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		t.Symbol.String(),
		time.Unix(t.Timestamp, 0),
		t.Price,
		t.Amount,
		string(t.Side),
		"kraken",
	)
	if err != nil {
		return fmt.Errorf("store trade %s: %w", t.Symbol, err)
	}
	return nil
}

func (s *ClickHouseTradeStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseTradeStorage) Close() error {
	return nil // managed by pkg client
}

// KafkaTradePublisher implements Publisher for Kafka.
type KafkaTradePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaTradePublisher creates the Kafka trade publisher.
func NewKafkaTradePublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaTradePublisher{producer: producer, topic: topic}
}

func (p *KafkaTradePublisher) Publish(ctx context.Context, t *models.Trade) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Symbol), map[string]interface{}{
		"symbol": t.Symbol.String(),
		"t":      t.Timestamp,
		"p":      t.Price,
		"a":      t.Amount,
		"side":   string(t.Side),
	})
}

func (p *KafkaTradePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

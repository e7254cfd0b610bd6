package usecase

import (
	"context"
	"encoding/json"
	"time"

	"CryptoPull/internal/domain/models"
	drepo "CryptoPull/internal/domain/repository"
	pkgkafka "CryptoPull/pkg/kafka"
)

// KafkaTicksHandler consumes published trades and writes them to storage.
// Used when the live side runs with the kafka backend: the producer and this
// consumer split the write path across processes.
type KafkaTicksHandler struct {
	topic   string
	storage drepo.Storage
	metrics drepo.Metrics
}

func NewKafkaTicksHandler(topic string, storage drepo.Storage, metrics drepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, p, a, side}
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		P      float64 `json:"p"`
		A      float64 `json:"a"`
		Side   string  `json:"side"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	symbol, err := models.ParseSymbol(m.Symbol)
	if err != nil {
		h.metrics.RecordError("consumer_symbol")
		return err
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(m.T, 0)).Seconds())

	start := time.Now()
	err = h.storage.Store(ctx, &models.Trade{
		Symbol:    symbol,
		Timestamp: m.T,
		Price:     m.P,
		Amount:    m.A,
		Side:      models.Side(m.Side),
	})
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)

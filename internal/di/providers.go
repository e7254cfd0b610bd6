package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"CryptoPull/internal/backfill"
	"CryptoPull/internal/domain/models"
	"CryptoPull/internal/domain/repository"
	"CryptoPull/internal/handler/api"
	internalrepo "CryptoPull/internal/repository"
	"CryptoPull/internal/service/alerting"
	"CryptoPull/internal/service/buda"
	"CryptoPull/internal/service/kraken"
	"CryptoPull/internal/service/telegram"
	"CryptoPull/internal/usecase"
	"CryptoPull/pkg/cache"
	pkgch "CryptoPull/pkg/clickhouse"
	"CryptoPull/pkg/config"
	xhttp "CryptoPull/pkg/http"
	pkgkafka "CryptoPull/pkg/kafka"
	applogger "CryptoPull/pkg/logger"
	"CryptoPull/pkg/metrics"
	pkgqueue "CryptoPull/pkg/queue"
	"CryptoPull/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMarkets parses and validates configured market symbols.
func ProvideMarkets(cfg *config.Config) ([]models.Symbol, error) {
	symbols := make([]models.Symbol, 0, len(cfg.Markets))
	for _, raw := range cfg.Markets {
		s, err := models.ParseSymbol(raw)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, nil
}

// ProvideClickHouseClient creates a ClickHouse client and prepares schemas.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database}
	stmts = append(stmts, internalrepo.CandleSchema(candleTable(cfg))...)
	stmts = append(stmts, internalrepo.TradeSchema(tradeTable(cfg))...)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

func candleTable(cfg *config.Config) string {
	table := cfg.ClickHouse.CandleTable
	if table == "" {
		table = "candles_1h"
	}
	return cfg.ClickHouse.Database + "." + table
}

func tradeTable(cfg *config.Config) string {
	table := cfg.ClickHouse.TradeTable
	if table == "" {
		table = "trades_raw"
	}
	return cfg.ClickHouse.Database + "." + table
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCandleStore creates the candle persistor/reader.
func ProvideCandleStore(chClient *pkgch.Client, cfg *config.Config) *internalrepo.ClickHouseCandleStore {
	return internalrepo.NewClickHouseCandleStore(chClient.DB(), candleTable(cfg))
}

// ProvidePersistor exposes the kraken-scoped candle store: the live collector
// and the kraken backfiller share this cursor. Buda recovery gets its own
// scope in ProvideBudaRecoverer so neither venue can advance the other's
// cursor.
func ProvidePersistor(store *internalrepo.ClickHouseCandleStore) repository.Persistor {
	return store.ForVenue("kraken")
}

// ProvideCandleReader exposes the candle store to the query side.
func ProvideCandleReader(store *internalrepo.ClickHouseCandleStore) repository.CandleReader {
	return store
}

// ProvideTradeStorage creates ClickHouse storage for raw trades.
func ProvideTradeStorage(chClient *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewClickHouseTradeStorage(chClient.DB(), tradeTable(cfg))
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideTradePublisher creates the Kafka publisher repository.
func ProvideTradePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaTradePublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaTicksHandler registers the handler for the ticks topic.
func ProvideKafkaTicksHandler(store repository.Storage, m repository.Metrics, cfg *config.Config) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.Topic, store, m)
}

// ProvideRedisClient creates the shared redis connection.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideCache creates the live candle cache: layered memory+redis when redis
// is configured, process memory otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if cfg.Redis.Addr == "" {
		return cache.NewMemoryCache(), nil
	}
	redisCache, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, err
	}
	return cache.NewLayeredCache(redisCache), nil
}

// ProvideHTTPClient creates the shared REST client for venue APIs.
func ProvideHTTPClient() *xhttp.Client {
	return xhttp.NewClient(xhttp.WithTimeout(30 * time.Second))
}

// ProvideAlertRing creates the alert sink chain: the ring records for the API
// and forwards to Telegram when enabled.
func ProvideAlertRing(cfg *config.Config, client *xhttp.Client, log *applogger.Logger) *alerting.Ring {
	var next repository.AlertSink
	if cfg.Telegram.Enabled {
		next = telegram.NewSink(cfg.Telegram.Token, cfg.Telegram.ChatID, client, log)
	}
	return alerting.NewRing(next, cfg.Alerts.RingSize)
}

// ProvideAlertSink exposes the ring as the engines' sink.
func ProvideAlertSink(ring *alerting.Ring) repository.AlertSink {
	return ring
}

// ProvideKrakenDialer creates the Kraken websocket dialer.
func ProvideKrakenDialer(cfg *config.Config, log *applogger.Logger) *kraken.Dialer {
	return kraken.NewDialer(cfg.Kraken.WebsocketURL, log)
}

// ProvideKrakenPrimer creates the open price primer.
func ProvideKrakenPrimer(cfg *config.Config, client *xhttp.Client) *kraken.Primer {
	return kraken.NewPrimer(cfg.Kraken.RESTURL, client)
}

// ProvideBudaRecoverer creates the Buda trade history recoverer, or nil when
// the venue is disabled.
func ProvideBudaRecoverer(
	cfg *config.Config,
	store *internalrepo.ClickHouseCandleStore,
	sink repository.AlertSink,
	m repository.Metrics,
	client *xhttp.Client,
	log *applogger.Logger,
) *buda.Recoverer {
	if !cfg.Buda.Enabled {
		return nil
	}
	budaClient := buda.NewClient(cfg.Buda.BaseURL, client, cfg.Buda.PageLimit)
	opts := []buda.RecovererOption{
		buda.WithPageInterval(cfg.Buda.PageInterval),
	}
	if cfg.Buda.MaxAge > 0 {
		opts = append(opts, buda.WithMaxAge(cfg.Buda.MaxAge))
	}
	return buda.NewRecoverer(budaClient, store.ForVenue("buda"), sink, m, log, opts...)
}

func backfillOptions(cfg *config.Config) []backfill.Option {
	var opts []backfill.Option
	if cfg.Backfill.RetryLimit > 0 {
		opts = append(opts, backfill.WithRetryLimit(uint64(cfg.Backfill.RetryLimit)))
	}
	if cfg.Backfill.BackoffInitial > 0 && cfg.Backfill.BackoffMax > 0 {
		opts = append(opts, backfill.WithBackoff(cfg.Backfill.BackoffInitial, cfg.Backfill.BackoffMax))
	}
	if cfg.Kraken.PageInterval > 0 {
		opts = append(opts, backfill.WithPageInterval(cfg.Kraken.PageInterval))
	}
	return opts
}

// ProvideHistoryRecoverer wires per-venue history recovery.
func ProvideHistoryRecoverer(
	cfg *config.Config,
	persistor repository.Persistor,
	sink repository.AlertSink,
	m repository.Metrics,
	client *xhttp.Client,
	log *applogger.Logger,
	budaRec *buda.Recoverer,
) *usecase.HistoryRecoverer {
	return usecase.NewHistoryRecoverer(
		persistor, sink, m, client, log,
		cfg.Kraken.RESTURL, budaRec,
		backfillOptions(cfg)...,
	)
}

// ProvideRecoveryQueue creates the redis-backed job queue consuming recovery
// requests.
func ProvideRecoveryQueue(
	cfg *config.Config,
	redisClient *redis.Client,
	rec *usecase.HistoryRecoverer,
	log *applogger.Logger,
) *pkgqueue.RedisQueue {
	job := usecase.NewRecoveryJob(rec, log)
	qc := &pkgqueue.QueueConfig{
		Workers:    cfg.Redis.Queue.Workers,
		QueueSize:  cfg.Redis.Queue.QueueSize,
		RetryLimit: cfg.Redis.Queue.RetryLimit,
		RetryDelay: cfg.Redis.Queue.RetryDelay,
	}
	var opts []pkgqueue.RedisQueueOption
	if cfg.Redis.Queue.KeyPrefix != "" {
		opts = append(opts, pkgqueue.WithKeyPrefix(cfg.Redis.Queue.KeyPrefix))
	}
	return pkgqueue.NewRedisConsumer(log, qc, redisClient, []pkgqueue.Job{job}, opts...)
}

// ProvideTradeProcessor creates the trade routing use case.
func ProvideTradeProcessor(
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.TradeProcessor {
	return usecase.NewTradeProcessor(pub, store, m, cfg.Backend.Type)
}

// ProvideLiveCollector creates the streaming pipeline.
func ProvideLiveCollector(
	dialer *kraken.Dialer,
	proc *usecase.TradeProcessor,
	primer *kraken.Primer,
	persistor repository.Persistor,
	cacheSvc cache.Service,
	sink repository.AlertSink,
	m repository.Metrics,
	log *applogger.Logger,
	markets []models.Symbol,
	cfg *config.Config,
) *usecase.LiveCollector {
	attempts := cfg.Kraken.AttemptLimit
	if attempts <= 0 {
		attempts = 3
	}
	return usecase.NewLiveCollector(dialer, proc, primer, persistor, cacheSvc, sink, m, log, markets, attempts)
}

// ProvideCandlesUseCase creates the query-side use case.
func ProvideCandlesUseCase(reader repository.CandleReader, cacheSvc cache.Service) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(reader, cacheSvc)
}

// ProvideHTTPHandler creates the API handler.
func ProvideHTTPHandler(log *applogger.Logger, candles *usecase.CandlesUseCase, ring *alerting.Ring) xhttp.Handler {
	return api.NewCandlesHandler(log, candles, ring)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.LiveCollector,
	proc *usecase.TradeProcessor,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	chClient *pkgch.Client,
	recoveryQueue *pkgqueue.RedisQueue,
	rec *usecase.HistoryRecoverer,
	handler xhttp.Handler,
	markets []models.Symbol,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	return server.New(cfg, log, collector, proc, consumer, kh, chClient, recoveryQueue, rec, handler, markets)
}

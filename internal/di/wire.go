//go:build wireinject
// +build wireinject

package di

import (
	"CryptoPull/pkg/config"
	"CryptoPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMarkets,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,
		ProvideCache,
		ProvideHTTPClient,

		// Repositories
		ProvideCandleStore,
		ProvidePersistor,
		ProvideCandleReader,
		ProvideTradeStorage,
		ProvideTradePublisher,

		// Alerting
		ProvideAlertRing,
		ProvideAlertSink,

		// Venue services
		ProvideKrakenDialer,
		ProvideKrakenPrimer,
		ProvideBudaRecoverer,

		// Use cases
		ProvideTradeProcessor,
		ProvideLiveCollector,
		ProvideKafkaTicksHandler,
		ProvideHistoryRecoverer,
		ProvideRecoveryQueue,
		ProvideCandlesUseCase,

		// HTTP
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"CryptoPull/internal/domain/models"
	"CryptoPull/internal/usecase"
	pkgch "CryptoPull/pkg/clickhouse"
	"CryptoPull/pkg/config"
	xhttp "CryptoPull/pkg/http"
	pkgkafka "CryptoPull/pkg/kafka"
	applogger "CryptoPull/pkg/logger"
	pkgqueue "CryptoPull/pkg/queue"
)

// App encapsulates the entire application lifecycle: live streaming, the
// recovery queue, the optional Kafka consumer and the HTTP API.
type App struct {
	cfg           *config.Config
	log           *applogger.Logger
	collector     *usecase.LiveCollector
	proc          *usecase.TradeProcessor
	consumer      *pkgkafka.Consumer
	kh            *usecase.KafkaTicksHandler
	chClient      *pkgch.Client
	recoveryQueue *pkgqueue.RedisQueue
	recoverer     *usecase.HistoryRecoverer
	httpHandler   xhttp.Handler
	httpServer    *xhttp.Server
	markets       []models.Symbol
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.LiveCollector,
	proc *usecase.TradeProcessor,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	chClient *pkgch.Client,
	recoveryQueue *pkgqueue.RedisQueue,
	recoverer *usecase.HistoryRecoverer,
	httpHandler xhttp.Handler,
	markets []models.Symbol,
) *App {
	return &App{
		cfg:           cfg,
		log:           log,
		collector:     collector,
		proc:          proc,
		consumer:      consumer,
		kh:            kh,
		chClient:      chClient,
		recoveryQueue: recoveryQueue,
		recoverer:     recoverer,
		httpHandler:   httpHandler,
		markets:       markets,
	}
}

// Run starts the application and blocks until interrupted. History recovery
// runs first so the streaming side hands off against a caught-up store.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	// Recovery before streaming: enqueue every market and let the queue
	// workers drain them. The streaming side starts regardless; a market
	// still recovering just means its gap closes a little later.
	if a.recoveryQueue != nil {
		if err := a.recoveryQueue.Start(); err != nil {
			a.log.Error("recovery queue start error", applogger.Error(err))
		} else {
			a.recoveryQueue.StartRetryProcessor()
			if err := a.recoverer.EnqueueAll(ctx, a.recoveryQueue, "kraken", a.markets); err != nil {
				a.log.Error("recovery enqueue error", applogger.Error(err))
			}
			if a.cfg.Buda.Enabled {
				if err := a.recoverer.EnqueueAll(ctx, a.recoveryQueue, "buda", a.markets); err != nil {
					a.log.Error("recovery enqueue error", applogger.Error(err))
				}
			}
		}
	}

	go func() {
		if err := a.collector.Run(ctx); err != nil {
			a.log.Error("live collector stopped", applogger.Error(err))
		}
	}()
	a.log.Info("live collector started", applogger.Strings("markets", a.cfg.Markets))

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.collector.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.recoveryQueue != nil {
		if err := a.recoveryQueue.Stop(shutdownCtx); err != nil {
			a.log.Warn("recovery queue stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.proc != nil {
		a.proc.Close()
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}

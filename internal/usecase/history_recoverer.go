package usecase

import (
	"context"
	"fmt"

	"CryptoPull/internal/backfill"
	"CryptoPull/internal/domain/models"
	drepo "CryptoPull/internal/domain/repository"
	"CryptoPull/internal/service/buda"
	"CryptoPull/internal/service/kraken"
	applogger "CryptoPull/pkg/logger"
	pkgqueue "CryptoPull/pkg/queue"
)

// RecoveryJobType tags history recovery messages on the redis queue.
const RecoveryJobType = "history.recover"

// RecoveryRequest is the queue payload asking for one market's history.
type RecoveryRequest struct {
	Venue  string `json:"venue"`
	Market string `json:"market"`
}

// HistoryRecoverer rebuilds hourly history per market. Kraken markets page
// the venue's OHLC endpoint; Buda markets rebuild candles from raw trades.
type HistoryRecoverer struct {
	persistor    drepo.Persistor
	alerts       drepo.AlertSink
	metrics      drepo.Metrics
	client       backfill.HTTPClient
	log          *applogger.Logger
	krakenURL    string
	budaRec      *buda.Recoverer
	backfillOpts []backfill.Option
}

// NewHistoryRecoverer wires recovery for both venues.
func NewHistoryRecoverer(
	persistor drepo.Persistor,
	alerts drepo.AlertSink,
	metrics drepo.Metrics,
	client backfill.HTTPClient,
	log *applogger.Logger,
	krakenURL string,
	budaRec *buda.Recoverer,
	backfillOpts ...backfill.Option,
) *HistoryRecoverer {
	return &HistoryRecoverer{
		persistor:    persistor,
		alerts:       alerts,
		metrics:      metrics,
		client:       client,
		log:          log,
		krakenURL:    krakenURL,
		budaRec:      budaRec,
		backfillOpts: backfillOpts,
	}
}

// Recover runs one market's recovery to completion. Safe to re-run: both
// venue paths resume from the persisted cursor.
func (r *HistoryRecoverer) Recover(ctx context.Context, venue string, market models.Symbol) error {
	switch venue {
	case "kraken":
		adapter, err := kraken.NewHistoryAdapter(r.krakenURL, market)
		if err != nil {
			return err
		}
		bf := backfill.New(adapter, r.persistor, r.alerts, r.metrics, r.client, r.log, r.backfillOpts...)
		return bf.Run(ctx)
	case "buda":
		if r.budaRec == nil {
			return fmt.Errorf("recover: buda venue not configured")
		}
		return r.budaRec.Run(ctx, market)
	default:
		return fmt.Errorf("recover: unknown venue %q", venue)
	}
}

// EnqueueAll publishes one recovery request per market for a venue.
func (r *HistoryRecoverer) EnqueueAll(ctx context.Context, q pkgqueue.QueueService, venue string, markets []models.Symbol) error {
	for _, m := range markets {
		req := RecoveryRequest{Venue: venue, Market: m.String()}
		if err := q.PublishMessage(ctx, RecoveryJobType, req); err != nil {
			return fmt.Errorf("enqueue %s/%s: %w", venue, m, err)
		}
	}
	return nil
}

// RecoveryJob adapts HistoryRecoverer to the queue's Job interface.
type RecoveryJob struct {
	rec *HistoryRecoverer
	log *applogger.Logger
}

func NewRecoveryJob(rec *HistoryRecoverer, log *applogger.Logger) *RecoveryJob {
	return &RecoveryJob{rec: rec, log: log}
}

func (j *RecoveryJob) Name() string { return "history_recovery" }
func (j *RecoveryJob) Type() string { return RecoveryJobType }

func (j *RecoveryJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := pkgqueue.ParsePayload[RecoveryRequest](payload)
	if err != nil {
		return fmt.Errorf("recovery payload: %w", err)
	}
	market, err := models.ParseSymbol(req.Market)
	if err != nil {
		return err
	}
	j.log.Info("history recovery starting",
		applogger.String("venue", req.Venue),
		applogger.String("market", req.Market))
	return j.rec.Recover(ctx, req.Venue, market)
}

var _ pkgqueue.Job = (*RecoveryJob)(nil)

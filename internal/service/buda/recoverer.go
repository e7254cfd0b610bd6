package buda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"CryptoPull/internal/candle"
	"CryptoPull/internal/domain/models"
	drepo "CryptoPull/internal/domain/repository"
	applogger "CryptoPull/pkg/logger"
	"CryptoPull/pkg/util"
)

const hourlyBucket = int64(3600)

// ErrStalled is returned when a page's pagination cursor fails to move
// backward, which would otherwise loop forever.
var ErrStalled = errors.New("buda: pagination made no progress")

// Recoverer rebuilds a market's hourly history from raw trades. Buda pages
// backwards in time, so each page is aggregated in isolation and merged into
// the running series; the merge keeps overlapping pages from double counting.
type Recoverer struct {
	client    *Client
	persistor drepo.Persistor
	alerts    drepo.AlertSink
	metrics   drepo.Metrics
	log       *applogger.Logger

	limiter *rate.Limiter
	maxAge  time.Duration
	now     func() time.Time
}

// RecovererOption configures a Recoverer.
type RecovererOption func(*Recoverer)

// WithPageInterval spaces consecutive page requests, protecting against the
// venue's request throttling.
func WithPageInterval(d time.Duration) RecovererOption {
	return func(r *Recoverer) {
		if d > 0 {
			r.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithMaxAge bounds how far back a from-scratch recovery walks.
func WithMaxAge(d time.Duration) RecovererOption {
	return func(r *Recoverer) { r.maxAge = d }
}

// WithClock overrides the wall clock. Intended for tests.
func WithClock(now func() time.Time) RecovererOption {
	return func(r *Recoverer) { r.now = now }
}

// NewRecoverer wires a trade-history recovery for Buda markets.
func NewRecoverer(
	client *Client,
	persistor drepo.Persistor,
	alerts drepo.AlertSink,
	metrics drepo.Metrics,
	log *applogger.Logger,
	opts ...RecovererOption,
) *Recoverer {
	r := &Recoverer{
		client:    client,
		persistor: persistor,
		alerts:    alerts,
		metrics:   metrics,
		log:       log,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		maxAge:    30 * 24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run recovers candles for one market from the last persisted bucket to now
// and appends them. Re-running after success appends nothing new.
func (r *Recoverer) Run(ctx context.Context, market models.Symbol) error {
	since, ok, err := r.persistor.LastTimestamp(ctx, market)
	if err != nil {
		r.alerts.Notify(drepo.SeverityCritical,
			fmt.Sprintf("buda %s: cannot read recovery cursor: %v", market, err))
		return fmt.Errorf("buda %s: read cursor: %w", market, err)
	}
	if !ok {
		since = r.now().Add(-r.maxAge).Unix()
	}

	acc := candle.NewTradeSeries(candle.WithFilterTimestamp(since))
	var cursorMS int64
	pages := 0

	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		page, err := r.client.Trades(ctx, market, cursorMS)
		if err != nil {
			r.alerts.Notify(drepo.SeverityCritical,
				fmt.Sprintf("buda %s: trade page fetch failed: %v", market, err))
			return err
		}
		pages++
		r.metrics.RecordBackfillPage("buda", len(page.Trades))

		if len(page.Trades) > 0 {
			chunk := candle.NewTradeSeries(candle.WithFilterTimestamp(since))
			if err := chunk.AppendRaw(page.Trades); err != nil {
				return fmt.Errorf("buda %s: %w", market, err)
			}
			if err := chunk.Resample(hourlyBucket); err != nil {
				return fmt.Errorf("buda %s: %w", market, err)
			}
			if err := acc.Merge(chunk); err != nil {
				return fmt.Errorf("buda %s: %w", market, err)
			}
		}

		if len(page.Trades) == 0 || page.LastTimestamp <= since*1000 {
			break
		}
		// the pagination cursor walks backwards; a venue that repeats or
		// advances it would spin here forever
		if cursorMS > 0 && page.LastTimestamp >= cursorMS {
			r.alerts.Notify(drepo.SeverityCritical,
				fmt.Sprintf("buda %s: pagination stalled at cursor %d", market, cursorMS))
			return fmt.Errorf("buda %s: %w", market, ErrStalled)
		}
		cursorMS = page.LastTimestamp
	}

	// the current hour's bucket is still mutable and must not be persisted
	candles := discardOpenBuckets(acc.Candles(), util.TopOfHour(r.now()))
	if len(candles) == 0 {
		r.log.Info("buda recovery found nothing new",
			applogger.String("market", market.String()),
			applogger.Int("pages", pages))
		return nil
	}

	if err := r.persistor.Append(ctx, market, candles); err != nil {
		r.alerts.Notify(drepo.SeverityCritical,
			fmt.Sprintf("buda %s: persisting recovered candles failed: %v", market, err))
		return fmt.Errorf("buda %s: append: %w", market, err)
	}
	r.metrics.RecordCandlesPersisted(market.String(), len(candles))
	r.log.Info("buda recovery complete",
		applogger.String("market", market.String()),
		applogger.Int("pages", pages),
		applogger.Int("candles", len(candles)))
	return nil
}

// discardOpenBuckets drops candles at or after the top of the current hour.
// Candles are ordered by bucket start, so this trims from the tail.
func discardOpenBuckets(candles []models.Candle, topOfHour int64) []models.Candle {
	n := len(candles)
	for n > 0 && candles[n-1].BucketStart >= topOfHour {
		n--
	}
	return candles[:n]
}

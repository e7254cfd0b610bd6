// Package backfill drives the forward-recover pagination loop that fills
// historical candle data up to the current hour. Progress lives only in the
// Persistor, so a crashed run resumes from the last durably persisted bucket.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"CryptoPull/internal/domain/models"
	drepo "CryptoPull/internal/domain/repository"
	xhttp "CryptoPull/pkg/http"
	applogger "CryptoPull/pkg/logger"
	"CryptoPull/pkg/util"
)

var (
	// ErrStalled is returned when a page yields zero net progress. This is a
	// logic or upstream data problem, not a transport failure, and is never
	// retried.
	ErrStalled = errors.New("backfill: page made no progress")
	// ErrRetriesExhausted is returned when a page could not be fetched within
	// the retry bound.
	ErrRetriesExhausted = errors.New("backfill: page retry limit exceeded")
)

// Page is one parsed history response: candles ordered by bucket start plus
// the venue-reported commit boundary. Buckets at or after the boundary may
// still change and must never be persisted as final.
type Page struct {
	Candles        []models.Candle
	CommitBoundary int64
}

// VenueAdapter supplies the venue-specific request and response handling for
// one market's history feed.
type VenueAdapter interface {
	Venue() string
	Market() models.Symbol
	// BuildRequest returns the request for the page after cursor. When
	// haveCursor is false the adapter picks its own starting point.
	BuildRequest(cursor int64, haveCursor bool) *xhttp.RequestOptions
	ParsePage(body []byte) (Page, error)
}

// HTTPClient executes page requests. *pkg/http.Client satisfies it.
type HTTPClient interface {
	SendAndParse(ctx context.Context, opts *xhttp.RequestOptions, dest interface{}) error
}

// Backfiller runs the recover loop for a single market. Instances hold no
// shared state and must not be run concurrently for the same market.
type Backfiller struct {
	adapter   VenueAdapter
	persistor drepo.Persistor
	alerts    drepo.AlertSink
	metrics   drepo.Metrics
	client    HTTPClient
	log       *applogger.Logger

	retryLimit     uint64
	backoffInitial time.Duration
	backoffMax     time.Duration
	limiter        *rate.Limiter
	now            func() time.Time
}

// Option configures a Backfiller.
type Option func(*Backfiller)

// WithRetryLimit bounds retries per page before escalating to critical.
func WithRetryLimit(n uint64) Option {
	return func(b *Backfiller) { b.retryLimit = n }
}

// WithBackoff sets the initial and max retry backoff intervals.
func WithBackoff(initial, max time.Duration) Option {
	return func(b *Backfiller) {
		b.backoffInitial = initial
		b.backoffMax = max
	}
}

// WithPageInterval paces successive page requests, venues throttle aggressive
// history crawls.
func WithPageInterval(d time.Duration) Option {
	return func(b *Backfiller) {
		if d > 0 {
			b.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithClock overrides the wall clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Backfiller) { b.now = now }
}

// New creates a Backfiller for the adapter's market.
func New(
	adapter VenueAdapter,
	persistor drepo.Persistor,
	alerts drepo.AlertSink,
	metrics drepo.Metrics,
	client HTTPClient,
	log *applogger.Logger,
	opts ...Option,
) *Backfiller {
	b := &Backfiller{
		adapter:        adapter,
		persistor:      persistor,
		alerts:         alerts,
		metrics:        metrics,
		client:         client,
		log:            log,
		retryLimit:     5,
		backoffInitial: time.Second,
		backoffMax:     5 * time.Minute,
		limiter:        rate.NewLimiter(rate.Inf, 1),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run executes the recover loop until the cursor reaches the current top of
// hour. Re-running with the same persisted cursor against unchanged upstream
// data is a no-op, which is what makes the process restartable after a crash.
func (b *Backfiller) Run(ctx context.Context) error {
	venue := b.adapter.Venue()
	market := b.adapter.Market()

	cursor, haveCursor, err := b.persistor.LastTimestamp(ctx, market)
	if err != nil {
		b.alerts.Notify(drepo.SeverityCritical,
			fmt.Sprintf("%s/%s: could not read backfill cursor: %v", venue, market, err))
		return fmt.Errorf("read cursor: %w", err)
	}

	for !(haveCursor && cursor >= util.TopOfHour(b.now())) {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}

		page, err := b.fetchPage(ctx, cursor, haveCursor)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			b.metrics.RecordError("backfill_page")
			b.alerts.Notify(drepo.SeverityCritical,
				fmt.Sprintf("%s/%s: history page failed after %d retries: %v", venue, market, b.retryLimit, err))
			return fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
		}

		candles := page.Candles
		// never persist the still-open, mutable bucket
		if n := len(candles); n > 0 && candles[n-1].BucketStart >= page.CommitBoundary {
			candles = candles[:n-1]
		}
		// never move the cursor backward or re-persist known buckets
		if haveCursor {
			candles = dropThrough(candles, cursor)
		}

		if len(candles) == 0 {
			b.alerts.Notify(drepo.SeverityCritical,
				fmt.Sprintf("%s/%s: backfill stalled at cursor %d", venue, market, cursor))
			return ErrStalled
		}

		if err := b.persistor.Append(ctx, market, candles); err != nil {
			b.alerts.Notify(drepo.SeverityCritical,
				fmt.Sprintf("%s/%s: persist failed: %v", venue, market, err))
			return fmt.Errorf("append candles: %w", err)
		}

		for _, c := range candles {
			if c.BucketStart > cursor || !haveCursor {
				cursor = c.BucketStart
			}
		}
		haveCursor = true

		b.metrics.RecordBackfillPage(venue, len(candles))
		b.metrics.RecordCandlesPersisted(market.String(), len(candles))
		b.log.Info("backfill page persisted",
			applogger.String("venue", venue),
			applogger.String("market", market.String()),
			applogger.Int("candles", len(candles)),
			applogger.Int64("cursor", cursor))
	}

	b.log.Info("backfill caught up",
		applogger.String("venue", venue),
		applogger.String("market", market.String()),
		applogger.Int64("cursor", cursor))
	return nil
}

// fetchPage fetches and parses one page, retrying transport and decode
// failures with exponential backoff up to the configured bound.
func (b *Backfiller) fetchPage(ctx context.Context, cursor int64, haveCursor bool) (Page, error) {
	var page Page

	op := func() error {
		opts := b.adapter.BuildRequest(cursor, haveCursor)
		var body []byte
		if err := b.client.SendAndParse(ctx, opts, &body); err != nil {
			return fmt.Errorf("fetch page: %w", err)
		}
		p, err := b.adapter.ParsePage(body)
		if err != nil {
			return fmt.Errorf("parse page: %w", err)
		}
		page = p
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.backoffInitial
	bo.MaxInterval = b.backoffMax
	bo.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		b.alerts.Notify(drepo.SeverityWarning,
			fmt.Sprintf("%s/%s: history page failed, retrying in %s: %v",
				b.adapter.Venue(), b.adapter.Market(), wait, err))
	}

	err := backoff.RetryNotify(op, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), b.retryLimit), notify)
	return page, err
}

// dropThrough removes candles with bucket start at or below the cursor.
func dropThrough(candles []models.Candle, cursor int64) []models.Candle {
	out := candles[:0:0]
	for _, c := range candles {
		if c.BucketStart > cursor {
			out = append(out, c)
		}
	}
	return out
}

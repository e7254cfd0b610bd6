package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CryptoPull/internal/domain/models"
	drepo "CryptoPull/internal/domain/repository"
	"CryptoPull/internal/stream"
	"CryptoPull/pkg/cache"
	applogger "CryptoPull/pkg/logger"
)

const liveCandleKeyPrefix = "candle:live"

// LiveCandleKey is the cache key holding a market's in-progress hourly candle.
func LiveCandleKey(symbol models.Symbol) string {
	return cache.GenerateKey(liveCandleKeyPrefix, symbol.String())
}

// Primer fetches the venue's view of the current in-progress candle, so the
// open price predates our subscription instead of starting at the first
// streamed trade.
type Primer interface {
	CurrentCandle(ctx context.Context, market models.Symbol) (models.Candle, error)
}

// LiveCollector runs the streaming side: it primes per-market candle state,
// supervises the venue subscription, routes every trade to the processor and
// folds it into the current hourly candle. Completed candles are appended to
// the persistor on rollover.
type LiveCollector struct {
	dialer    stream.Dialer
	proc      *TradeProcessor
	primer    Primer
	persistor drepo.Persistor
	cache     cache.Service
	alerts    drepo.AlertSink
	metrics   drepo.Metrics
	log       *applogger.Logger

	symbols      []models.Symbol
	attemptLimit int
	bucketSize   int64

	mu   sync.Mutex
	live map[models.Symbol]models.Candle
	has  map[models.Symbol]bool
	sup  *stream.Supervisor
}

// NewLiveCollector wires the streaming pipeline for a set of markets.
func NewLiveCollector(
	dialer stream.Dialer,
	proc *TradeProcessor,
	primer Primer,
	persistor drepo.Persistor,
	cacheSvc cache.Service,
	alerts drepo.AlertSink,
	metrics drepo.Metrics,
	log *applogger.Logger,
	symbols []models.Symbol,
	attemptLimit int,
) *LiveCollector {
	return &LiveCollector{
		dialer:       dialer,
		proc:         proc,
		primer:       primer,
		persistor:    persistor,
		cache:        cacheSvc,
		alerts:       alerts,
		metrics:      metrics,
		log:          log,
		symbols:      symbols,
		attemptLimit: attemptLimit,
		bucketSize:   3600,
		live:         make(map[models.Symbol]models.Candle),
		has:          make(map[models.Symbol]bool),
	}
}

// Run primes candle state and blocks streaming until shutdown or retry
// exhaustion. The supervisor underneath is single-use, so each Run builds a
// fresh one; Run itself may be called again after it returns.
func (c *LiveCollector) Run(ctx context.Context) error {
	if err := c.prime(ctx); err != nil {
		return err
	}

	sup := stream.NewSupervisor(c.dialer, c.alerts, c.metrics, c.log,
		stream.WithAttemptLimit(c.attemptLimit))
	c.mu.Lock()
	c.sup = sup
	c.mu.Unlock()

	return sup.Run(c.symbols, func(t *models.Trade) {
		if err := c.proc.Process(ctx, t); err != nil {
			c.log.Error("trade processing failed",
				applogger.String("symbol", t.Symbol.String()),
				applogger.Error(err))
		}
		c.applyTrade(ctx, t)
	})
}

// Stop requests cooperative shutdown of the running subscription.
func (c *LiveCollector) Stop() {
	c.mu.Lock()
	sup := c.sup
	c.mu.Unlock()
	if sup != nil {
		sup.RequestShutdown()
	}
}

// State reports the subscription state for health reporting.
func (c *LiveCollector) State() stream.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sup == nil {
		return stream.Disconnected
	}
	return c.sup.State()
}

// prime seeds every market's candle from the venue's current hourly view.
// Missing history is fatal: streaming without the seed would fabricate open
// prices from the first trade we happen to see.
func (c *LiveCollector) prime(ctx context.Context) error {
	for _, sym := range c.symbols {
		seed, err := c.primer.CurrentCandle(ctx, sym)
		if err != nil {
			c.alerts.Notify(drepo.SeverityCritical,
				fmt.Sprintf("live %s: open price priming failed: %v", sym, err))
			return fmt.Errorf("prime %s: %w", sym, err)
		}
		c.mu.Lock()
		c.live[sym] = seed
		c.has[sym] = true
		c.mu.Unlock()
		c.mirror(ctx, sym, seed)
	}
	return nil
}

// applyTrade folds a trade into the market's current candle. A trade landing
// in a newer bucket first flushes the finished candle to the persistor.
func (c *LiveCollector) applyTrade(ctx context.Context, t *models.Trade) {
	bucket := models.BucketStartFor(t.Timestamp, c.bucketSize)

	c.mu.Lock()
	cur, ok := c.live[t.Symbol]
	if c.has[t.Symbol] && ok && cur.BucketStart == bucket {
		if t.Price > cur.High {
			cur.High = t.Price
		}
		if t.Price < cur.Low {
			cur.Low = t.Price
		}
		cur.Close = t.Price
		cur.Volume += t.Amount
		c.live[t.Symbol] = cur
		c.mu.Unlock()
		c.mirror(ctx, t.Symbol, cur)
		return
	}

	// late trade for an already-finished bucket: the candle was (or will be)
	// persisted by backfill, folding it in would rewind the live candle
	if c.has[t.Symbol] && ok && cur.BucketStart > bucket {
		c.mu.Unlock()
		c.log.Warn("stale trade dropped",
			applogger.String("symbol", t.Symbol.String()),
			applogger.Int64("bucket", bucket),
			applogger.Int64("current", cur.BucketStart))
		return
	}

	var finished *models.Candle
	if c.has[t.Symbol] && ok && cur.BucketStart < bucket {
		done := cur
		finished = &done
	}
	cur = models.Candle{
		BucketStart: bucket,
		Open:        t.Price,
		High:        t.Price,
		Low:         t.Price,
		Close:       t.Price,
		Volume:      t.Amount,
	}
	c.live[t.Symbol] = cur
	c.has[t.Symbol] = true
	c.mu.Unlock()

	if finished != nil {
		if err := c.persistor.Append(ctx, t.Symbol, []models.Candle{*finished}); err != nil {
			c.metrics.RecordError("live_rollover")
			c.alerts.Notify(drepo.SeverityCritical,
				fmt.Sprintf("live %s: persisting finished candle failed: %v", t.Symbol, err))
		} else {
			c.metrics.RecordCandlesPersisted(t.Symbol.String(), 1)
		}
	}
	c.mirror(ctx, t.Symbol, cur)
}

func (c *LiveCollector) mirror(ctx context.Context, sym models.Symbol, candle models.Candle) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, LiveCandleKey(sym), candle, 2*time.Hour); err != nil {
		c.log.Debug("live candle cache update failed",
			applogger.String("symbol", sym.String()),
			applogger.Error(err))
	}
}

// LiveCandle returns the in-progress candle for a market, if one is tracked.
func (c *LiveCollector) LiveCandle(symbol models.Symbol) (models.Candle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	candle, ok := c.live[symbol]
	return candle, ok && c.has[symbol]
}

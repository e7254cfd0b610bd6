package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoPull/internal/domain/models"
	drepo "CryptoPull/internal/domain/repository"
	"CryptoPull/pkg/cache"
	applogger "CryptoPull/pkg/logger"
)

type fakePersistor struct {
	appends map[models.Symbol][]models.Candle
}

func (f *fakePersistor) LastTimestamp(context.Context, models.Symbol) (int64, bool, error) {
	return 0, false, nil
}

func (f *fakePersistor) Append(_ context.Context, market models.Symbol, candles []models.Candle) error {
	if f.appends == nil {
		f.appends = make(map[models.Symbol][]models.Candle)
	}
	f.appends[market] = append(f.appends[market], candles...)
	return nil
}

type fakeSink struct {
	warnings  []string
	criticals []string
}

func (f *fakeSink) Notify(severity drepo.Severity, message string) {
	if severity == drepo.SeverityCritical {
		f.criticals = append(f.criticals, message)
	} else {
		f.warnings = append(f.warnings, message)
	}
}

type fakeMetrics struct{}

func (fakeMetrics) RecordTradeReceived(string)         {}
func (fakeMetrics) RecordReconnect(string)             {}
func (fakeMetrics) RecordBackfillPage(string, int)     {}
func (fakeMetrics) RecordCandlesPersisted(string, int) {}
func (fakeMetrics) RecordError(string)                 {}
func (fakeMetrics) RecordLastPrice(string, float64)    {}
func (fakeMetrics) RecordLatency(string, float64)      {}

type fakePrimer struct {
	candles map[models.Symbol]models.Candle
	err     error
}

func (f *fakePrimer) CurrentCandle(_ context.Context, market models.Symbol) (models.Candle, error) {
	if f.err != nil {
		return models.Candle{}, f.err
	}
	return f.candles[market], nil
}

type nopStorage struct{}

func (nopStorage) Store(context.Context, *models.Trade) error { return nil }
func (nopStorage) Health(context.Context) error               { return nil }
func (nopStorage) Close() error                               { return nil }

func newTestCollector(primer Primer, persistor drepo.Persistor, sink drepo.AlertSink, cacheSvc cache.Service) *LiveCollector {
	proc := NewTradeProcessor(nil, nopStorage{}, fakeMetrics{}, "clickhouse")
	return NewLiveCollector(nil, proc, primer, persistor, cacheSvc, sink, fakeMetrics{}, applogger.Nop(),
		[]models.Symbol{models.BTC}, 3)
}

func TestApplyTradeUpdatesCurrentCandle(t *testing.T) {
	persistor := &fakePersistor{}
	c := newTestCollector(&fakePrimer{}, persistor, &fakeSink{}, nil)

	c.applyTrade(context.Background(), &models.Trade{Symbol: models.BTC, Timestamp: 7200, Price: 100, Amount: 1})
	c.applyTrade(context.Background(), &models.Trade{Symbol: models.BTC, Timestamp: 7300, Price: 90, Amount: 2})
	c.applyTrade(context.Background(), &models.Trade{Symbol: models.BTC, Timestamp: 7400, Price: 95, Amount: 1})

	candle, ok := c.LiveCandle(models.BTC)
	require.True(t, ok)
	assert.Equal(t, models.Candle{BucketStart: 7200, Open: 100, High: 100, Low: 90, Close: 95, Volume: 4}, candle)
	assert.Empty(t, persistor.appends, "no rollover yet")
}

func TestApplyTradeRolloverPersistsFinishedCandle(t *testing.T) {
	persistor := &fakePersistor{}
	c := newTestCollector(&fakePrimer{}, persistor, &fakeSink{}, nil)

	c.applyTrade(context.Background(), &models.Trade{Symbol: models.BTC, Timestamp: 7200, Price: 100, Amount: 1})
	c.applyTrade(context.Background(), &models.Trade{Symbol: models.BTC, Timestamp: 10800, Price: 110, Amount: 2})

	require.Len(t, persistor.appends[models.BTC], 1)
	assert.Equal(t, int64(7200), persistor.appends[models.BTC][0].BucketStart)
	assert.Equal(t, 100.0, persistor.appends[models.BTC][0].Close)

	candle, ok := c.LiveCandle(models.BTC)
	require.True(t, ok)
	assert.Equal(t, int64(10800), candle.BucketStart)
	assert.Equal(t, 110.0, candle.Open)
}

func TestPrimeSeedsOpenPrice(t *testing.T) {
	seed := models.Candle{BucketStart: 7200, Open: 98, High: 101, Low: 97, Close: 99, Volume: 5}
	c := newTestCollector(&fakePrimer{candles: map[models.Symbol]models.Candle{models.BTC: seed}},
		&fakePersistor{}, &fakeSink{}, nil)

	require.NoError(t, c.prime(context.Background()))

	candle, ok := c.LiveCandle(models.BTC)
	require.True(t, ok)
	assert.Equal(t, seed, candle)

	// a trade in the same bucket extends the seeded candle
	c.applyTrade(context.Background(), &models.Trade{Symbol: models.BTC, Timestamp: 7260, Price: 102, Amount: 1})
	candle, _ = c.LiveCandle(models.BTC)
	assert.Equal(t, 98.0, candle.Open, "open survives from the seed")
	assert.Equal(t, 102.0, candle.High)
	assert.Equal(t, 6.0, candle.Volume)
}

func TestPrimeFailureIsFatal(t *testing.T) {
	sink := &fakeSink{}
	c := newTestCollector(&fakePrimer{err: assert.AnError}, &fakePersistor{}, sink, nil)

	err := c.Run(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	require.Len(t, sink.criticals, 1)
	_, ok := c.LiveCandle(models.BTC)
	assert.False(t, ok)
}

func TestApplyTradeIgnoresStaleBucket(t *testing.T) {
	persistor := &fakePersistor{}
	c := newTestCollector(&fakePrimer{}, persistor, &fakeSink{}, nil)

	c.applyTrade(context.Background(), &models.Trade{Symbol: models.BTC, Timestamp: 10800, Price: 110, Amount: 2})
	// delivered late, belongs to the previous hour
	c.applyTrade(context.Background(), &models.Trade{Symbol: models.BTC, Timestamp: 7300, Price: 50, Amount: 1})

	candle, ok := c.LiveCandle(models.BTC)
	require.True(t, ok)
	assert.Equal(t, int64(10800), candle.BucketStart, "live candle must not rewind")
	assert.Equal(t, 110.0, candle.Open)
	assert.Empty(t, persistor.appends, "stale trade persists nothing")
}

func TestApplyTradeMirrorsToCache(t *testing.T) {
	mem := cache.NewMemoryCache()
	c := newTestCollector(&fakePrimer{}, &fakePersistor{}, &fakeSink{}, mem)

	c.applyTrade(context.Background(), &models.Trade{Symbol: models.BTC, Timestamp: 7200, Price: 100, Amount: 1})

	var cached models.Candle
	require.NoError(t, mem.Get(context.Background(), LiveCandleKey(models.BTC), &cached))
	assert.Equal(t, int64(7200), cached.BucketStart)
	assert.Equal(t, 100.0, cached.Close)
}

// Package candle converts raw trades into time-bucketed OHLCV candles and
// merges independently aggregated runs without double counting.
package candle

import (
	"errors"
	"sort"

	"CryptoPull/internal/domain/models"
)

var (
	// ErrAggregated is returned when raw trades are appended to, or a second
	// resample is requested on, a series that is already aggregated.
	ErrAggregated = errors.New("candle: series is already aggregated")
	// ErrNotAggregated is returned when a merge source has not been resampled.
	ErrNotAggregated = errors.New("candle: series must be aggregated before merge")
	// ErrBucketMismatch is returned when merging series with different bucket sizes.
	ErrBucketMismatch = errors.New("candle: bucket sizes differ")
)

// TradeSeries holds either raw trades or an aggregated OHLCV view, never both.
// A series starts in raw mode; Resample switches it permanently to aggregated
// mode. The per-bucket trade contributions are retained after aggregation so
// that Merge can re-derive overlapping buckets from the union of trades
// instead of summing per-series stats.
//
// TradeSeries is not safe for concurrent use; each market's series is owned by
// a single goroutine.
type TradeSeries struct {
	filterTS   int64
	hasFilter  bool
	aggregated bool
	bucketSize int64

	trades  []models.Trade            // raw mode backing store, arrival order
	buckets map[int64][]models.Trade  // aggregated mode: contributions per bucket
	candles []models.Candle           // aggregated mode: derived view, ordered
}

// SeriesOption configures a TradeSeries.
type SeriesOption func(*TradeSeries)

// WithFilterTimestamp drops raw trades at or below ts before aggregation.
// Used to avoid reprocessing already-persisted trades on resume.
func WithFilterTimestamp(ts int64) SeriesOption {
	return func(s *TradeSeries) {
		s.filterTS = ts
		s.hasFilter = true
	}
}

// NewTradeSeries creates an empty series in raw mode.
func NewTradeSeries(opts ...SeriesOption) *TradeSeries {
	s := &TradeSeries{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Aggregated reports whether the series has been resampled.
func (s *TradeSeries) Aggregated() bool { return s.aggregated }

// BucketSize returns the bucket width in seconds, 0 while still raw.
func (s *TradeSeries) BucketSize() int64 { return s.bucketSize }

// Len returns the number of raw trades, or candles once aggregated.
func (s *TradeSeries) Len() int {
	if s.aggregated {
		return len(s.candles)
	}
	return len(s.trades)
}

// Candles returns a copy of the aggregated view. Empty while still raw.
func (s *TradeSeries) Candles() []models.Candle {
	out := make([]models.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// AppendRaw appends trades to the raw buffer, preserving arrival order.
// Fails once the series has been aggregated.
func (s *TradeSeries) AppendRaw(trades []models.Trade) error {
	if s.aggregated {
		return ErrAggregated
	}
	s.trades = append(s.trades, trades...)
	return nil
}

// Resample groups the raw buffer into bucketSize-wide OHLCV candles and
// permanently switches the series to aggregated mode. Buckets with no trades
// carry the previous close forward with zero volume.
func (s *TradeSeries) Resample(bucketSize int64) error {
	if s.aggregated {
		return ErrAggregated
	}
	if bucketSize <= 0 {
		return errors.New("candle: bucket size must be positive")
	}

	s.bucketSize = bucketSize
	s.buckets = make(map[int64][]models.Trade)
	for _, t := range s.trades {
		if s.hasFilter && t.Timestamp <= s.filterTS {
			continue
		}
		key := models.BucketStartFor(t.Timestamp, bucketSize)
		s.buckets[key] = append(s.buckets[key], t)
	}
	s.trades = nil
	s.aggregated = true
	s.rebuild()
	return nil
}

// Merge folds other's aggregated buckets into s. Other must already be
// aggregated; s is resampled first if still raw. Overlapping buckets are
// re-derived from the union of contributing trades, so merge is idempotent
// and never double counts.
func (s *TradeSeries) Merge(other *TradeSeries) error {
	if other == nil || !other.aggregated {
		return ErrNotAggregated
	}
	if !s.aggregated {
		if err := s.Resample(other.bucketSize); err != nil {
			return err
		}
	}
	if s.bucketSize != other.bucketSize {
		return ErrBucketMismatch
	}

	for key, theirs := range other.buckets {
		mine, ok := s.buckets[key]
		if !ok {
			s.buckets[key] = append([]models.Trade(nil), theirs...)
			continue
		}
		s.buckets[key] = unionTrades(mine, theirs)
	}
	s.rebuild()
	return nil
}

// unionTrades combines two contribution sets of one bucket. Trades present in
// both sets count once; genuine duplicates within a single set are preserved
// (multiset semantics).
func unionTrades(mine, theirs []models.Trade) []models.Trade {
	seen := make(map[models.Trade]int, len(mine))
	for _, t := range mine {
		seen[t]++
	}
	out := append([]models.Trade(nil), mine...)
	for _, t := range theirs {
		if seen[t] > 0 {
			seen[t]--
			continue
		}
		out = append(out, t)
	}
	return out
}

// rebuild re-derives the ordered candle view from the bucket contributions,
// forward-filling empty buckets between the first and last occupied ones.
func (s *TradeSeries) rebuild() {
	if len(s.buckets) == 0 {
		s.candles = nil
		return
	}

	keys := make([]int64, 0, len(s.buckets))
	for k := range s.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	first, last := keys[0], keys[len(keys)-1]
	s.candles = s.candles[:0]
	var prevClose float64
	for bucket := first; bucket <= last; bucket += s.bucketSize {
		trades, ok := s.buckets[bucket]
		if !ok || len(trades) == 0 {
			// forward fill from the previous close
			s.candles = append(s.candles, models.Candle{
				BucketStart: bucket,
				Open:        prevClose,
				High:        prevClose,
				Low:         prevClose,
				Close:       prevClose,
				Volume:      0,
			})
			continue
		}
		c := aggregateBucket(bucket, trades)
		prevClose = c.Close
		s.candles = append(s.candles, c)
	}
}

// aggregateBucket derives one candle from its contributing trades:
// chronological first/last for open/close, max/min for high/low, summed volume.
func aggregateBucket(bucket int64, trades []models.Trade) models.Candle {
	ordered := append([]models.Trade(nil), trades...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	c := models.Candle{
		BucketStart: bucket,
		Open:        ordered[0].Price,
		High:        ordered[0].Price,
		Low:         ordered[0].Price,
		Close:       ordered[len(ordered)-1].Price,
	}
	for _, t := range ordered {
		if t.Price > c.High {
			c.High = t.Price
		}
		if t.Price < c.Low {
			c.Low = t.Price
		}
		c.Volume += t.Amount
	}
	return c
}

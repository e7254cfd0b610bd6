package candle

import (
	"errors"
	"testing"

	"CryptoPull/internal/domain/models"
)

const hour = int64(3600)

func trade(ts int64, price, amount float64, side models.Side) models.Trade {
	return models.Trade{Symbol: models.BTC, Timestamp: ts, Price: price, Amount: amount, Side: side}
}

func TestResampleSingleBucket(t *testing.T) {
	s := NewTradeSeries()
	err := s.AppendRaw([]models.Trade{
		trade(0, 100, 1, models.SideBuy),
		trade(1800, 105, 2, models.SideSell),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Resample(hour); err != nil {
		t.Fatalf("resample: %v", err)
	}

	candles := s.Candles()
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(candles))
	}
	c := candles[0]
	if c.BucketStart != 0 || c.Open != 100 || c.High != 105 || c.Low != 100 || c.Close != 105 || c.Volume != 3 {
		t.Fatalf("unexpected candle %+v", c)
	}
}

func TestResampleForwardFillsEmptyBuckets(t *testing.T) {
	s := NewTradeSeries()
	_ = s.AppendRaw([]models.Trade{
		trade(100, 50, 1, models.SideBuy),
		// nothing in bucket 3600
		trade(2*hour + 10, 60, 1, models.SideBuy),
	})
	if err := s.Resample(hour); err != nil {
		t.Fatalf("resample: %v", err)
	}

	candles := s.Candles()
	if len(candles) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(candles))
	}
	gap := candles[1]
	if gap.BucketStart != hour || gap.Open != 50 || gap.Close != 50 || gap.High != 50 || gap.Low != 50 || gap.Volume != 0 {
		t.Fatalf("unexpected filled candle %+v", gap)
	}
}

func TestResampleFilterTimestamp(t *testing.T) {
	s := NewTradeSeries(WithFilterTimestamp(1000))
	_ = s.AppendRaw([]models.Trade{
		trade(999, 10, 1, models.SideBuy),
		trade(1000, 20, 1, models.SideBuy), // at the filter: dropped too
		trade(1001, 30, 2, models.SideBuy),
	})
	if err := s.Resample(hour); err != nil {
		t.Fatalf("resample: %v", err)
	}

	candles := s.Candles()
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(candles))
	}
	if candles[0].Open != 30 || candles[0].Volume != 2 {
		t.Fatalf("filtered trades leaked into %+v", candles[0])
	}
}

func TestAppendAfterResampleFails(t *testing.T) {
	s := NewTradeSeries()
	_ = s.AppendRaw([]models.Trade{trade(0, 1, 1, models.SideBuy)})
	_ = s.Resample(hour)

	if err := s.AppendRaw([]models.Trade{trade(10, 1, 1, models.SideBuy)}); !errors.Is(err, ErrAggregated) {
		t.Fatalf("expected ErrAggregated, got %v", err)
	}
	if err := s.Resample(hour); !errors.Is(err, ErrAggregated) {
		t.Fatalf("expected ErrAggregated on second resample, got %v", err)
	}
}

func TestMergeRequiresAggregatedSource(t *testing.T) {
	s := NewTradeSeries()
	_ = s.AppendRaw([]models.Trade{trade(0, 1, 1, models.SideBuy)})

	other := NewTradeSeries()
	if err := s.Merge(other); !errors.Is(err, ErrNotAggregated) {
		t.Fatalf("expected ErrNotAggregated, got %v", err)
	}
}

func TestMergeWithEmptyIsIdentity(t *testing.T) {
	s := NewTradeSeries()
	_ = s.AppendRaw([]models.Trade{
		trade(0, 100, 1, models.SideBuy),
		trade(1800, 105, 2, models.SideSell),
		trade(hour + 5, 110, 1, models.SideBuy),
	})
	_ = s.Resample(hour)
	before := s.Candles()

	empty := NewTradeSeries()
	_ = empty.Resample(hour)
	if err := s.Merge(empty); err != nil {
		t.Fatalf("merge: %v", err)
	}

	after := s.Candles()
	if len(after) != len(before) {
		t.Fatalf("length changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("candle %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestMergeDisjointRanges(t *testing.T) {
	a := NewTradeSeries()
	_ = a.AppendRaw([]models.Trade{trade(10, 100, 1, models.SideBuy)})
	_ = a.Resample(hour)

	b := NewTradeSeries()
	_ = b.AppendRaw([]models.Trade{trade(hour + 10, 200, 2, models.SideSell)})
	_ = b.Resample(hour)

	if err := a.Merge(b); err != nil {
		t.Fatalf("merge: %v", err)
	}
	candles := a.Candles()
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[0].Open != 100 || candles[0].Volume != 1 {
		t.Fatalf("bucket 0 changed: %+v", candles[0])
	}
	if candles[1].Open != 200 || candles[1].Volume != 2 {
		t.Fatalf("bucket 1 changed: %+v", candles[1])
	}
}

func TestMergeOverlapDoesNotDoubleCount(t *testing.T) {
	shared := trade(100, 100, 1, models.SideBuy)

	a := NewTradeSeries()
	_ = a.AppendRaw([]models.Trade{shared, trade(200, 110, 2, models.SideSell)})
	_ = a.Resample(hour)

	b := NewTradeSeries()
	_ = b.AppendRaw([]models.Trade{shared, trade(300, 90, 4, models.SideBuy)})
	_ = b.Resample(hour)

	if err := a.Merge(b); err != nil {
		t.Fatalf("merge: %v", err)
	}
	candles := a.Candles()
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(candles))
	}
	c := candles[0]
	// shared trade counted once: 1 + 2 + 4
	if c.Volume != 7 {
		t.Fatalf("expected volume 7, got %v", c.Volume)
	}
	if c.Open != 100 || c.Close != 90 || c.High != 110 || c.Low != 90 {
		t.Fatalf("unexpected merged stats %+v", c)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	a := NewTradeSeries()
	_ = a.AppendRaw([]models.Trade{trade(100, 100, 1, models.SideBuy)})
	_ = a.Resample(hour)

	b := NewTradeSeries()
	_ = b.AppendRaw([]models.Trade{trade(200, 110, 2, models.SideSell)})
	_ = b.Resample(hour)

	_ = a.Merge(b)
	once := a.Candles()
	_ = a.Merge(b)
	twice := a.Candles()

	if len(once) != len(twice) {
		t.Fatalf("length changed on repeat merge")
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("candle %d changed on repeat merge: %+v -> %+v", i, once[i], twice[i])
		}
	}
}

func TestMergeAutoResamplesRawTarget(t *testing.T) {
	a := NewTradeSeries()
	_ = a.AppendRaw([]models.Trade{trade(100, 100, 1, models.SideBuy)})

	b := NewTradeSeries()
	_ = b.AppendRaw([]models.Trade{trade(hour + 100, 200, 2, models.SideSell)})
	_ = b.Resample(hour)

	if err := a.Merge(b); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !a.Aggregated() {
		t.Fatalf("target not aggregated after merge")
	}
	if got := len(a.Candles()); got != 2 {
		t.Fatalf("expected 2 candles, got %d", got)
	}
}

func TestMergeBucketMismatch(t *testing.T) {
	a := NewTradeSeries()
	_ = a.AppendRaw([]models.Trade{trade(100, 100, 1, models.SideBuy)})
	_ = a.Resample(hour)

	b := NewTradeSeries()
	_ = b.AppendRaw([]models.Trade{trade(100, 100, 1, models.SideBuy)})
	_ = b.Resample(60)

	if err := a.Merge(b); !errors.Is(err, ErrBucketMismatch) {
		t.Fatalf("expected ErrBucketMismatch, got %v", err)
	}
}

package models

// Candle is one OHLCV bucket. BucketStart is epoch seconds aligned to the
// bucket size; a candle is unique per (symbol, BucketStart).
type Candle struct {
	BucketStart int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// BucketStartFor aligns a trade timestamp to the start of its bucket.
func BucketStartFor(ts, bucketSize int64) int64 {
	return (ts / bucketSize) * bucketSize
}

package buda

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoPull/internal/domain/models"
	drepo "CryptoPull/internal/domain/repository"
	xhttp "CryptoPull/pkg/http"
	applogger "CryptoPull/pkg/logger"
)

type scriptedHTTP struct {
	bodies []string
	calls  int
	urls   []string
}

func (s *scriptedHTTP) SendAndParse(_ context.Context, opts *xhttp.RequestOptions, dest interface{}) error {
	if s.calls >= len(s.bodies) {
		return fmt.Errorf("unexpected request %d", s.calls)
	}
	body := s.bodies[s.calls]
	s.calls++
	s.urls = append(s.urls, opts.URL)
	return json.Unmarshal([]byte(body), dest)
}

func TestClientParsesTradesPage(t *testing.T) {
	body := `{"trades":{
		"market_id":"BTC-CLP",
		"last_timestamp":"1500000000000",
		"entries":[
			["1500007200000","0.5","7855000.0","sell"],
			["1500003600000","1.25","7850000.0","buy"]
		]}}`
	client := NewClient("https://example.test/markets/", &scriptedHTTP{bodies: []string{body}}, 0)

	page, err := client.Trades(context.Background(), models.BTC, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(1500000000000), page.LastTimestamp)
	require.Len(t, page.Trades, 2)
	assert.Equal(t, models.Trade{
		Symbol:    models.BTC,
		Timestamp: 1500007200,
		Price:     7855000.0,
		Amount:    0.5,
		Side:      models.SideSell,
	}, page.Trades[0])
}

func TestClientBuildsMarketURL(t *testing.T) {
	stub := &scriptedHTTP{bodies: []string{`{"trades":{"entries":[]}}`}}
	client := NewClient("https://example.test/markets/", stub, 0)

	_, err := client.Trades(context.Background(), models.ETH, 0)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/markets/eth-clp/trades", stub.urls[0])
}

type memPersistor struct {
	last    int64
	haveAny bool
	saved   []models.Candle
}

func (m *memPersistor) LastTimestamp(context.Context, models.Symbol) (int64, bool, error) {
	return m.last, m.haveAny, nil
}

func (m *memPersistor) Append(_ context.Context, _ models.Symbol, candles []models.Candle) error {
	m.saved = append(m.saved, candles...)
	return nil
}

type nopSink struct{}

func (nopSink) Notify(drepo.Severity, string) {}

type captureSink struct {
	sev []drepo.Severity
}

func (c *captureSink) Notify(severity drepo.Severity, _ string) {
	c.sev = append(c.sev, severity)
}

type nopMetrics struct{}

func (nopMetrics) RecordTradeReceived(string)         {}
func (nopMetrics) RecordReconnect(string)             {}
func (nopMetrics) RecordBackfillPage(string, int)     {}
func (nopMetrics) RecordCandlesPersisted(string, int) {}
func (nopMetrics) RecordError(string)                 {}
func (nopMetrics) RecordLastPrice(string, float64)    {}
func (nopMetrics) RecordLatency(string, float64)      {}

func tradesBody(lastMS int64, entries ...string) string {
	body := `{"trades":{"last_timestamp":"` + fmt.Sprint(lastMS) + `","entries":[`
	for i, e := range entries {
		if i > 0 {
			body += ","
		}
		body += e
	}
	return body + `]}}`
}

func TestRecovererAggregatesAcrossPages(t *testing.T) {
	// Two pages, newest first. The second page overlaps hour 7200000(ms)
	// boundary downward; the persisted cursor cuts everything at or before
	// t=3600.
	stub := &scriptedHTTP{bodies: []string{
		tradesBody(7200000,
			`["10800000","1.0","120.0","buy"]`,
			`["9000000","2.0","110.0","sell"]`),
		tradesBody(3600000,
			`["7200000","4.0","100.0","buy"]`),
	}}
	persistor := &memPersistor{last: 3600, haveAny: true}
	rec := NewRecoverer(
		NewClient("", stub, 0),
		persistor,
		nopSink{},
		nopMetrics{},
		applogger.Nop(),
	)

	err := rec.Run(context.Background(), models.BTC)
	require.NoError(t, err)

	// 9000s and 7200s land in bucket 7200; 10800s opens its own bucket.
	require.Len(t, persistor.saved, 2)
	assert.Equal(t, int64(7200), persistor.saved[0].BucketStart)
	assert.Equal(t, 6.0, persistor.saved[0].Volume, "overlapping page trades counted once each")
	assert.Equal(t, int64(10800), persistor.saved[1].BucketStart)
	assert.Equal(t, 120.0, persistor.saved[1].Close)
}

func TestRecovererNoNewTradesIsNoop(t *testing.T) {
	stub := &scriptedHTTP{bodies: []string{`{"trades":{"last_timestamp":"1000","entries":[]}}`}}
	persistor := &memPersistor{last: 7200, haveAny: true}
	rec := NewRecoverer(NewClient("", stub, 0), persistor, nopSink{}, nopMetrics{}, applogger.Nop())

	err := rec.Run(context.Background(), models.BTC)
	require.NoError(t, err)
	assert.Empty(t, persistor.saved)
	assert.Equal(t, 1, stub.calls)
}

func TestRecovererDiscardsOpenHourBucket(t *testing.T) {
	// Clock inside bucket 10800: that bucket is still open and must not be
	// persisted, only the finished bucket 7200.
	stub := &scriptedHTTP{bodies: []string{
		tradesBody(3600000,
			`["10900000","1.0","120.0","buy"]`,
			`["7300000","2.0","110.0","sell"]`),
	}}
	persistor := &memPersistor{last: 3600, haveAny: true}
	rec := NewRecoverer(
		NewClient("", stub, 0),
		persistor,
		nopSink{},
		nopMetrics{},
		applogger.Nop(),
		WithClock(func() time.Time { return time.Unix(12000, 0) }),
	)

	err := rec.Run(context.Background(), models.BTC)
	require.NoError(t, err)

	require.Len(t, persistor.saved, 1)
	assert.Equal(t, int64(7200), persistor.saved[0].BucketStart)
}

func TestRecovererHaltsWhenPaginationRepeats(t *testing.T) {
	// A venue that returns the same last_timestamp twice would otherwise
	// page forever.
	stub := &scriptedHTTP{bodies: []string{
		tradesBody(5000000, `["7200000","1.0","100.0","buy"]`),
		tradesBody(5000000, `["5500000","1.0","100.0","buy"]`),
	}}
	persistor := &memPersistor{last: 1, haveAny: true}
	sink := &captureSink{}
	rec := NewRecoverer(NewClient("", stub, 0), persistor, sink, nopMetrics{}, applogger.Nop())

	err := rec.Run(context.Background(), models.BTC)
	require.ErrorIs(t, err, ErrStalled)
	assert.Equal(t, 2, stub.calls)
	assert.Empty(t, persistor.saved)
	require.Len(t, sink.sev, 1)
	assert.Equal(t, drepo.SeverityCritical, sink.sev[0])
}

func TestRecovererStopsAtCursor(t *testing.T) {
	// last_timestamp at exactly the cursor boundary ends the walk without a
	// further request.
	stub := &scriptedHTTP{bodies: []string{
		tradesBody(3600000, `["7200000","1.0","100.0","buy"]`),
	}}
	persistor := &memPersistor{last: 3600, haveAny: true}
	rec := NewRecoverer(NewClient("", stub, 0), persistor, nopSink{}, nopMetrics{}, applogger.Nop())

	err := rec.Run(context.Background(), models.BTC)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
	require.Len(t, persistor.saved, 1)
	assert.Equal(t, int64(7200), persistor.saved[0].BucketStart)
}

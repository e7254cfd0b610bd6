package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoPull/internal/domain/models"
	drepo "CryptoPull/internal/domain/repository"
	"CryptoPull/internal/service/alerting"
	"CryptoPull/internal/usecase"
	"CryptoPull/pkg/cache"
	xhttp "CryptoPull/pkg/http"
	xlogger "CryptoPull/pkg/logger"
)

type stubReader struct {
	candles  []models.Candle
	gotVenue string
	gotSym   models.Symbol
	gotLim   int
}

func (s *stubReader) Candles(_ context.Context, venue string, market models.Symbol, _, _ time.Time, limit int) ([]models.Candle, error) {
	s.gotVenue = venue
	s.gotSym = market
	s.gotLim = limit
	return s.candles, nil
}

func newTestServer(t *testing.T, reader drepo.CandleReader, cacheSvc cache.Service, ring *alerting.Ring) *echo.Echo {
	t.Helper()
	if ring == nil {
		ring = alerting.NewRing(nil, 10)
	}
	h := NewCandlesHandler(xlogger.Nop(), usecase.NewCandlesUseCase(reader, cacheSvc), ring)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func TestCandlesEndpoint(t *testing.T) {
	reader := &stubReader{candles: []models.Candle{
		{BucketStart: 3600, Open: 100, High: 110, Low: 95, Close: 105, Volume: 2.5},
		{BucketStart: 7200, Open: 105, High: 105, Low: 105, Close: 105, Volume: 0},
	}}
	e := newTestServer(t, reader, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles?symbol=btc&limit=500", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status int                      `json:"status"`
		Data   usecase.GetCandlesResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusOK, body.Status)
	assert.Equal(t, models.BTC, body.Data.Symbol)
	assert.Equal(t, 2, body.Data.Count)
	assert.Equal(t, int64(3600), body.Data.Candles[0].BucketStart)

	assert.Equal(t, "kraken", reader.gotVenue, "venue defaults to kraken")
	assert.Equal(t, models.BTC, reader.gotSym)
	assert.Equal(t, 500, reader.gotLim)
}

func TestCandlesEndpointSelectsVenue(t *testing.T) {
	reader := &stubReader{}
	e := newTestServer(t, reader, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles?symbol=btc&venue=buda", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "buda", reader.gotVenue)
}

func TestCandlesEndpointRejectsUnknownSymbol(t *testing.T) {
	e := newTestServer(t, &stubReader{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles?symbol=doge", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body xhttp.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, body.Status)
}

func TestLiveCandleEndpoint(t *testing.T) {
	mem := cache.NewMemoryCache()
	seed := models.Candle{BucketStart: 7200, Open: 100, High: 104, Low: 99, Close: 103, Volume: 1.25}
	require.NoError(t, mem.Set(context.Background(), usecase.LiveCandleKey(models.ETH), seed, time.Hour))

	e := newTestServer(t, &stubReader{}, mem, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles/live?symbol=eth", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status int           `json:"status"`
		Data   models.Candle `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusOK, body.Status)
	assert.Equal(t, seed, body.Data)
}

func TestLiveCandleEndpointNotFound(t *testing.T) {
	e := newTestServer(t, &stubReader{}, cache.NewMemoryCache(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles/live?symbol=ltc", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body xhttp.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Status)
}

func TestRecentAlertsEndpoint(t *testing.T) {
	ring := alerting.NewRing(nil, 10)
	ring.Notify(drepo.SeverityWarning, "ohlc request failed")
	ring.Notify(drepo.SeverityCritical, "persist failed")

	e := newTestServer(t, &stubReader{}, nil, ring)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/recent?limit=1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status int              `json:"status"`
		Data   []alerting.Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, drepo.SeverityCritical, body.Data[0].Severity)
	assert.Equal(t, "persist failed", body.Data[0].Message)
}

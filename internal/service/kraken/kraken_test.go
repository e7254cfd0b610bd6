package kraken

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoPull/internal/domain/models"
	xhttp "CryptoPull/pkg/http"
)

func TestDecodeTradeFrameSingleExecution(t *testing.T) {
	raw := []byte(`[0,[["5541.20000","0.15850568","1534614057.321597","s","l",""]],"trade","XBT/USD"]`)

	trade, err := decodeTradeFrame(raw)
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, models.BTC, trade.Symbol)
	assert.Equal(t, int64(1534614057), trade.Timestamp)
	assert.Equal(t, 5541.2, trade.Price)
	assert.Equal(t, 0.15850568, trade.Amount)
	assert.Equal(t, models.SideSell, trade.Side)
}

func TestDecodeTradeFrameBatchSumsVolume(t *testing.T) {
	raw := []byte(`[0,[` +
		`["5541.20000","1.00000000","1534614057.321597","s","l",""],` +
		`["5541.30000","2.50000000","1534614057.754150","b","m",""]` +
		`],"trade","ETH/USD"]`)

	trade, err := decodeTradeFrame(raw)
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, models.ETH, trade.Symbol)
	assert.Equal(t, 5541.3, trade.Price, "price comes from the last execution")
	assert.Equal(t, 3.5, trade.Amount, "volume sums across the batch")
	assert.Equal(t, models.SideBuy, trade.Side)
}

func TestDecodeTradeFrameUnknownPair(t *testing.T) {
	raw := []byte(`[0,[["1.0","1.0","1534614057.0","b","l",""]],"trade","DOGE/USD"]`)

	_, err := decodeTradeFrame(raw)
	assert.Error(t, err)
}

func TestHistoryBuildRequest(t *testing.T) {
	adapter, err := NewHistoryAdapter("", models.BTC)
	require.NoError(t, err)

	opts := adapter.BuildRequest(1534610000, true)
	assert.Equal(t, DefaultRESTURL, opts.URL)
	assert.Equal(t, []string{"XBTUSD"}, opts.QueryParams["pair"])
	assert.Equal(t, []string{"60"}, opts.QueryParams["interval"])
	assert.Equal(t, []string{"1534610000"}, opts.QueryParams["since"])

	opts = adapter.BuildRequest(0, false)
	_, hasSince := opts.QueryParams["since"]
	assert.False(t, hasSince, "first page has no since parameter")
}

const sampleOHLC = `{
	"error": [],
	"result": {
		"XXBTZUSD": [
			[1534608000, "6300.0", "6350.5", "6290.1", "6340.2", "6320.0", "12.5", 420],
			[1534611600, "6340.2", "6360.0", "6330.0", "6355.0", "6345.0", "8.25", 310]
		],
		"last": 1534611600
	}
}`

func TestHistoryParsePage(t *testing.T) {
	adapter, err := NewHistoryAdapter("", models.BTC)
	require.NoError(t, err)

	page, err := adapter.ParsePage([]byte(sampleOHLC))
	require.NoError(t, err)

	assert.Equal(t, int64(1534611600), page.CommitBoundary)
	require.Len(t, page.Candles, 2)
	assert.Equal(t, models.Candle{
		BucketStart: 1534608000,
		Open:        6300.0,
		High:        6350.5,
		Low:         6290.1,
		Close:       6340.2,
		Volume:      12.5,
	}, page.Candles[0])
}

func TestHistoryParsePageAPIError(t *testing.T) {
	adapter, err := NewHistoryAdapter("", models.BTC)
	require.NoError(t, err)

	_, err = adapter.ParsePage([]byte(`{"error":["EGeneral:Too many requests"],"result":{}}`))
	assert.ErrorContains(t, err, "Too many requests")
}

func TestHistoryParsePageMissingKey(t *testing.T) {
	adapter, err := NewHistoryAdapter("", models.LTC)
	require.NoError(t, err)

	_, err = adapter.ParsePage([]byte(`{"error":[],"result":{"last":10}}`))
	assert.ErrorContains(t, err, "XLTCZUSD")
}

type stubHTTP struct {
	body string
}

func (s *stubHTTP) SendAndParse(_ context.Context, _ *xhttp.RequestOptions, dest interface{}) error {
	*dest.(*[]byte) = []byte(s.body)
	return nil
}

func TestPrimerReturnsNewestRow(t *testing.T) {
	primer := NewPrimer("", &stubHTTP{body: sampleOHLC})

	c, err := primer.CurrentCandle(context.Background(), models.BTC)
	require.NoError(t, err)
	assert.Equal(t, int64(1534611600), c.BucketStart)
	assert.Equal(t, 6355.0, c.Close)
}

package repository

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoPull/internal/domain/models"
)

func newMockStore(t *testing.T) (*ClickHouseCandleStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewClickHouseCandleStore(db, "cryptopull.candles_1h"), mock
}

func TestCursorIsScopedByVenue(t *testing.T) {
	store, mock := newMockStore(t)
	cursorQuery := regexp.QuoteMeta(
		"SELECT toUnixTimestamp(max(bucket_start)), count() FROM cryptopull.candles_1h WHERE venue = ? AND symbol = ?")

	// buda has caught up to the current hour; kraken has no history yet. The
	// kraken cursor must not see buda's buckets.
	mock.ExpectQuery(cursorQuery).
		WithArgs("buda", "btc").
		WillReturnRows(sqlmock.NewRows([]string{"ts", "count"}).AddRow(1788076800, 5))
	mock.ExpectQuery(cursorQuery).
		WithArgs("kraken", "btc").
		WillReturnRows(sqlmock.NewRows([]string{"ts", "count"}).AddRow(0, 0))

	budaTS, budaOK, err := store.ForVenue("buda").LastTimestamp(context.Background(), models.BTC)
	require.NoError(t, err)
	assert.True(t, budaOK)
	assert.Equal(t, int64(1788076800), budaTS)

	_, krakenOK, err := store.ForVenue("kraken").LastTimestamp(context.Background(), models.BTC)
	require.NoError(t, err)
	assert.False(t, krakenOK, "kraken cursor must be empty despite buda history for the same symbol")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendWritesVenueColumn(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO cryptopull.candles_1h (venue, symbol, bucket_start, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")).
		WithArgs("buda", "btc", time.Unix(7200, 0), 100.0, 110.0, 95.0, 105.0, 2.5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.ForVenue("buda").Append(context.Background(), models.BTC, []models.Candle{
		{BucketStart: 7200, Open: 100, High: 110, Low: 95, Close: 105, Volume: 2.5},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCandlesQueryFiltersByVenue(t *testing.T) {
	store, mock := newMockStore(t)
	from := time.Unix(0, 0)
	to := time.Unix(86400, 0)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE venue = ? AND symbol = ? AND bucket_start >= ? AND bucket_start <= ?")).
		WithArgs("kraken", "eth", from, to, 100).
		WillReturnRows(sqlmock.NewRows([]string{"ts", "open", "high", "low", "close", "volume"}).
			AddRow(3600, 100.0, 110.0, 95.0, 105.0, 2.5))

	candles, err := store.Candles(context.Background(), "kraken", models.ETH, from, to, 100)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, int64(3600), candles[0].BucketStart)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCandleSchemaKeysOnVenue(t *testing.T) {
	stmts := CandleSchema("cryptopull.candles_1h")
	require.Len(t, stmts, 1)
	assert.True(t, strings.Contains(stmts[0], "ORDER BY (venue, symbol, bucket_start)"),
		"candle table must key rows by venue before symbol")
}

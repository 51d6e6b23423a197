package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-scanner/internal/analysis"
	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "scanner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func testSeries() models.Series {
	return models.NewSeries("AAPL", "1d", []models.Candle{
		{Timestamp: day(2), Open: 10, High: 12, Low: 9, Close: 11, Volume: 1000},
		{Timestamp: day(3), Open: 11, High: 13, Low: 10, Close: 12, Volume: 900},
		{Timestamp: day(4), Open: 12, High: 14, Low: 11, Close: 13, Volume: 1100},
	})
}

func TestSQLiteStore_Candles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	series := testSeries()

	require.NoError(t, store.SaveCandles(ctx, "AAPL", "1d", series.Candles))

	got, err := store.GetCandles(ctx, "AAPL", "1d", day(1), day(31))
	require.NoError(t, err)
	assert.Equal(t, series.Candles, got)

	got, err = store.GetCandles(ctx, "AAPL", "1d", day(3), day(3))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 12.0, got[0].Close)

	got, err = store.GetCandles(ctx, "AAPL", "1h", day(1), day(31))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_NaNStoredAsNull(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	candle := models.Candle{Timestamp: day(2), Open: 10, High: math.NaN(), Low: 9, Close: 11, Volume: math.NaN()}
	require.NoError(t, store.SaveCandles(ctx, "MSFT", "1d", []models.Candle{candle}))

	got, err := store.GetCandles(ctx, "MSFT", "1d", day(1), day(3))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, math.IsNaN(got[0].High))
	assert.True(t, math.IsNaN(got[0].Volume))
	assert.Equal(t, 10.0, got[0].Open)
}

func TestSQLiteStore_Freshness(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	latest, err := store.GetCandlesFreshness(ctx, "AAPL", "1d")
	require.NoError(t, err)
	assert.True(t, latest.IsZero())

	require.NoError(t, store.SaveCandles(ctx, "AAPL", "1d", testSeries().Candles[:2]))
	latest, err = store.GetCandlesFreshness(ctx, "AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, day(3), latest)

	// Saving newer candles invalidates the cached value
	require.NoError(t, store.SaveCandles(ctx, "AAPL", "1d", testSeries().Candles[2:]))
	latest, err = store.GetCandlesFreshness(ctx, "AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, day(4), latest)
}

func TestSQLiteStore_SeriesCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := "AAPL_data_20240101_20240110_1d"

	_, ok, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	series := testSeries()
	series.Columns = models.ColumnsPrice
	require.NoError(t, store.Save(ctx, key, series))

	got, ok, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, "1d", got.Interval)
	assert.Equal(t, models.ColumnsPrice, got.Columns)
	assert.Equal(t, series.Candles, got.Candles)
}

func TestSQLiteStore_EmptySeriesCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	empty := models.NewSeries("X", "1d", nil)
	require.NoError(t, store.Save(ctx, "X_key", empty))

	got, ok, err := store.Load(ctx, "X_key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, got.Len())
}

func TestSQLiteStore_Scans(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	boring := 1
	report := analysis.NewReport(testSeries())
	report.Gaps = []models.Gap{{Start: 0, End: 2, Kind: models.Bullish, Lower: 12, Upper: 11.5}}
	report.BoringCandle = &boring

	older := &ScanRecord{Symbol: "AAPL", Interval: "1d", CreatedAt: time.Now().Add(-time.Hour).UTC(), Report: report}
	newer := &ScanRecord{Symbol: "AAPL", Interval: "1d", Duration: 1500 * time.Millisecond, Report: report}
	other := &ScanRecord{Symbol: "MSFT", Interval: "1d", Report: analysis.NewReport(models.NewSeries("MSFT", "1d", nil))}

	for _, scan := range []*ScanRecord{older, newer, other} {
		require.NoError(t, store.SaveScan(ctx, scan))
		assert.Len(t, scan.ID, 36)
	}

	scans, err := store.GetScans(ctx, ScanFilter{Symbol: "AAPL"})
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, newer.ID, scans[0].ID, "newest first")
	assert.Equal(t, 1500*time.Millisecond, scans[0].Duration)

	scans, err = store.GetScans(ctx, ScanFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, scans, 1)

	got, err := store.GetScanByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
	require.NotNil(t, got.Report)
	assert.Equal(t, report.Gaps, got.Report.Gaps)
	require.NotNil(t, got.Report.BoringCandle)
	assert.Equal(t, 1, *got.Report.BoringCandle)
	assert.Equal(t, 1, got.Counts()[analysis.PatternFairValueGap])

	_, err = store.GetScanByID(ctx, "nope")
	assert.True(t, errors.Is(err, errors.ErrDataNotFound))
}

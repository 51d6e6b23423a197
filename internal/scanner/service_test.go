package scanner

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-scanner/internal/analysis/patterns"
	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/marketdata"
	"pattern-scanner/internal/metrics"
	"pattern-scanner/internal/models"
	"pattern-scanner/internal/store"
)

// stubProvider serves fixed series per symbol and is safe for parallel use.
type stubProvider struct {
	mu     sync.Mutex
	series map[string]models.Series
	errs   map[string]error
	calls  []string
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) GetHistorical(ctx context.Context, req marketdata.HistoricalRequest) (models.Series, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req.Symbol)
	p.mu.Unlock()

	if err, ok := p.errs[req.Symbol]; ok {
		return models.Series{}, err
	}
	series, ok := p.series[req.Symbol]
	if !ok {
		return models.Series{}, errors.NewProviderError("stub", 404, "no data for "+req.Symbol, nil)
	}
	return series, nil
}

func bar(i int, o, h, l, c, v float64) models.Candle {
	return models.Candle{
		Timestamp: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
		Open:      o, High: h, Low: l, Close: c, Volume: v,
	}
}

// quietSeries has a boring candle at index 2.
func quietSeries(symbol string) models.Series {
	return models.NewSeries(symbol, "1d", []models.Candle{
		bar(0, 10, 12.5, 9.5, 12, 100),
		bar(1, 12, 12.5, 9.5, 10, 100),
		bar(2, 10, 11.1, 9.95, 11, 50),
		bar(3, 11, 13.5, 10.5, 13, 100),
		bar(4, 13, 15.5, 12.5, 15, 100),
		bar(5, 15, 17.5, 14.5, 17, 120),
	})
}

func newTestEngine(t *testing.T) *patterns.Engine {
	t.Helper()
	opts := patterns.DefaultOptions()
	opts.Window = 1
	engine, err := patterns.NewEngine(opts, zerolog.Nop())
	require.NoError(t, err)
	return engine
}

func request(symbol string) marketdata.HistoricalRequest {
	return marketdata.HistoricalRequest{
		Symbol:   symbol,
		Interval: "1d",
		From:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func metricValue(t *testing.T, r *metrics.Recorder, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	families, err := r.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	next:
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue(), true
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func TestService_ScanSymbol(t *testing.T) {
	provider := &stubProvider{series: map[string]models.Series{"AAPL": quietSeries("AAPL")}}
	svc := NewService(provider, newTestEngine(t), zerolog.Nop())

	report, err := svc.ScanSymbol(context.Background(), request("AAPL"))

	require.NoError(t, err)
	assert.Equal(t, "AAPL", report.Symbol)
	assert.Equal(t, 6, report.Candles)
	require.NotNil(t, report.BoringCandle)
	assert.Equal(t, 2, *report.BoringCandle)
	assert.True(t, report.Stats.HasMedianVolume)
	assert.Equal(t, 100.0, report.Stats.MedianVolume)
}

func TestService_ScanSymbol_FillsMissingSymbol(t *testing.T) {
	series := quietSeries("")
	provider := &stubProvider{series: map[string]models.Series{"MSFT": series}}
	svc := NewService(provider, newTestEngine(t), zerolog.Nop())

	report, err := svc.ScanSymbol(context.Background(), request("MSFT"))

	require.NoError(t, err)
	assert.Equal(t, "MSFT", report.Symbol)
}

func TestService_ScanSymbol_ProviderError(t *testing.T) {
	provider := &stubProvider{}
	rec := metrics.New()
	svc := NewService(provider, newTestEngine(t), zerolog.Nop(), WithMetrics(rec))

	report, err := svc.ScanSymbol(context.Background(), request("NOPE"))

	assert.Nil(t, report)
	assert.True(t, errors.Is(err, errors.ErrSymbolNotFound))

	v, ok := metricValue(t, rec, "scanner_scans_total", map[string]string{"status": metrics.StatusError})
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestService_ScanSymbol_MissingPriceColumn(t *testing.T) {
	series := quietSeries("AAPL")
	series.Columns = models.ColumnOpen | models.ColumnLow | models.ColumnClose | models.ColumnVolume
	provider := &stubProvider{series: map[string]models.Series{"AAPL": series}}
	svc := NewService(provider, newTestEngine(t), zerolog.Nop())

	_, err := svc.ScanSymbol(context.Background(), request("AAPL"))

	assert.True(t, errors.Is(err, errors.ErrMissingField))
}

func TestService_ScanSymbol_RecordsHistoryAndMetrics(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "scanner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rec := metrics.New()
	provider := &stubProvider{series: map[string]models.Series{"AAPL": quietSeries("AAPL")}}
	svc := NewService(provider, newTestEngine(t), zerolog.Nop(), WithHistory(st), WithMetrics(rec))

	report, err := svc.ScanSymbol(context.Background(), request("AAPL"))
	require.NoError(t, err)

	scans, err := st.GetScans(context.Background(), store.ScanFilter{Symbol: "AAPL"})
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, "1d", scans[0].Interval)
	require.NotNil(t, scans[0].Report)
	assert.Equal(t, report.BoringCandle, scans[0].Report.BoringCandle)

	v, ok := metricValue(t, rec, "scanner_scans_total", map[string]string{"status": metrics.StatusOK})
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, ok = metricValue(t, rec, "scanner_median_volume", map[string]string{"symbol": "AAPL"})
	require.True(t, ok)
	assert.Equal(t, 100.0, v)
}

func TestService_ScanAll(t *testing.T) {
	provider := &stubProvider{
		series: map[string]models.Series{
			"AAPL": quietSeries("AAPL"),
			"MSFT": quietSeries("MSFT"),
			"GOOG": quietSeries("GOOG"),
		},
		errs: map[string]error{
			"TSLA": errors.NewProviderError("stub", 429, "slow down", nil),
		},
	}
	svc := NewService(provider, newTestEngine(t), zerolog.Nop(), WithConcurrency(2))
	symbols := []string{"MSFT", "TSLA", "AAPL", "GOOG"}

	results := svc.ScanAll(context.Background(), symbols, "1d", time.Time{}, time.Time{})

	require.Len(t, results, len(symbols))
	for i, r := range results {
		assert.Equal(t, symbols[i], r.Symbol, "results keep input order")
	}
	assert.Len(t, provider.calls, 4)

	failed := Failed(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "TSLA", failed[0].Symbol)
	assert.True(t, errors.Is(failed[0].Err, errors.ErrRateLimited))
	assert.NotEmpty(t, failed[0].Error)

	err := JoinErrors(results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TSLA")

	for _, r := range results {
		if r.Symbol != "TSLA" {
			require.NotNil(t, r.Report, r.Symbol)
			assert.Equal(t, r.Symbol, r.Report.Symbol)
		}
	}

	SortBySymbol(results)
	assert.Equal(t, "AAPL", results[0].Symbol)
	assert.Equal(t, "TSLA", results[3].Symbol)
}

func TestService_ScanAll_CancelledContext(t *testing.T) {
	provider := &stubProvider{series: map[string]models.Series{"AAPL": quietSeries("AAPL")}}
	svc := NewService(provider, newTestEngine(t), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := svc.ScanAll(ctx, []string{"AAPL"}, "1d", time.Time{}, time.Time{})

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.Empty(t, provider.calls)
	assert.NoError(t, JoinErrors(nil))
}

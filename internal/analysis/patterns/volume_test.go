package patterns

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/models"
)

// quietSeries has median body 2 and median volume 100. Candle 2 is small,
// thin and quiet, and sits below the last candle's low.
func quietSeries() models.Series {
	return seriesOf(
		bar(0, 10, 12.5, 9.5, 12, 100),
		bar(1, 12, 12.5, 9.5, 10, 100),
		bar(2, 10, 11.1, 9.95, 11, 50),
		bar(3, 11, 13.5, 10.5, 13, 100),
		bar(4, 13, 15.5, 12.5, 15, 100),
		bar(5, 15, 17.5, 14.5, 17, 120),
	)
}

func TestMedianVolume(t *testing.T) {
	tests := []struct {
		name    string
		volumes []float64
		want    float64
	}{
		{"odd count", []float64{300, 100, 200}, 200},
		{"even count", []float64{100, 400, 200, 300}, 250},
		{"single", []float64{42}, 42},
		{"NaN ignored", []float64{100, math.NaN(), 300}, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles := make([]models.Candle, len(tt.volumes))
			for i, v := range tt.volumes {
				candles[i] = bar(i, 1, 2, 0, 1, v)
			}

			got, err := MedianVolume(seriesOf(candles...))

			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMedianVolume_TenCandles(t *testing.T) {
	candles := make([]models.Candle, 10)
	for i := 0; i < 9; i++ {
		candles[i] = bar(i, 20, 21, 19, 20.5, 100)
	}
	candles[9] = bar(9, 30, 31, 29, 30, 10)

	got, err := MedianVolume(seriesOf(candles...))

	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
}

func TestMedianVolume_MissingColumn(t *testing.T) {
	series := quietSeries()
	series.Columns = models.ColumnsPrice

	_, err := MedianVolume(series)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingField))
	var mf *errors.MissingFieldError
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, "Volume", mf.Field)
}

func TestMedianVolume_NoValues(t *testing.T) {
	_, err := MedianVolume(seriesOf())
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))

	_, err = MedianVolume(seriesOf(bar(0, 1, 2, 0, 1, math.NaN())))
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))
}

func TestMedianBodySize(t *testing.T) {
	got, err := MedianBodySize(quietSeries())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got, 1e-9)

	series := quietSeries()
	series.Columns = models.ColumnsAll &^ models.ColumnClose
	_, err = MedianBodySize(series)
	assert.True(t, errors.Is(err, errors.ErrMissingField))
}

func TestComputeActivityStats_PartialResult(t *testing.T) {
	series := quietSeries()
	series.Columns = models.ColumnsPrice

	stats, err := ComputeActivityStats(series)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingField))
	assert.True(t, stats.HasMedianBody)
	assert.InDelta(t, 2.0, stats.MedianBody, 1e-9)
	assert.False(t, stats.HasMedianVolume)
	assert.False(t, stats.Defined())
}

func TestIsBoringCandle(t *testing.T) {
	opts := DefaultOptions()

	tests := []struct {
		name   string
		candle models.Candle
		want   bool
	}{
		{"small quiet body", bar(0, 10, 11.1, 9.95, 11, 50), true},
		{"body too large", bar(0, 10, 11.6, 9.95, 11.5, 50), false},
		{"volume at threshold", bar(0, 10, 11.1, 9.95, 11, 75), false},
		{"wick longer than body", bar(0, 10, 11.5, 9.4, 11, 50), false},
		{"wick equal to body", bar(0, 10, 11.5, 9.5, 11, 50), false},
		{"doji", bar(0, 10, 10, 10, 10, 10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBoringCandle(tt.candle, 2, 100, opts))
		})
	}
}

func TestFindBoringCandle(t *testing.T) {
	series := quietSeries()
	stats, err := ComputeActivityStats(series)
	require.NoError(t, err)

	idx, ok := FindBoringCandle(series, stats, DefaultOptions())

	assert.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestFindBoringCandle_MostRecentWins(t *testing.T) {
	series := quietSeries()
	series.Candles[1] = bar(1, 10, 11.1, 9.95, 11, 50)
	stats, err := ComputeActivityStats(series)
	require.NoError(t, err)
	require.True(t, IsBoringCandle(series.Candles[1], stats.MedianBody, stats.MedianVolume, DefaultOptions()))

	idx, ok := FindBoringCandle(series, stats, DefaultOptions())

	assert.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestFindBoringCandle_MustSitBelowLastLow(t *testing.T) {
	series := quietSeries()
	series.Candles[5].Low = 11

	stats, err := ComputeActivityStats(series)
	require.NoError(t, err)

	idx, ok := FindBoringCandle(series, stats, DefaultOptions())

	assert.False(t, ok)
	assert.Equal(t, -1, idx)
}

func TestFindBoringCandle_DojiIsNeverBoring(t *testing.T) {
	candles := make([]models.Candle, 10)
	for i := 0; i < 8; i++ {
		candles[i] = bar(i, 20, 21, 19, 20.5, 100)
	}
	candles[8] = bar(8, 15, 15, 15, 15, 100)
	candles[9] = bar(9, 30, 31, 29, 30, 10)
	series := seriesOf(candles...)

	stats, err := ComputeActivityStats(series)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stats.MedianVolume)

	// A zero body can never exceed its zero wick.
	_, ok := FindBoringCandle(series, stats, DefaultOptions())
	assert.False(t, ok)
}

func TestFindBoringCandle_Undefined(t *testing.T) {
	opts := DefaultOptions()

	_, ok := FindBoringCandle(seriesOf(bar(0, 10, 11.1, 9.95, 11, 50)), models.ActivityStats{
		MedianBody: 2, MedianVolume: 100, HasMedianBody: true, HasMedianVolume: true,
	}, opts)
	assert.False(t, ok, "single candle")

	_, ok = FindBoringCandle(quietSeries(), models.ActivityStats{MedianBody: 2, HasMedianBody: true}, opts)
	assert.False(t, ok, "no median volume")
}

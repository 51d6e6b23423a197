package patterns

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-scanner/internal/models"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// bar builds a candle at position i of a daily series.
func bar(i int, o, h, l, c, v float64) models.Candle {
	return models.Candle{
		Timestamp: baseTime.AddDate(0, 0, i),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    v,
	}
}

func seriesOf(candles ...models.Candle) models.Series {
	return models.NewSeries("TEST", "1d", candles)
}

// mirror flips every price around zero, turning highs into lows.
func mirror(s models.Series) models.Series {
	out := make([]models.Candle, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = models.Candle{
			Timestamp: c.Timestamp,
			Open:      -c.Open,
			High:      -c.Low,
			Low:       -c.High,
			Close:     -c.Close,
			Volume:    c.Volume,
		}
	}
	return models.Series{Symbol: s.Symbol, Interval: s.Interval, Candles: out, Columns: s.Columns}
}

func TestFindFairValueGaps_BullishScenario(t *testing.T) {
	series := seriesOf(
		bar(0, 10, 12, 9, 11, 0),
		bar(1, 11, 11.5, 10.5, 11.2, 0),
		bar(2, 13, 14, 12.5, 13.5, 0),
	)

	gaps := FindFairValueGaps(series)

	require.Len(t, gaps, 1)
	assert.Equal(t, models.Gap{Start: 0, End: 2, Kind: models.Bullish, Lower: 12, Upper: 12.5}, gaps[0])
}

func TestFindFairValueGaps_Bearish(t *testing.T) {
	series := seriesOf(
		bar(0, 13, 14, 12.5, 13.5, 0),
		bar(1, 11, 11.5, 10.5, 11.2, 0),
		bar(2, 10, 12, 9, 11, 0),
	)

	gaps := FindFairValueGaps(series)

	require.Len(t, gaps, 1)
	assert.Equal(t, models.Gap{Start: 0, End: 2, Kind: models.Bearish, Lower: 12, Upper: 12.5}, gaps[0])
}

func TestFindFairValueGaps_EqualityIsNotAGap(t *testing.T) {
	series := seriesOf(
		bar(0, 10, 12, 9, 11, 0),
		bar(1, 11, 50, 1, 11.2, 0), // middle candle is never inspected
		bar(2, 13, 14, 12, 13.5, 0),
	)

	assert.Empty(t, FindFairValueGaps(series))
}

func TestFindFairValueGaps_ShortSeries(t *testing.T) {
	tests := []struct {
		name   string
		series models.Series
	}{
		{"empty", seriesOf()},
		{"one candle", seriesOf(bar(0, 1, 2, 0, 1, 0))},
		{"two candles", seriesOf(bar(0, 1, 2, 0, 1, 0), bar(1, 5, 6, 4, 5, 0))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gaps := FindFairValueGaps(tt.series)
			assert.NotNil(t, gaps)
			assert.Empty(t, gaps)
		})
	}
}

func TestFindFairValueGaps_AscendingOrder(t *testing.T) {
	// Steady rally: every triple leaves a gap
	var candles []models.Candle
	for i := 0; i < 6; i++ {
		p := float64(10 * (i + 1))
		candles = append(candles, bar(i, p, p+1, p-1, p+0.5, 0))
	}

	gaps := FindFairValueGaps(seriesOf(candles...))

	require.Len(t, gaps, 4)
	for i, g := range gaps {
		assert.Equal(t, i, g.Start)
		assert.Equal(t, i+2, g.End)
		assert.Equal(t, models.Bullish, g.Kind)
	}
}

func TestFindMajorHighsLows_FlatSeries(t *testing.T) {
	var candles []models.Candle
	for i := 0; i < 30; i++ {
		candles = append(candles, bar(i, 10, 10, 10, 10, 100))
	}
	series := seriesOf(candles...)

	for _, window := range []int{1, 2, 5, 10} {
		extrema := FindMajorHighsLows(series, window)
		assert.Empty(t, extrema.MajorHighs, "window %d", window)
		assert.Empty(t, extrema.MajorLows, "window %d", window)
	}
}

func TestFindMajorHighsLows_SingleSpike(t *testing.T) {
	var candles []models.Candle
	for i := 0; i < 11; i++ {
		candles = append(candles, bar(i, 10, 11, 9, 10, 100))
	}
	candles[5] = bar(5, 10, 15, 5, 10, 100)

	extrema := FindMajorHighsLows(seriesOf(candles...), 5)

	assert.Equal(t, []int{5}, extrema.MajorHighs)
	assert.Equal(t, []int{5}, extrema.MajorLows)
}

func TestFindMajorHighsLows_TieDisqualifies(t *testing.T) {
	var candles []models.Candle
	for i := 0; i < 11; i++ {
		candles = append(candles, bar(i, 10, 11, 9, 10, 100))
	}
	candles[5] = bar(5, 10, 15, 5, 10, 100)
	candles[10] = bar(10, 10, 15, 9, 10, 100) // ties the spike inside the following window
	candles[0] = bar(0, 10, 11, 5, 10, 100)   // ties the low inside the preceding window

	extrema := FindMajorHighsLows(seriesOf(candles...), 5)

	assert.Empty(t, extrema.MajorHighs)
	assert.Empty(t, extrema.MajorLows)
}

func TestFindMajorHighsLows_TooShort(t *testing.T) {
	var candles []models.Candle
	for i := 0; i < 10; i++ {
		candles = append(candles, bar(i, 10, float64(i%3)+10, 9, 10, 100))
	}

	extrema := FindMajorHighsLows(seriesOf(candles...), 5)

	assert.Empty(t, extrema.MajorHighs)
	assert.Empty(t, extrema.MajorLows)
}

func TestFindMajorHighsLows_InvalidWindow(t *testing.T) {
	series := seriesOf(bar(0, 1, 1, 1, 1, 0), bar(1, 1, 5, 0, 1, 0), bar(2, 1, 1, 1, 1, 0))

	assert.Empty(t, FindMajorHighsLows(series, 0).MajorHighs)
	assert.Empty(t, FindMajorHighsLows(series, -2).MajorLows)
}

func TestFindMajorHighsLows_NaNNeighboursSkipped(t *testing.T) {
	series := seriesOf(
		bar(0, 1, math.NaN(), math.NaN(), 1, 0),
		bar(1, 1, 2, 0.5, 1, 0),
		bar(2, 1, 5, 0.2, 1, 0),
		bar(3, 1, 2, 0.5, 1, 0),
		bar(4, 1, 2, 0.5, 1, 0),
	)

	extrema := FindMajorHighsLows(series, 2)

	assert.Equal(t, []int{2}, extrema.MajorHighs)
	assert.Equal(t, []int{2}, extrema.MajorLows)
}

func TestFindMajorHighsLows_NaNCandidateNeverQualifies(t *testing.T) {
	series := seriesOf(
		bar(0, 1, 2, 0.5, 1, 0),
		bar(1, 1, math.NaN(), math.NaN(), 1, 0),
		bar(2, 1, 2, 0.5, 1, 0),
	)

	extrema := FindMajorHighsLows(series, 1)

	assert.Empty(t, extrema.MajorHighs)
	assert.Empty(t, extrema.MajorLows)
}

// breakSeries has major highs at 1 and 3 (window 1). Candle 3 breaks the high
// at 1; candle 5 breaks both highs and reports the earliest one.
func breakSeries() models.Series {
	return seriesOf(
		bar(0, 1, 2, 0.5, 1.5, 0),
		bar(1, 1.5, 5, 1, 2, 0),
		bar(2, 2, 3, 1.5, 2.5, 0),
		bar(3, 2.5, 6, 2, 5.5, 0),
		bar(4, 5.5, 5.8, 4, 4.5, 0),
		bar(5, 4.5, 7.5, 4, 7, 0),
	)
}

func TestFindStructureBreaks_Bullish(t *testing.T) {
	series := breakSeries()
	extrema := FindMajorHighsLows(series, 1)
	require.Equal(t, []int{1, 3}, extrema.MajorHighs)
	require.Empty(t, extrema.MajorLows)

	breaks := FindStructureBreaks(series, extrema)

	assert.Equal(t, []models.StructureBreak{
		{Index: 3, Kind: models.Bullish, Level: 5, Extremum: 1},
		{Index: 5, Kind: models.Bullish, Level: 5, Extremum: 1},
	}, breaks)
}

func TestFindStructureBreaks_Bearish(t *testing.T) {
	series := mirror(breakSeries())
	extrema := FindMajorHighsLows(series, 1)
	require.Equal(t, []int{1, 3}, extrema.MajorLows)

	breaks := FindStructureBreaks(series, extrema)

	assert.Equal(t, []models.StructureBreak{
		{Index: 3, Kind: models.Bearish, Level: -5, Extremum: 1},
		{Index: 5, Kind: models.Bearish, Level: -5, Extremum: 1},
	}, breaks)
}

func TestFindStructureBreaks_HighAndLowLevels(t *testing.T) {
	series := seriesOf(
		bar(0, 5, 10, 1, 5, 0),
		bar(1, 9, 12, 0.5, 11, 0),
	)
	extrema := models.Extrema{MajorHighs: []int{0}, MajorLows: []int{0}}

	breaks := FindStructureBreaks(series, extrema)
	require.Len(t, breaks, 1)
	assert.Equal(t, models.StructureBreak{Index: 1, Kind: models.Bullish, Level: 10, Extremum: 0}, breaks[0])

	series.Candles[1] = bar(1, 2, 3, 0.5, 0.8, 0)
	breaks = FindStructureBreaks(series, extrema)
	require.Len(t, breaks, 1)
	assert.Equal(t, models.StructureBreak{Index: 1, Kind: models.Bearish, Level: 1, Extremum: 0}, breaks[0])
}

func TestFindStructureBreaks_NoExtrema(t *testing.T) {
	breaks := FindStructureBreaks(breakSeries(), models.Extrema{})
	assert.NotNil(t, breaks)
	assert.Empty(t, breaks)
}

func TestFindStructureBreaks_IgnoresLaterExtrema(t *testing.T) {
	series := breakSeries()
	// Extremum at the last position can never be broken
	breaks := FindStructureBreaks(series, models.Extrema{MajorHighs: []int{5}})
	assert.Empty(t, breaks)
}

func TestPreprocess(t *testing.T) {
	series := seriesOf(
		bar(0, 10, 12, 9, 11, 0),
		bar(1, 11, 11.5, 10.5, 10.8, 0),
	)

	metrics, err := Preprocess(series)

	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.InDelta(t, 1.0, metrics[0].Body, 1e-9)
	assert.InDelta(t, 1.0, metrics[0].LowerShadow, 1e-9)
	assert.InDelta(t, 1.0, metrics[0].UpperShadow, 1e-9)
	assert.InDelta(t, 0.2, metrics[1].Body, 1e-9)
	assert.InDelta(t, 0.3, metrics[1].LowerShadow, 1e-9)
	assert.InDelta(t, 0.5, metrics[1].UpperShadow, 1e-9)
}

func TestPreprocess_NaNPropagates(t *testing.T) {
	metrics, err := Preprocess(seriesOf(bar(0, math.NaN(), 12, 9, 11, 0)))

	require.NoError(t, err)
	assert.True(t, math.IsNaN(metrics[0].Body))
	assert.True(t, math.IsNaN(metrics[0].LowerShadow))
	assert.True(t, math.IsNaN(metrics[0].UpperShadow))
}

package patterns

import (
	"math"
	"sort"

	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/models"
)

// MedianVolume returns the median volume of the series.
func MedianVolume(series models.Series) (float64, error) {
	if !series.Has(models.ColumnVolume) {
		return 0, errors.NewMissingFieldError("Volume", "median volume")
	}

	volumes := make([]float64, len(series.Candles))
	for i, c := range series.Candles {
		volumes[i] = c.Volume
	}

	m, ok := median(volumes)
	if !ok {
		return 0, errors.Wrapf(errors.ErrInsufficientData, "median volume of %d candles", len(volumes))
	}
	return m, nil
}

// MedianBodySize returns the median of |open-close| over the series.
func MedianBodySize(series models.Series) (float64, error) {
	if missing := series.Columns.Missing(models.ColumnOpen | models.ColumnClose); missing != 0 {
		return 0, errors.NewMissingFieldError(missing.String(), "median body size")
	}

	bodies := make([]float64, len(series.Candles))
	for i, c := range series.Candles {
		bodies[i] = math.Abs(c.Open - c.Close)
	}

	m, ok := median(bodies)
	if !ok {
		return 0, errors.Wrapf(errors.ErrInsufficientData, "median body size of %d candles", len(bodies))
	}
	return m, nil
}

// ComputeActivityStats computes both medians. A statistic that cannot be
// computed is left undefined and its error is returned; the other one is
// still filled in.
func ComputeActivityStats(series models.Series) (models.ActivityStats, error) {
	var stats models.ActivityStats
	var errs []error

	if body, err := MedianBodySize(series); err != nil {
		errs = append(errs, err)
	} else {
		stats.MedianBody = body
		stats.HasMedianBody = true
	}

	if volume, err := MedianVolume(series); err != nil {
		errs = append(errs, err)
	} else {
		stats.MedianVolume = volume
		stats.HasMedianVolume = true
	}

	return stats, errors.Join(errs...)
}

// IsBoringCandle reports whether a candle is small, quiet and mostly body:
// body and volume under their ratio of the medians, and the two shadows
// together shorter than the body.
func IsBoringCandle(c models.Candle, medianBody, medianVolume float64, opts Options) bool {
	m := Measure(c)
	return m.Body < opts.BoringBodyRatio*medianBody &&
		c.Volume < opts.BoringVolumeRatio*medianVolume &&
		m.Wick() < m.Body
}

// FindBoringCandle walks left from the second-to-last candle and returns the
// first boring candle lying entirely below the last candle's low.
func FindBoringCandle(series models.Series, stats models.ActivityStats, opts Options) (int, bool) {
	candles := series.Candles
	n := len(candles)
	if n < 2 || !stats.Defined() {
		return -1, false
	}

	lastLow := candles[n-1].Low
	for i := n - 2; i >= 0; i-- {
		c := candles[i]
		if IsBoringCandle(c, stats.MedianBody, stats.MedianVolume, opts) && c.High < lastLow {
			return i, true
		}
	}
	return -1, false
}

// median returns the median of the non-NaN values.
func median(values []float64) (float64, bool) {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return 0, false
	}
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}

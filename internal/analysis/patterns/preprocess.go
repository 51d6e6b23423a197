package patterns

import (
	"math"

	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/models"
)

// Preprocess computes body and shadow sizes for every candle of the series.
// All four price columns must be present.
func Preprocess(series models.Series) ([]models.CandleMetrics, error) {
	if missing := series.Columns.Missing(models.ColumnsPrice); missing != 0 {
		return nil, errors.NewMissingFieldError(missing.String(), "body and shadow calculation")
	}

	metrics := make([]models.CandleMetrics, len(series.Candles))
	for i, c := range series.Candles {
		metrics[i] = Measure(c)
	}
	return metrics, nil
}

// Measure returns the body and shadow sizes of one candle. NaN prices propagate.
func Measure(c models.Candle) models.CandleMetrics {
	return models.CandleMetrics{
		Body:        math.Abs(c.Open - c.Close),
		LowerShadow: math.Min(c.Open, c.Close) - c.Low,
		UpperShadow: c.High - math.Max(c.Open, c.Close),
	}
}

package patterns

import (
	"math"

	"pattern-scanner/internal/models"
)

// FindFairValueGaps identifies fair value gaps (imbalances).
//
// For every interior candle i the candles at i-1 and i+1 are compared; the
// middle candle is not inspected. Equal prices never form a gap.
func FindFairValueGaps(series models.Series) []models.Gap {
	gaps := make([]models.Gap, 0)
	candles := series.Candles
	n := len(candles)

	for i := 1; i < n-1; i++ {
		first, third := candles[i-1], candles[i+1]

		// Bullish FVG: price left first.High untouched on the way up
		if first.High < third.Low {
			gaps = append(gaps, models.Gap{
				Start: i - 1,
				End:   i + 1,
				Kind:  models.Bullish,
				Lower: first.High,
				Upper: third.Low,
			})
		}

		// Bearish FVG: price left first.Low untouched on the way down
		if first.Low > third.High {
			gaps = append(gaps, models.Gap{
				Start: i - 1,
				End:   i + 1,
				Kind:  models.Bearish,
				Lower: third.High,
				Upper: first.Low,
			})
		}
	}

	return gaps
}

// FindMajorHighsLows identifies candles whose high (low) is strictly above
// (below) every candle in the window bars on each side.
func FindMajorHighsLows(series models.Series, window int) models.Extrema {
	result := models.Extrema{
		MajorHighs: []int{},
		MajorLows:  []int{},
	}
	candles := series.Candles
	n := len(candles)

	if window < 1 || n <= 2*window {
		return result
	}

	for i := window; i < n-window; i++ {
		before := candles[i-window : i]
		after := candles[i+1 : i+1+window]

		high := candles[i].High
		if high > highest(before) && high > highest(after) {
			result.MajorHighs = append(result.MajorHighs, i)
		}

		low := candles[i].Low
		if low < lowest(before) && low < lowest(after) {
			result.MajorLows = append(result.MajorLows, i)
		}
	}

	return result
}

// FindStructureBreaks finds candles that open below an earlier major high and
// close above it (bullish), or open above an earlier major low and close below
// it (bearish).
//
// For each candle the extrema are tried in the order given and the first match
// per direction wins. Extrema are never consumed: a level can be broken again
// by any later candle that straddles it.
func FindStructureBreaks(series models.Series, extrema models.Extrema) []models.StructureBreak {
	breaks := make([]models.StructureBreak, 0)
	candles := series.Candles
	n := len(candles)

	for i := 1; i < n; i++ {
		c := candles[i]

		for _, h := range extrema.MajorHighs {
			if h < 0 || h >= i {
				continue
			}
			level := candles[h].High
			if c.Open < level && c.Close > level {
				breaks = append(breaks, models.StructureBreak{
					Index:    i,
					Kind:     models.Bullish,
					Level:    level,
					Extremum: h,
				})
				break
			}
		}

		for _, l := range extrema.MajorLows {
			if l < 0 || l >= i {
				continue
			}
			level := candles[l].Low
			if c.Open > level && c.Close < level {
				breaks = append(breaks, models.StructureBreak{
					Index:    i,
					Kind:     models.Bearish,
					Level:    level,
					Extremum: l,
				})
				break
			}
		}
	}

	return breaks
}

// highest returns the largest High, skipping NaN. NaN if none remain.
func highest(candles []models.Candle) float64 {
	result := math.NaN()
	for _, c := range candles {
		if math.IsNaN(c.High) {
			continue
		}
		if math.IsNaN(result) || c.High > result {
			result = c.High
		}
	}
	return result
}

// lowest returns the smallest Low, skipping NaN. NaN if none remain.
func lowest(candles []models.Candle) float64 {
	result := math.NaN()
	for _, c := range candles {
		if math.IsNaN(c.Low) {
			continue
		}
		if math.IsNaN(result) || c.Low < result {
			result = c.Low
		}
	}
	return result
}

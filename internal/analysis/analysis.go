// Package analysis provides the shared types of the price-action pattern
// detectors: the detector contract and the report they fill in.
package analysis

import (
	"time"

	"pattern-scanner/internal/models"
)

// Detector defines the interface for pattern detection. A detector reads the
// series and any earlier results already in the report, and adds its own.
type Detector interface {
	Name() string
	Detect(series models.Series, report *Report) error
}

// PatternType names a kind of annotation produced by the detectors.
type PatternType string

const (
	PatternFairValueGap   PatternType = "fvg"
	PatternMajorHigh      PatternType = "major_high"
	PatternMajorLow       PatternType = "major_low"
	PatternStructureBreak PatternType = "bos"
	PatternBoringCandle   PatternType = "boring_candle"
)

// Report collects every annotation found in one series.
type Report struct {
	Symbol          string                  `json:"symbol" yaml:"symbol"`
	Interval        string                  `json:"interval" yaml:"interval"`
	Candles         int                     `json:"candles" yaml:"candles"`
	From            time.Time               `json:"from" yaml:"from"`
	To              time.Time               `json:"to" yaml:"to"`
	Gaps            []models.Gap            `json:"gaps" yaml:"gaps"`
	MajorHighs      []int                   `json:"major_highs" yaml:"major_highs"`
	MajorLows       []int                   `json:"major_lows" yaml:"major_lows"`
	StructureBreaks []models.StructureBreak `json:"structure_breaks" yaml:"structure_breaks"`
	Stats           models.ActivityStats    `json:"stats" yaml:"stats"`
	BoringCandle    *int                    `json:"boring_candle,omitempty" yaml:"boring_candle,omitempty"`
	Warnings        []string                `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// NewReport creates an empty report describing series.
func NewReport(series models.Series) *Report {
	from, to := series.Span()
	return &Report{
		Symbol:          series.Symbol,
		Interval:        series.Interval,
		Candles:         series.Len(),
		From:            from,
		To:              to,
		Gaps:            []models.Gap{},
		MajorHighs:      []int{},
		MajorLows:       []int{},
		StructureBreaks: []models.StructureBreak{},
	}
}

// Extrema returns the major highs and lows as a single value.
func (r *Report) Extrema() models.Extrema {
	return models.Extrema{MajorHighs: r.MajorHighs, MajorLows: r.MajorLows}
}

// Warn records a non-fatal problem met while building the report.
func (r *Report) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Counts returns the number of annotations per pattern type.
func (r *Report) Counts() map[PatternType]int {
	counts := map[PatternType]int{
		PatternFairValueGap:   len(r.Gaps),
		PatternMajorHigh:      len(r.MajorHighs),
		PatternMajorLow:       len(r.MajorLows),
		PatternStructureBreak: len(r.StructureBreaks),
		PatternBoringCandle:   0,
	}
	if r.BoringCandle != nil {
		counts[PatternBoringCandle] = 1
	}
	return counts
}

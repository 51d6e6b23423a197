package patterns

import (
	"github.com/rs/zerolog"

	"pattern-scanner/internal/analysis"
	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/models"
)

// Engine runs the detectors over a series in data-flow order: gaps and
// extrema first, structure breaks from the extrema, then activity statistics
// and the boring candle search.
type Engine struct {
	opts      Options
	detectors []analysis.Detector
	logger    zerolog.Logger
}

// NewEngine creates an engine with the full detector pipeline.
func NewEngine(opts Options, logger zerolog.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		opts: opts,
		detectors: []analysis.Detector{
			NewGapDetector(),
			NewExtremumDetector(opts.Window),
			NewStructureBreakDetector(),
			NewActivityDetector(),
			NewBoringCandleDetector(opts),
		},
		logger: logger.With().Str("component", "patterns").Logger(),
	}, nil
}

// Options returns the thresholds the engine was built with.
func (e *Engine) Options() Options {
	return e.opts
}

// Detectors returns the pipeline in execution order.
func (e *Engine) Detectors() []analysis.Detector {
	return e.detectors
}

// Analyze runs every detector and returns the combined report. The series is
// only read. A missing price column is an error; a missing volume column
// only leaves the statistics that need it undefined.
func (e *Engine) Analyze(series models.Series) (*analysis.Report, error) {
	if _, err := Preprocess(series); err != nil {
		return nil, errors.Wrapf(err, "analyze %s", series.Symbol)
	}

	report := analysis.NewReport(series)
	for _, d := range e.detectors {
		if err := d.Detect(series, report); err != nil {
			return nil, errors.Wrapf(err, "%s on %s", d.Name(), series.Symbol)
		}
		e.logger.Debug().
			Str("detector", d.Name()).
			Str("symbol", series.Symbol).
			Msg("Detector completed")
	}

	if series.Len() < 2*e.opts.Window+1 {
		report.Warn("series shorter than the extremum window; no major highs or lows possible")
	}

	return report, nil
}

// GapDetector finds fair value gaps.
type GapDetector struct{}

// NewGapDetector creates a new fair value gap detector.
func NewGapDetector() *GapDetector {
	return &GapDetector{}
}

func (d *GapDetector) Name() string {
	return "GapDetector"
}

func (d *GapDetector) Detect(series models.Series, report *analysis.Report) error {
	report.Gaps = FindFairValueGaps(series)
	return nil
}

// ExtremumDetector finds major highs and lows.
type ExtremumDetector struct {
	window int // Bars on each side for pivot confirmation
}

// NewExtremumDetector creates a new major high/low detector.
func NewExtremumDetector(window int) *ExtremumDetector {
	return &ExtremumDetector{window: window}
}

func (d *ExtremumDetector) Name() string {
	return "ExtremumDetector"
}

func (d *ExtremumDetector) Detect(series models.Series, report *analysis.Report) error {
	extrema := FindMajorHighsLows(series, d.window)
	report.MajorHighs = extrema.MajorHighs
	report.MajorLows = extrema.MajorLows
	return nil
}

// StructureBreakDetector finds breaks of the extrema already in the report.
type StructureBreakDetector struct{}

// NewStructureBreakDetector creates a new break of structure detector.
func NewStructureBreakDetector() *StructureBreakDetector {
	return &StructureBreakDetector{}
}

func (d *StructureBreakDetector) Name() string {
	return "StructureBreakDetector"
}

func (d *StructureBreakDetector) Detect(series models.Series, report *analysis.Report) error {
	report.StructureBreaks = FindStructureBreaks(series, report.Extrema())
	return nil
}

// ActivityDetector computes the median body and volume.
type ActivityDetector struct{}

// NewActivityDetector creates a new activity statistics detector.
func NewActivityDetector() *ActivityDetector {
	return &ActivityDetector{}
}

func (d *ActivityDetector) Name() string {
	return "ActivityDetector"
}

func (d *ActivityDetector) Detect(series models.Series, report *analysis.Report) error {
	stats, err := ComputeActivityStats(series)
	report.Stats = stats
	for _, e := range splitErrors(err) {
		report.Warn(e.Error())
	}
	return nil
}

// BoringCandleDetector finds the most recent boring candle below the last low.
type BoringCandleDetector struct {
	opts Options
}

// NewBoringCandleDetector creates a new boring candle detector.
func NewBoringCandleDetector(opts Options) *BoringCandleDetector {
	return &BoringCandleDetector{opts: opts}
}

func (d *BoringCandleDetector) Name() string {
	return "BoringCandleDetector"
}

func (d *BoringCandleDetector) Detect(series models.Series, report *analysis.Report) error {
	if idx, ok := FindBoringCandle(series, report.Stats, d.opts); ok {
		report.BoringCandle = &idx
	}
	return nil
}

// splitErrors flattens an errors.Join result.
func splitErrors(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

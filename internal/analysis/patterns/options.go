// Package patterns provides price-action pattern detection: fair value gaps,
// major highs and lows, breaks of structure and boring candles.
package patterns

import (
	"pattern-scanner/internal/errors"
)

// Default thresholds.
const (
	DefaultWindow            = 5
	DefaultBoringBodyRatio   = 0.75
	DefaultBoringVolumeRatio = 0.75
)

// Options holds the detector thresholds.
type Options struct {
	Window            int     `json:"window" yaml:"window"`                           // Bars on each side of a major high/low
	BoringBodyRatio   float64 `json:"boring_body_ratio" yaml:"boring_body_ratio"`     // Body must stay under this fraction of the median body
	BoringVolumeRatio float64 `json:"boring_volume_ratio" yaml:"boring_volume_ratio"` // Volume must stay under this fraction of the median volume
}

// DefaultOptions returns the default detector thresholds.
func DefaultOptions() Options {
	return Options{
		Window:            DefaultWindow,
		BoringBodyRatio:   DefaultBoringBodyRatio,
		BoringVolumeRatio: DefaultBoringVolumeRatio,
	}
}

// Validate checks the thresholds.
func (o Options) Validate() error {
	if o.Window < 1 {
		return errors.NewValidationError("window", o.Window, "must be at least 1")
	}
	if o.BoringBodyRatio <= 0 {
		return errors.NewValidationError("boring_body_ratio", o.BoringBodyRatio, "must be positive")
	}
	if o.BoringVolumeRatio <= 0 {
		return errors.NewValidationError("boring_volume_ratio", o.BoringVolumeRatio, "must be positive")
	}
	return nil
}

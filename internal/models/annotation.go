package models

// CandleMetrics holds the body and shadow sizes derived from one candle.
type CandleMetrics struct {
	Body        float64 `json:"body" yaml:"body"`
	LowerShadow float64 `json:"lower_shadow" yaml:"lower_shadow"`
	UpperShadow float64 `json:"upper_shadow" yaml:"upper_shadow"`
}

// Wick returns the combined shadow length.
func (m CandleMetrics) Wick() float64 {
	return m.LowerShadow + m.UpperShadow
}

// Gap is a fair value gap between the candles at Start and End (End == Start+2).
// Lower and Upper bound the untouched price region.
type Gap struct {
	Start int       `json:"start" yaml:"start"`
	End   int       `json:"end" yaml:"end"`
	Kind  Direction `json:"kind" yaml:"kind"`
	Lower float64   `json:"lower" yaml:"lower"`
	Upper float64   `json:"upper" yaml:"upper"`
}

// Extrema holds the positions of major highs and lows in ascending order.
type Extrema struct {
	MajorHighs []int `json:"major_highs" yaml:"major_highs"`
	MajorLows  []int `json:"major_lows" yaml:"major_lows"`
}

// StructureBreak is a candle whose open and close straddle an earlier major high or low.
type StructureBreak struct {
	Index    int       `json:"index" yaml:"index"`
	Kind     Direction `json:"kind" yaml:"kind"`
	Level    float64   `json:"level" yaml:"level"`
	Extremum int       `json:"extremum" yaml:"extremum"`
}

// ActivityStats holds whole-series medians. A Has* flag is false when the
// statistic could not be computed.
type ActivityStats struct {
	MedianBody      float64 `json:"median_body" yaml:"median_body"`
	MedianVolume    float64 `json:"median_volume" yaml:"median_volume"`
	HasMedianBody   bool    `json:"has_median_body" yaml:"has_median_body"`
	HasMedianVolume bool    `json:"has_median_volume" yaml:"has_median_volume"`
}

// Defined reports whether both medians are available.
func (s ActivityStats) Defined() bool {
	return s.HasMedianBody && s.HasMedianVolume
}

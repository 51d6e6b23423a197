// Package models provides domain models for the pattern scanner.
package models

import (
	"strings"
	"time"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Open      float64   `json:"open" yaml:"open"`
	High      float64   `json:"high" yaml:"high"`
	Low       float64   `json:"low" yaml:"low"`
	Close     float64   `json:"close" yaml:"close"`
	Volume    float64   `json:"volume" yaml:"volume"`
}

// Column identifies one OHLCV field of a series.
type Column uint8

const (
	ColumnOpen Column = 1 << iota
	ColumnHigh
	ColumnLow
	ColumnClose
	ColumnVolume

	ColumnsPrice = ColumnOpen | ColumnHigh | ColumnLow | ColumnClose
	ColumnsAll   = ColumnsPrice | ColumnVolume
)

var columnNames = []struct {
	col  Column
	name string
}{
	{ColumnOpen, "Open"},
	{ColumnHigh, "High"},
	{ColumnLow, "Low"},
	{ColumnClose, "Close"},
	{ColumnVolume, "Volume"},
}

// String returns the column names joined with "|".
func (c Column) String() string {
	var names []string
	for _, cn := range columnNames {
		if c&cn.col != 0 {
			names = append(names, cn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Missing returns the columns of want that are not present in c.
func (c Column) Missing(want Column) Column {
	return want &^ c
}

// ColumnByName maps a header name (case-insensitive) to a column.
func ColumnByName(name string) (Column, bool) {
	for _, cn := range columnNames {
		if strings.EqualFold(cn.name, strings.TrimSpace(name)) {
			return cn.col, true
		}
	}
	return 0, false
}

// Series is a time-ordered run of candles addressed by dense 0-based position.
// Columns records which fields the source actually supplied; a column is
// either present for the whole series or absent for all of it.
type Series struct {
	Symbol   string
	Interval string
	Candles  []Candle
	Columns  Column
}

// NewSeries creates a series with every OHLCV column present.
func NewSeries(symbol, interval string, candles []Candle) Series {
	return Series{
		Symbol:   symbol,
		Interval: interval,
		Candles:  candles,
		Columns:  ColumnsAll,
	}
}

// Len returns the number of candles.
func (s Series) Len() int {
	return len(s.Candles)
}

// Has reports whether every column in col is present.
func (s Series) Has(col Column) bool {
	return s.Columns&col == col
}

// Span returns the first and last timestamps, or zero times for an empty series.
func (s Series) Span() (from, to time.Time) {
	if len(s.Candles) == 0 {
		return time.Time{}, time.Time{}
	}
	return s.Candles[0].Timestamp, s.Candles[len(s.Candles)-1].Timestamp
}

// Direction is the side of a detected pattern.
type Direction string

const (
	Bullish Direction = "Bullish"
	Bearish Direction = "Bearish"
)

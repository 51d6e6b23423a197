// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"pattern-scanner/internal/analysis"
	"pattern-scanner/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Candles
	SaveCandles(ctx context.Context, symbol, interval string, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Candle, error)
	GetCandlesFreshness(ctx context.Context, symbol, interval string) (time.Time, error)

	// Series cache keyed by request
	Load(ctx context.Context, key string) (models.Series, bool, error)
	Save(ctx context.Context, key string, series models.Series) error

	// Scan history
	SaveScan(ctx context.Context, scan *ScanRecord) error
	GetScans(ctx context.Context, filter ScanFilter) ([]ScanRecord, error)
	GetScanByID(ctx context.Context, id string) (*ScanRecord, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// ScanRecord is one stored scan of one symbol.
type ScanRecord struct {
	ID        string           `json:"id" yaml:"id"`
	Symbol    string           `json:"symbol" yaml:"symbol"`
	Interval  string           `json:"interval" yaml:"interval"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
	Duration  time.Duration    `json:"duration" yaml:"duration"`
	Report    *analysis.Report `json:"report" yaml:"report"`
}

// Counts returns the annotation counts of the stored report.
func (r ScanRecord) Counts() map[analysis.PatternType]int {
	if r.Report == nil {
		return map[analysis.PatternType]int{}
	}
	return r.Report.Counts()
}

// ScanFilter represents filters for querying scans.
type ScanFilter struct {
	Symbol string
	Since  time.Time
	Limit  int
}

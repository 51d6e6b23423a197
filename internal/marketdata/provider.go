// Package marketdata downloads, caches and reads historical OHLCV series.
package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/models"
)

// Provider supplies historical candles for a symbol.
type Provider interface {
	Name() string
	GetHistorical(ctx context.Context, req HistoricalRequest) (models.Series, error)
}

// HistoricalRequest selects candles in [From, To) at the given interval.
type HistoricalRequest struct {
	Symbol   string
	Interval string
	From     time.Time
	To       time.Time
}

var intervals = []string{"1m", "2m", "5m", "15m", "30m", "60m", "90m", "1h", "1d", "5d", "1wk", "1mo", "3mo"}

// Intervals returns the supported candle intervals.
func Intervals() []string {
	out := make([]string, len(intervals))
	copy(out, intervals)
	return out
}

// ValidInterval reports whether interval is supported.
func ValidInterval(interval string) bool {
	for _, iv := range intervals {
		if iv == interval {
			return true
		}
	}
	return false
}

// IsIntraday reports whether candles of this interval carry a time of day.
func IsIntraday(interval string) bool {
	return strings.HasSuffix(interval, "m") || strings.HasSuffix(interval, "h")
}

// NewRequest builds a request for the lookback period ending at end.
func NewRequest(symbol, interval string, end time.Time, lookback time.Duration) HistoricalRequest {
	end = end.UTC().Truncate(24 * time.Hour)
	return HistoricalRequest{
		Symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		Interval: interval,
		From:     end.Add(-lookback),
		To:       end,
	}
}

// Validate checks the request.
func (r HistoricalRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return errors.NewValidationError("symbol", r.Symbol, "required")
	}
	if !ValidInterval(r.Interval) {
		return errors.NewValidationError("interval", r.Interval, "unsupported interval")
	}
	if r.From.IsZero() || r.To.IsZero() {
		return errors.NewValidationError("range", fmt.Sprintf("%s..%s", r.From, r.To), "from and to are required")
	}
	if !r.From.Before(r.To) {
		return errors.NewValidationError("range", fmt.Sprintf("%s..%s", r.From, r.To), "from must be before to")
	}
	return nil
}

// Settled reports whether the range ends by the start of now's UTC day. A
// range reaching into the current day can end in a candle that is still
// forming.
func (r HistoricalRequest) Settled(now time.Time) bool {
	return !r.To.After(now.UTC().Truncate(24 * time.Hour))
}

// CacheKey names the cached copy of this request's series.
func (r HistoricalRequest) CacheKey() string {
	return fmt.Sprintf("%s_data_%s_%s_%s",
		r.Symbol, r.From.UTC().Format("20060102"), r.To.UTC().Format("20060102"), r.Interval)
}

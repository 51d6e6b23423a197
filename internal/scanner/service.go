// Package scanner ties market data, pattern detection and persistence
// together: one symbol at a time or a whole watchlist in parallel.
package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pattern-scanner/internal/analysis"
	"pattern-scanner/internal/analysis/patterns"
	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/logging"
	"pattern-scanner/internal/marketdata"
	"pattern-scanner/internal/metrics"
	"pattern-scanner/internal/store"
)

// DefaultConcurrency is the number of symbols scanned in parallel.
const DefaultConcurrency = 4

// Service scans symbols for price-action patterns.
type Service struct {
	provider    marketdata.Provider
	engine      *patterns.Engine
	history     store.DataStore
	metrics     *metrics.Recorder
	logger      zerolog.Logger
	concurrency int
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithHistory stores every successful scan in st.
func WithHistory(st store.DataStore) Option {
	return func(s *Service) { s.history = st }
}

// WithMetrics records scan metrics on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// WithConcurrency bounds the number of parallel scans in ScanAll.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a scanner over provider and engine.
func NewService(provider marketdata.Provider, engine *patterns.Engine, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		provider:    provider,
		engine:      engine,
		logger:      logger.With().Str("component", "scanner").Logger(),
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the outcome of scanning one symbol.
type Result struct {
	Symbol   string           `json:"symbol" yaml:"symbol"`
	ScanID   string           `json:"scan_id,omitempty" yaml:"scan_id,omitempty"`
	Report   *analysis.Report `json:"report,omitempty" yaml:"report,omitempty"`
	Duration time.Duration    `json:"duration" yaml:"duration"`
	Err      error            `json:"-" yaml:"-"`
	Error    string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// ScanSymbol fetches the series for req, runs the detectors and, when a
// history store is configured, records the scan.
func (s *Service) ScanSymbol(ctx context.Context, req marketdata.HistoricalRequest) (*analysis.Report, error) {
	res := s.scan(ctx, req)
	return res.Report, res.Err
}

func (s *Service) scan(ctx context.Context, req marketdata.HistoricalRequest) Result {
	start := s.now()
	// A caller such as the watcher may carry a scan-scoped logger in ctx.
	logger := logging.WithSymbol(logging.FromContextOr(ctx, s.logger), req.Symbol)
	res := Result{Symbol: req.Symbol}

	report, err := s.analyze(ctx, req, logger)
	res.Duration = s.now().Sub(start)

	if s.metrics != nil {
		s.metrics.RecordLatency("scan", res.Duration)
		s.metrics.RecordScan(req.Symbol, err, s.now())
	}
	if err != nil {
		logger.Error().Err(err).Msg("Scan failed")
		res.Err = err
		res.Error = err.Error()
		return res
	}
	res.Report = report

	counts := make(map[string]int)
	for pattern, n := range report.Counts() {
		counts[string(pattern)] = n
	}
	logging.LogScan(logger, req.Symbol, report.Candles, counts, res.Duration)

	if s.metrics != nil {
		s.metrics.RecordPatterns(req.Symbol, counts)
		s.metrics.RecordStats(req.Symbol, report.Stats.MedianBody, report.Stats.MedianVolume,
			report.Stats.HasMedianBody, report.Stats.HasMedianVolume)
	}

	if s.history != nil {
		record := &store.ScanRecord{
			Symbol:   req.Symbol,
			Interval: req.Interval,
			Duration: res.Duration,
			Report:   report,
		}
		if err := s.history.SaveScan(ctx, record); err != nil {
			logger.Warn().Err(err).Msg("Failed to save scan")
		} else {
			res.ScanID = record.ID
		}
	}

	return res
}

func (s *Service) analyze(ctx context.Context, req marketdata.HistoricalRequest, logger zerolog.Logger) (*analysis.Report, error) {
	fetchStart := s.now()
	series, err := s.provider.GetHistorical(ctx, req)
	if s.metrics != nil {
		s.metrics.RecordLatency("fetch", s.now().Sub(fetchStart))
	}
	if err != nil {
		return nil, err
	}
	if series.Symbol == "" {
		series.Symbol = req.Symbol
	}

	analyzeStart := s.now()
	report, err := s.engine.Analyze(series)
	if s.metrics != nil {
		s.metrics.RecordLatency("analyze", s.now().Sub(analyzeStart))
	}
	if err != nil {
		return nil, err
	}

	logStats(logger, report)
	return report, nil
}

func logStats(logger zerolog.Logger, report *analysis.Report) {
	if report.Stats.HasMedianVolume {
		logging.LogStatistic(logger, report.Symbol, "median_volume", report.Stats.MedianVolume)
	} else {
		logger.Warn().Str("symbol", report.Symbol).Msg("Median volume could not be calculated")
	}
	if report.Stats.HasMedianBody {
		logging.LogStatistic(logger, report.Symbol, "median_body", report.Stats.MedianBody)
	} else {
		logger.Warn().Str("symbol", report.Symbol).Msg("Median body size could not be calculated")
	}
	if report.BoringCandle != nil {
		logger.Info().Int("index", *report.BoringCandle).Msg("Boring candle found")
	}
	for _, w := range report.Warnings {
		logger.Warn().Str("symbol", report.Symbol).Msg(w)
	}
}

// ScanAll scans every symbol over the same interval and range. Results come
// back in input order; a failed symbol carries its error in Result.Err and
// does not stop the others.
func (s *Service) ScanAll(ctx context.Context, symbols []string, interval string, from, to time.Time) []Result {
	results := make([]Result, len(symbols))

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Symbol: symbol, Err: err, Error: err.Error()}
				return nil
			}
			results[i] = s.scan(ctx, marketdata.HistoricalRequest{
				Symbol:   symbol,
				Interval: interval,
				From:     from,
				To:       to,
			})
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// JoinErrors combines the errors of failed results, or returns nil.
func JoinErrors(results []Result) error {
	var errs []error
	for _, r := range Failed(results) {
		errs = append(errs, errors.Wrap(r.Err, r.Symbol))
	}
	return errors.Join(errs...)
}

// SortBySymbol orders results alphabetically.
func SortBySymbol(results []Result) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
}

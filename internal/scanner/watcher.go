package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/logging"
)

// WatchConfig describes a recurring watchlist scan.
type WatchConfig struct {
	Schedule   string
	Symbols    []string
	Interval   string
	Lookback   time.Duration
	RunOnStart bool
}

// Watcher runs ScanAll over a watchlist on a cron schedule.
type Watcher struct {
	service *Service
	cfg     WatchConfig
	cron    *cron.Cron
	logger  zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	last    []Result
	lastRun time.Time
	running bool
	onScan  func([]Result)
}

// NewWatcher validates cfg and registers the scan job.
func NewWatcher(service *Service, cfg WatchConfig, logger zerolog.Logger) (*Watcher, error) {
	if len(cfg.Symbols) == 0 {
		return nil, &errors.ValidationError{Field: "watchlist.symbols", Message: "at least one symbol is required"}
	}
	if cfg.Lookback <= 0 {
		return nil, &errors.ValidationError{Field: "data.lookback_days", Value: cfg.Lookback, Message: "must be positive"}
	}

	w := &Watcher{
		service: service,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger.With().Str("component", "watcher").Logger(),
		now:     time.Now,
	}
	if _, err := w.cron.AddFunc(cfg.Schedule, func() { w.RunNow(context.Background()) }); err != nil {
		return nil, &errors.ValidationError{Field: "schedule.cron", Value: cfg.Schedule, Message: err.Error()}
	}
	return w, nil
}

// OnScan registers a callback invoked after every completed run.
func (w *Watcher) OnScan(fn func([]Result)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onScan = fn
}

// Start begins the schedule and, when configured, runs one scan right away.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info().
		Str("schedule", w.cfg.Schedule).
		Strs("symbols", w.cfg.Symbols).
		Msg("Starting watcher")

	if w.cfg.RunOnStart {
		go w.RunNow(ctx)
	}
	w.cron.Start()
}

// Stop halts the schedule and waits for a running scan to finish.
func (w *Watcher) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info().Msg("Watcher stopped")
}

// Next returns the next scheduled run time.
func (w *Watcher) Next() time.Time {
	entries := w.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow scans the watchlist once. Overlapping runs are skipped.
func (w *Watcher) RunNow(ctx context.Context) []Result {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Warn().Msg("Previous scan still running, skipping")
		return nil
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	logger := logging.WithScanID(w.logger, uuid.New().String())
	to := w.now().UTC()
	from := to.Add(-w.cfg.Lookback)

	start := time.Now()
	results := w.service.ScanAll(logging.WithLogger(ctx, logger), w.cfg.Symbols, w.cfg.Interval, from, to)
	failed := len(Failed(results))

	logger.Info().
		Int("symbols", len(results)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Watchlist scan complete")

	w.mu.Lock()
	w.last = results
	w.lastRun = to
	fn := w.onScan
	w.mu.Unlock()

	if fn != nil {
		fn(results)
	}
	return results
}

// LastRun returns when the most recent run started, or zero before the first.
func (w *Watcher) LastRun() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun
}

// Period returns the gap between the next two scheduled runs.
func (w *Watcher) Period() time.Duration {
	entries := w.cron.Entries()
	if len(entries) == 0 {
		return 0
	}
	next := entries[0].Schedule.Next(w.now())
	return entries[0].Schedule.Next(next).Sub(next)
}

// Last returns the results of the most recent run.
func (w *Watcher) Last() []Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Result, len(w.last))
	copy(out, w.last)
	return out
}

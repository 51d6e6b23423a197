// Package metrics exposes scanner activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scan outcomes.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Recorder records scan metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	patterns     *prometheus.CounterVec
	scans        *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	lastScan     *prometheus.GaugeVec
	medianVolume *prometheus.GaugeVec
	medianBody   *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		patterns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_patterns_detected_total",
				Help: "Total number of patterns detected",
			},
			[]string{"symbol", "pattern"},
		),
		scans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scanner_scans_total",
				Help: "Total number of symbol scans by outcome",
			},
			[]string{"status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scanner_scan_duration_seconds",
				Help:    "Duration of scan operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		lastScan: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scanner_last_scan_timestamp_seconds",
				Help: "Unix time of the last successful scan of a symbol",
			},
			[]string{"symbol"},
		),
		medianVolume: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scanner_median_volume",
				Help: "Median volume of the last scanned series",
			},
			[]string{"symbol"},
		),
		medianBody: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scanner_median_body",
				Help: "Median candle body of the last scanned series",
			},
			[]string{"symbol"},
		),
	}
}

// RecordPatterns adds detected pattern counts for a symbol.
func (r *Recorder) RecordPatterns(symbol string, counts map[string]int) {
	for pattern, n := range counts {
		r.patterns.WithLabelValues(symbol, pattern).Add(float64(n))
	}
}

// RecordScan records the outcome of one symbol scan.
func (r *Recorder) RecordScan(symbol string, err error, at time.Time) {
	if err != nil {
		r.scans.WithLabelValues(StatusError).Inc()
		return
	}
	r.scans.WithLabelValues(StatusOK).Inc()
	r.lastScan.WithLabelValues(symbol).Set(float64(at.Unix()))
}

// RecordStats records the activity medians of a symbol.
func (r *Recorder) RecordStats(symbol string, medianBody, medianVolume float64, hasBody, hasVolume bool) {
	if hasBody {
		r.medianBody.WithLabelValues(symbol).Set(medianBody)
	}
	if hasVolume {
		r.medianVolume.WithLabelValues(symbol).Set(medianVolume)
	}
}

// RecordLatency records operation latency.
func (r *Recorder) RecordLatency(op string, d time.Duration) {
	r.duration.WithLabelValues(op).Observe(d.Seconds())
}

// Registry returns the registry the metrics are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the metrics in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := New()
	at := time.Unix(1700000000, 0)

	r.RecordPatterns("AAPL", map[string]int{"fvg": 3, "bos": 0})
	r.RecordPatterns("AAPL", map[string]int{"fvg": 2})
	r.RecordScan("AAPL", nil, at)
	r.RecordScan("MSFT", errors.New("boom"), at)
	r.RecordStats("AAPL", 1.5, 1000, true, false)
	r.RecordLatency("scan", 250*time.Millisecond)

	assert.Equal(t, 5.0, testutil.ToFloat64(r.patterns.WithLabelValues("AAPL", "fvg")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.patterns.WithLabelValues("AAPL", "bos")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.scans.WithLabelValues(StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.scans.WithLabelValues(StatusError)))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(r.lastScan.WithLabelValues("AAPL")))
	assert.Equal(t, 1.5, testutil.ToFloat64(r.medianBody.WithLabelValues("AAPL")))
	assert.Equal(t, 0, testutil.CollectAndCount(r.medianVolume))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.RecordScan("AAPL", nil, time.Now())

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `scanner_scans_total{status="ok"} 1`)
	// Own registry: no Go runtime collectors
	assert.NotContains(t, string(body), "go_goroutines")
}

func TestRecorders_AreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordScan("X", nil, time.Now())

	assert.Equal(t, 0.0, testutil.ToFloat64(b.scans.WithLabelValues(StatusOK)))
}

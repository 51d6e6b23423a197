package resilience

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-scanner/internal/errors"
)

var errServer = errors.NewProviderError("test", 503, "unavailable", nil)

func call(cb *CircuitBreaker, err error) error {
	_, got := Execute(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 1, err
	})
	return got
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("yahoo", CircuitBreakerConfig{FailureThreshold: 3, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		assert.Equal(t, errServer, call(cb, errServer))
	}
	assert.Equal(t, CircuitOpen, cb.State())

	err := call(cb, nil)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Contains(t, err.Error(), "yahoo")

	stats := cb.Stats()
	assert.Equal(t, int64(4), stats.TotalRequests)
	assert.Equal(t, int64(3), stats.TotalFailures)
	assert.Equal(t, int64(1), stats.TotalRejected)
	assert.Equal(t, 75.0, stats.FailureRate())
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("yahoo", CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute})

	call(cb, errServer)
	call(cb, nil)
	call(cb, errServer)

	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("yahoo", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})
	cb.now = func() time.Time { return now }

	call(cb, errServer)
	require.Equal(t, CircuitOpen, cb.State())

	now = now.Add(2 * time.Minute)
	call(cb, errServer)
	assert.Equal(t, CircuitOpen, cb.State(), "failure while half-open reopens")

	now = now.Add(2 * time.Minute)
	require.NoError(t, call(cb, nil))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	cb := NewCircuitBreaker("yahoo", CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          time.Minute,
		IsFailure:        func(err error) bool { return !errors.Is(err, errors.ErrSymbolNotFound) },
	})

	notFound := errors.NewProviderError("test", 404, "no data", nil)
	call(cb, notFound)
	call(cb, context.Canceled)
	assert.Equal(t, CircuitClosed, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestHealthMonitor(t *testing.T) {
	m := NewHealthMonitor(time.Second)
	m.RegisterComponent("database", DatabaseHealthCheck(func(ctx context.Context) error { return nil }))
	m.RegisterComponent("scans", FreshnessHealthCheck(func() time.Time { return time.Now().Add(-time.Hour) }, time.Minute))

	health := m.Check(context.Background())
	assert.Equal(t, HealthStatusDegraded, health.Status)
	require.Len(t, health.Components, 2)
	assert.Equal(t, "database", health.Components[0].Name)
	assert.Equal(t, HealthStatusHealthy, health.Components[0].Status)
	assert.Equal(t, HealthStatusDegraded, health.Components[1].Status)

	cb := NewCircuitBreaker("yahoo", CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour})
	call(cb, errServer)
	m.RegisterComponent("provider", CircuitHealthCheck(cb))

	rec := httptest.NewRecorder()
	m.HealthHTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body SystemHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, HealthStatusUnhealthy, body.Status)
	assert.Len(t, body.Components, 3)
}

func TestHealthChecks(t *testing.T) {
	ctx := context.Background()

	failed := DatabaseHealthCheck(func(ctx context.Context) error { return errors.ErrDatabaseError })(ctx)
	assert.Equal(t, HealthStatusUnhealthy, failed.Status)
	assert.Contains(t, failed.Message, "database error")

	fresh := FreshnessHealthCheck(func() time.Time { return time.Time{} }, time.Minute)(ctx)
	assert.Equal(t, HealthStatusHealthy, fresh.Status)

	cb := NewCircuitBreaker("yahoo", DefaultCircuitBreakerConfig())
	assert.Equal(t, HealthStatusHealthy, CircuitHealthCheck(cb)(ctx).Status)
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerMeasuresElapsedTime(t *testing.T) {
	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 10*time.Millisecond)
}

func TestTimerObserveDuration(t *testing.T) {
	timer := NewTimer()
	// Observing must not panic and must record a sample
	timer.ObserveDuration(SchedulingLatency)
}

func TestHandlerServesMetrics(t *testing.T) {
	JobsSubmitted.Inc()
	SimulatedTime.Set(42.5)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "burrow_jobs_submitted_total")
	assert.Contains(t, body, "burrow_simulated_time_seconds")
}

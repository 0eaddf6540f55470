package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePricing(t *testing.T) {
	m := NewMetrics("pricer-test")

	m.ObservePricing("crr", "european", time.Millisecond, nil)
	m.ObservePricing("crr", "european", time.Millisecond, nil)
	m.ObservePricing("crr", "american", time.Millisecond, errors.New("boom"))

	m.ObserveStdErr(0.05)

	body := scrape(t, m)
	assert.Contains(t, body, `pricer_runs_total{engine="crr",status="ok",style="european"} 2`)
	assert.Contains(t, body, `pricer_runs_total{engine="crr",status="error",style="american"} 1`)
	assert.Contains(t, body, `pricer_run_duration_seconds_count{engine="crr"} 3`)
	assert.Contains(t, body, "pricer_montecarlo_stderr 0.05")
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePricing("crr", "european", time.Millisecond, nil)
		m.ObserveSteps(10)
		m.ObserveStdErr(1)
		m.RegisterBuildInfo("x", "y")
		m.ObserveCache(true)
		m.ObserveCheck("c", true)
		m.ObserveJob("j", "success", time.Second)
	})
}

func TestHandlerExposesPricerMetrics(t *testing.T) {
	m := NewMetrics("pricer-test")
	m.RegisterBuildInfo("pricer", "v1.0.0")
	m.RegisterBuildInfo("pricer", "v2.0.0")
	m.ObserveSteps(500)

	body := scrape(t, m)
	assert.Contains(t, body, "pricer_lattice_steps_count 1")
	assert.Contains(t, body, `version="v1.0.0"`)
	assert.NotContains(t, body, `version="v2.0.0"`)
}

func TestObserveCacheChecksAndJobs(t *testing.T) {
	m := NewMetrics("pricer-test")
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)
	m.ObserveCheck("crr_vs_black_scholes", true)
	m.ObserveCheck("snell_vs_lsm", false)
	m.ObserveJob("audit", "success", time.Second)
	m.ObserveJob("audit", "skipped", 0)

	body := scrape(t, m)
	assert.Contains(t, body, `pricer_quote_cache_total{result="hit"} 1`)
	assert.Contains(t, body, `pricer_quote_cache_total{result="miss"} 2`)
	assert.Contains(t, body, `pricer_cross_validation_passed{check="crr_vs_black_scholes"} 1`)
	assert.Contains(t, body, `pricer_cross_validation_passed{check="snell_vs_lsm"} 0`)
	assert.Contains(t, body, `scheduler_job_runs_total{job="audit",status="skipped"} 1`)
	assert.Contains(t, body, `scheduler_job_duration_seconds_count{job="audit"} 1`)
}

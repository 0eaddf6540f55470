package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/pricer/config"
	"github.com/wyfcoding/pricer/logging"
	"github.com/wyfcoding/pricer/metrics"
	"github.com/wyfcoding/pricer/middleware"
	"github.com/wyfcoding/pricer/pricing"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	var cfg config.Config
	require.NoError(t, config.Load("../../configs/pricer.toml", &cfg))
	cfg.Server.Environment = "test"
	cfg.Server.HTTP.WriteTimeout = 5 * time.Second
	return &cfg
}

func TestRouter(t *testing.T) {
	cfg := testConfig(t)
	var logs bytes.Buffer
	logger := logging.NewWithWriter(logging.Config{Service: "pricer", Module: "test", Level: "info"}, &logs)
	m := metrics.NewMetrics("pricer_router_test")
	svc := pricing.NewService(cfg.Pricing, cfg.MonteCarlo, m, logger)
	engine := newRouter(cfg, svc, m, logger)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/quotes", strings.NewReader(
		`{"option":"call","strikes":[100],"style":"european","spot":100,"steps":2,"binomial":{"up":0.1,"down":-0.05,"rate":0.02}}`))
	req.Header.Set(middleware.HeaderXRequestID, "req-1")
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(middleware.HeaderXRequestID))
	assert.Contains(t, w.Body.String(), `"request_id":"req-1"`)
	assert.Contains(t, logs.String(), `"request_id":"req-1"`)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, cfg.Metrics.Path, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `pricer_runs_total`)
	assert.Contains(t, w.Body.String(), `path="/v1/quotes"`)
}

func TestRouterWithoutMetrics(t *testing.T) {
	cfg := testConfig(t)
	logger := logging.NewWithWriter(logging.Config{Service: "pricer", Level: "error"}, &bytes.Buffer{})
	svc := pricing.NewService(cfg.Pricing, cfg.MonteCarlo, nil, logger)
	engine := newRouter(cfg, svc, nil, logger)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, cfg.Metrics.Path, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

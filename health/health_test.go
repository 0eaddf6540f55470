package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRun(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register("b", func(context.Context) error { return nil })
	r.Register("a", func(context.Context) error { return errors.New("down") })
	r.Register("nil", nil)

	report := r.Run(context.Background())
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "a", report.Checks[0].Name)
	assert.False(t, report.Checks[0].Healthy)
	assert.Equal(t, "down", report.Checks[0].Error)
	assert.True(t, report.Checks[1].Healthy)
}

func TestRegistryRecoversPanic(t *testing.T) {
	r := NewRegistry(0)
	r.Register("boom", func(context.Context) error { panic("bad") })

	report := r.Run(context.Background())
	require.Len(t, report.Checks, 1)
	assert.False(t, report.Checks[0].Healthy)
	assert.Contains(t, report.Checks[0].Error, "panic: bad")
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRegistry(time.Second)
	healthy := true
	r.Register("self", func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("broken")
	})

	engine := gin.New()
	engine.GET("/healthz", r.Handler())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var report Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "ok", report.Status)

	healthy = false
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

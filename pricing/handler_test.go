package pricing

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/pricer/response"
	"github.com/wyfcoding/pricer/xerrors"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewHandler(newTestService(t)).Register(engine)
	return engine
}

func post(t *testing.T, engine *gin.Engine, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func TestHandlerQuote(t *testing.T) {
	engine := newTestRouter(t)
	w, body := post(t, engine, "/v1/quotes", `{
		"option": "call",
		"strikes": [100],
		"style": "european",
		"method": "aggregated",
		"spot": 100,
		"steps": 2,
		"binomial": {"up": 0.1, "down": -0.05, "rate": 0.02}
	}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["code"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "6.548763", data["price"])
	assert.InDelta(t, 6.548763296168149, data["raw_price"].(float64), 1e-9)
	assert.Equal(t, "aggregated", data["method"])
}

func TestHandlerQuoteErrors(t *testing.T) {
	engine := newTestRouter(t)
	tests := []struct {
		name   string
		body   string
		status int
		code   int
	}{
		{"malformed json", `{"option":`, http.StatusBadRequest, xerrors.CodeInvalidParameters},
		{"unknown method", `{"option":"call","strikes":[100],"style":"european","method":"closed","spot":100,"steps":2,
			"binomial":{"up":0.1,"down":-0.05,"rate":0.02}}`, http.StatusBadRequest, xerrors.CodeUnknownMethod},
		{"overflow", `{"option":"call","strikes":[100],"style":"european","method":"aggregated","spot":100,"steps":1500,
			"binomial":{"up":0.1,"down":-0.05,"rate":0.02}}`, http.StatusUnprocessableEntity, xerrors.CodeOverflowRisk},
		{"collar", `{"option":"put","strikes":[100],"style":"american","spot":100,"steps":2,
			"binomial":{"up":0.1,"down":0.05,"rate":0.02}}`, http.StatusBadRequest, xerrors.CodeInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := post(t, engine, "/v1/quotes", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.EqualValues(t, tt.code, body["code"])
			assert.NotEmpty(t, body["detail"])
		})
	}
}

func TestHandlerBatch(t *testing.T) {
	engine := newTestRouter(t)
	w, body := post(t, engine, "/v1/quotes/batch", `{"requests": [
		{"option":"call","strikes":[100],"style":"european","spot":100,"steps":2,"binomial":{"up":0.1,"down":-0.05,"rate":0.02}},
		{"option":"put","strikes":[120],"style":"american","spot":100,"steps":3,"binomial":{"up":0.1,"down":-0.05,"rate":0.02},"include_exercise":true}
	]}`)
	require.Equal(t, http.StatusOK, w.Code)

	quotes := body["data"].(map[string]any)["quotes"].([]any)
	require.Len(t, quotes, 2)
	assert.Equal(t, "call", quotes[0].(map[string]any)["option"])
	second := quotes[1].(map[string]any)
	assert.Equal(t, "20", second["price"])
	assert.NotNil(t, second["exercise"])
}

func TestHandlerCrossValidation(t *testing.T) {
	engine := newTestRouter(t)
	w, body := post(t, engine, "/v1/cross-validation", `{
		"option": "put", "strike": 100, "spot": 100, "maturity": 1, "steps": 50,
		"black_scholes": {"sigma": 0.2, "rate": 0.05}, "paths": 2000, "seed": 3
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	data := body["data"].(map[string]any)
	assert.InDelta(t, 5.573526022256971, data["black_scholes"].(float64), 1e-9)
	assert.NotEmpty(t, data["checks"])

	w, body = post(t, engine, "/v1/cross-validation", `{"option":"double_digit","strike":100,"spot":100,"maturity":1,"steps":5,
		"black_scholes":{"sigma":0.2,"rate":0.05}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.EqualValues(t, xerrors.CodeInvalidParameters, body["code"])
}

func TestHandlerResponseShape(t *testing.T) {
	engine := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/quotes", bytes.NewBufferString(`[]`))
	engine.ServeHTTP(w, req)

	var out response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, xerrors.CodeInvalidParameters, out.Code)
	assert.Equal(t, "invalid parameters", out.Msg)
}

func TestHandlerPathRoutes(t *testing.T) {
	engine := newTestRouter(t)

	w, body := post(t, engine, "/v1/quotes/path", `{
		"kind": "barrier", "option": "call", "strike": 100, "barrier": 100, "direction": "up",
		"spot": 100, "maturity": 1, "black_scholes": {"sigma": 0.2, "rate": 0.05}, "paths": 2000
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := body["data"].(map[string]any)
	assert.Equal(t, "0", data["price"])
	assert.EqualValues(t, testMonteCarloConfig().TimeSteps, data["time_steps"])

	w, body = post(t, engine, "/v1/quotes/path", `{"kind":"barrier","option":"put","strike":100,"spot":100,"maturity":1,
		"black_scholes":{"sigma":0.2,"rate":0.05}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.EqualValues(t, xerrors.CodeInvalidParameters, body["code"])

	w, body = post(t, engine, "/v1/paths", `{"spot":100,"maturity":1,"sigma":0.2,"drift":0.08,"time_steps":4,"count":2,"seed":9}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data = body["data"].(map[string]any)
	assert.Len(t, data["paths"], 2)
	assert.Len(t, data["times"], 5)
	assert.InDelta(t, 0.08, data["drift"].(float64), 1e-12)
}

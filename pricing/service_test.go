package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/pricer/cache"
	"github.com/wyfcoding/pricer/config"
	"github.com/wyfcoding/pricer/logging"
	"github.com/wyfcoding/pricer/metrics"
	"github.com/wyfcoding/pricer/xerrors"
)

func testPricingConfig() config.PricingConfig {
	return config.PricingConfig{
		DefaultSteps:       100,
		MaxSteps:           5000,
		MaxAggregatedSteps: 1000,
		Precision:          6,
		Tolerance:          0.05,
		BatchConcurrency:   4,
		MaxBatchSize:       8,
	}
}

func testMonteCarloConfig() config.MonteCarloConfig {
	return config.MonteCarloConfig{
		Paths:      20000,
		Workers:    2,
		Seed:       7,
		TimeSteps:  20,
		LSMDegree:  2,
		LSMPaths:   4000,
		LSMSteps:   25,
		MaxStdErrs: 4,
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := logging.NewWithWriter(logging.Config{Service: "pricer", Module: "test", Level: "error"}, testWriter{t})
	return NewService(testPricingConfig(), testMonteCarloConfig(), metrics.NewMetrics("pricer_test"), logger)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func intPtr(v int) *int { return &v }

func concreteBinomial() *BinomialParams {
	return &BinomialParams{Up: 0.1, Down: -0.05, Rate: 0.02}
}

func TestQuoteEuropean(t *testing.T) {
	svc := newTestService(t)

	for _, method := range []string{"", "iterative", "aggregated"} {
		q, err := svc.Quote(context.Background(), &QuoteRequest{
			Option:   "call",
			Strikes:  []float64{100},
			Style:    StyleEuropean,
			Method:   method,
			Spot:     100,
			Steps:    intPtr(2),
			Binomial: concreteBinomial(),
		})
		require.NoError(t, err, method)
		assert.InDelta(t, 6.548763296168149, q.RawPrice, 1e-9)
		assert.Equal(t, "6.548763", q.Price.String())
		assert.Equal(t, 2, q.Steps)
		assert.False(t, q.Model.Calibrated)
		assert.InDelta(t, 0.4666666666666667, q.Model.RiskNeutralProb, 1e-12)
		assert.Nil(t, q.Exercise)
	}
}

func TestQuoteAmericanWithExercise(t *testing.T) {
	svc := newTestService(t)
	req := &QuoteRequest{
		Option:          "put",
		Strikes:         []float64{120},
		Style:           StyleAmerican,
		Spot:            100,
		Steps:           intPtr(3),
		Binomial:        concreteBinomial(),
		IncludeExercise: true,
	}

	q, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, q.RawPrice, 1e-9)
	require.NotNil(t, q.Exercise)
	assert.Equal(t, 3, q.Exercise.Steps)
	require.Len(t, q.Exercise.Layers, 4)
	assert.Equal(t, []bool{true, true, false}, q.Exercise.Layers[2])
	assert.Len(t, q.Exercise.Boundary, 4)

	req.Style = StyleEuropean
	req.IncludeExercise = false
	q, err = svc.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 14.333239240703191, q.RawPrice, 1e-9)
}

func TestQuoteBlackScholesApproximation(t *testing.T) {
	svc := newTestService(t)
	q, err := svc.Quote(context.Background(), &QuoteRequest{
		Option:       "put",
		Strikes:      []float64{100},
		Style:        StyleBSApprox,
		Spot:         100,
		Steps:        intPtr(500),
		Maturity:     1,
		BlackScholes: &BlackScholesParams{Sigma: 0.2, Rate: 0.05},
	})
	require.NoError(t, err)
	assert.True(t, q.Model.Calibrated)
	assert.InDelta(t, 6.0896024, q.RawPrice, 1e-5)
	assert.Equal(t, 500, q.Steps)
}

func TestQuoteDefaultsSteps(t *testing.T) {
	svc := newTestService(t)
	q, err := svc.Quote(context.Background(), &QuoteRequest{
		Option:   "call",
		Strikes:  []float64{100},
		Style:    StyleEuropean,
		Spot:     100,
		Binomial: concreteBinomial(),
	})
	require.NoError(t, err)
	assert.Equal(t, 100, q.Steps)
}

func TestQuoteErrors(t *testing.T) {
	svc := newTestService(t)
	valid := func() *QuoteRequest {
		return &QuoteRequest{
			Option:   "call",
			Strikes:  []float64{100},
			Style:    StyleEuropean,
			Spot:     100,
			Steps:    intPtr(2),
			Binomial: concreteBinomial(),
		}
	}

	tests := []struct {
		name   string
		mutate func(r *QuoteRequest)
		want   error
	}{
		{"unknown method", func(r *QuoteRequest) { r.Method = "closed" }, xerrors.ErrUnknownMethod},
		{"collar violated", func(r *QuoteRequest) { r.Binomial.Rate = 0.2 }, xerrors.ErrInvalidParameters},
		{"negative strike", func(r *QuoteRequest) { r.Strikes = []float64{-1} }, xerrors.ErrInvalidParameters},
		{"unknown option", func(r *QuoteRequest) { r.Option = "straddle" }, xerrors.ErrInvalidParameters},
		{"no model", func(r *QuoteRequest) { r.Binomial = nil }, xerrors.ErrInvalidParameters},
		{"both models", func(r *QuoteRequest) { r.BlackScholes = &BlackScholesParams{Sigma: 0.2} }, xerrors.ErrInvalidParameters},
		{"bs approx without bs", func(r *QuoteRequest) { r.Style = StyleBSApprox }, xerrors.ErrInvalidParameters},
		{"digit needs two strikes", func(r *QuoteRequest) { r.Option = "double_digit" }, xerrors.ErrInvalidParameters},
		{"too many steps", func(r *QuoteRequest) { r.Steps = intPtr(5001) }, xerrors.ErrInvalidParameters},
		{"aggregated overflow", func(r *QuoteRequest) { r.Method = "aggregated"; r.Steps = intPtr(1001) }, xerrors.ErrOverflowRisk},
		{"calibration without maturity", func(r *QuoteRequest) {
			r.Binomial = nil
			r.BlackScholes = &BlackScholesParams{Sigma: 0.2, Rate: 0.05}
		}, xerrors.ErrInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			_, err := svc.Quote(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := svc.Quote(context.Background(), nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
}

func TestQuoteBatchKeepsOrder(t *testing.T) {
	svc := newTestService(t)
	reqs := []QuoteRequest{
		{Option: "call", Strikes: []float64{100}, Style: StyleEuropean, Spot: 100, Steps: intPtr(2), Binomial: concreteBinomial()},
		{Option: "put", Strikes: []float64{120}, Style: StyleAmerican, Spot: 100, Steps: intPtr(3), Binomial: concreteBinomial()},
		{Option: "double_digit", Strikes: []float64{90, 110}, Style: StyleEuropean, Spot: 100, Steps: intPtr(2), Binomial: concreteBinomial()},
	}

	quotes, err := svc.QuoteBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, quotes, 3)
	assert.InDelta(t, 6.548763296168149, quotes[0].RawPrice, 1e-9)
	assert.InDelta(t, 20.0, quotes[1].RawPrice, 1e-9)
	assert.InDelta(t, 0.751847579990602, quotes[2].RawPrice, 1e-9)
}

func TestQuoteBatchErrors(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.QuoteBatch(context.Background(), nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)

	_, err = svc.QuoteBatch(context.Background(), make([]QuoteRequest, 9))
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)

	reqs := []QuoteRequest{
		{Option: "call", Strikes: []float64{100}, Style: StyleEuropean, Spot: 100, Steps: intPtr(2), Binomial: concreteBinomial()},
		{Option: "call", Strikes: []float64{100}, Style: StyleEuropean, Method: "closed", Spot: 100, Steps: intPtr(2), Binomial: concreteBinomial()},
	}
	_, err = svc.QuoteBatch(context.Background(), reqs)
	require.ErrorIs(t, err, xerrors.ErrUnknownMethod)
	xe, ok := xerrors.FromError(err)
	require.True(t, ok)
	assert.Equal(t, 1, xe.Context["index"])
}

func TestUpdateConfig(t *testing.T) {
	svc := newTestService(t)
	pcfg := testPricingConfig()
	pcfg.MaxAggregatedSteps = 10
	svc.OnConfigReload(&config.Config{Pricing: pcfg, MonteCarlo: testMonteCarloConfig()})

	_, err := svc.Quote(context.Background(), &QuoteRequest{
		Option:   "call",
		Strikes:  []float64{100},
		Style:    StyleEuropean,
		Method:   "aggregated",
		Spot:     100,
		Steps:    intPtr(11),
		Binomial: concreteBinomial(),
	})
	assert.ErrorIs(t, err, xerrors.ErrOverflowRisk)
}

func TestSelfCheck(t *testing.T) {
	svc := newTestService(t)
	assert.NoError(t, svc.SelfCheck(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.SelfCheck(ctx), context.Canceled)
}

func TestQuoteCache(t *testing.T) {
	c, err := cache.NewBigCache(time.Minute, 8)
	require.NoError(t, err)
	defer c.Close()

	logger := logging.NewWithWriter(logging.Config{Service: "pricer", Module: "test", Level: "error"}, testWriter{t})
	svc := NewService(testPricingConfig(), testMonteCarloConfig(), metrics.NewMetrics("pricer_test"), logger, WithQuoteCache(c))

	req := &QuoteRequest{
		Option:   "call",
		Strikes:  []float64{100},
		Style:    StyleEuropean,
		Spot:     100,
		Steps:    intPtr(2),
		Binomial: concreteBinomial(),
	}
	first, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	second, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Price.String(), second.Price.String())
	assert.InDelta(t, first.RawPrice, second.RawPrice, 1e-12)
	assert.Equal(t, 1, c.Len())

	svc.UpdateConfig(testPricingConfig(), testMonteCarloConfig())
	assert.Equal(t, 0, c.Len())
}

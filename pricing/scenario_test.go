package pricing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/pricer/config"
	"github.com/wyfcoding/pricer/xerrors"
)

func testScenario() config.ScenarioConfig {
	return config.ScenarioConfig{
		Spot:         100,
		Maturity:     1,
		Steps:        2,
		Method:       "iterative",
		Binomial:     config.BinomialConfig{Up: 0.1, Down: -0.05, Rate: 0.02},
		BlackScholes: config.BlackScholesConfig{Sigma: 0.2, Rate: 0.05},
		Options: []config.OptionConfig{
			{Kind: "call", Strikes: []float64{100}},
			{Kind: "put", Strikes: []float64{100}},
			{Kind: "double_digit", Strikes: []float64{90, 110}},
		},
	}
}

func TestRunScenario(t *testing.T) {
	svc := newTestService(t)
	rows, err := svc.RunScenario(context.Background(), testScenario())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "call", rows[0].Option)
	assert.InDelta(t, 6.548763296168149, rows[0].European, 1e-9)
	assert.InDelta(t, 6.548763296168149, rows[0].American, 1e-9)

	assert.InDelta(t, 2.6656414199666805, rows[1].European, 1e-9)
	assert.InDelta(t, 2.6656414199666805, rows[1].American, 1e-9)

	// 期初价格位于区间内，立即行权即得 1。
	assert.InDelta(t, 0.751847579990602, rows[2].European, 1e-9)
	assert.InDelta(t, 1.0, rows[2].American, 1e-12)
	assert.InDelta(t, 1.0, rows[2].AmericanBSApprox, 1e-12)

	for _, r := range rows {
		assert.GreaterOrEqual(t, r.American, r.European)
		assert.Greater(t, r.AmericanBSApprox, 0.0)
	}
}

func TestRunScenarioSplitsLargeBatches(t *testing.T) {
	svc := newTestService(t)
	sc := testScenario()
	for range 4 {
		sc.Options = append(sc.Options, config.OptionConfig{Kind: "put", Strikes: []float64{120}})
	}
	// 7 个期权共 21 个请求，超过 MaxBatchSize=8。
	rows, err := svc.RunScenario(context.Background(), sc)
	require.NoError(t, err)
	require.Len(t, rows, 7)
	assert.InDelta(t, 20.0, rows[6].American, 1e-9)
}

func TestRunScenarioErrors(t *testing.T) {
	svc := newTestService(t)

	sc := testScenario()
	sc.Options = nil
	_, err := svc.RunScenario(context.Background(), sc)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)

	sc = testScenario()
	sc.Method = "closed"
	_, err = svc.RunScenario(context.Background(), sc)
	assert.ErrorIs(t, err, xerrors.ErrUnknownMethod)

	sc = testScenario()
	sc.Binomial.Rate = 0.5
	_, err = svc.RunScenario(context.Background(), sc)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
}

func TestWriteScenario(t *testing.T) {
	var buf bytes.Buffer
	err := WriteScenario(&buf, []ScenarioRow{
		{Option: "call", Strikes: []float64{100}, European: 6.548763296168149, American: 6.548763296168149, AmericanBSApprox: 9.5},
		{Option: "double_digit", Strikes: []float64{90, 110}, European: 0.751847579990602, American: 1, AmericanBSApprox: 1},
	}, 4)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "AMERICAN (BS APPROX)")
	assert.Contains(t, out, "6.5488")
	assert.Contains(t, out, "90/110")
	assert.Contains(t, out, "1.0000")
	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte("\n")))
}

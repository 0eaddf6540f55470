package finance

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wyfcoding/pricer/xerrors"
)

type stubPayoff struct{}

func (stubPayoff) Payoff(float64) float64 { return 1 }

func TestBlackScholesPrice(t *testing.T) {
	bsc := NewBlackScholesCalculator()
	params := BSMParams{Sigma: 0.2, Rate: 0.05}

	call, err := bsc.Price(Call{Strike: 100}, 100, params, 1)
	require.NoError(t, err)
	assert.InDelta(t, 10.450583572185565, call, 1e-9)

	put, err := bsc.Price(Put{Strike: 100}, 100, params, 1)
	require.NoError(t, err)
	assert.InDelta(t, 5.573526022256971, put, 1e-9)

	dd, err := bsc.Price(DoubleDigit{Lower: 90, Upper: 110}, 100, params, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.36025968682275267, dd, 1e-9)

	intrinsic, err := bsc.Price(Call{Strike: 90}, 100, params, 0)
	require.NoError(t, err)
	assert.Equal(t, 10.0, intrinsic)

	free, err := bsc.Price(Call{Strike: 0}, 100, params, 1)
	require.NoError(t, err)
	assert.Equal(t, 100.0, free)

	_, err = bsc.Price(stubPayoff{}, 100, params, 1)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
	_, err = bsc.Price(Call{Strike: 100}, 100, BSMParams{Sigma: -0.1}, 1)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
	_, err = bsc.Price(Call{Strike: 100}, 0, params, 1)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
}

func TestCalibratedDoubleDigitTracksClosedForm(t *testing.T) {
	params := BSMParams{Sigma: 0.2, Rate: 0.05}
	pf := DoubleDigit{Lower: 90, Upper: 110}
	c, err := NewContract(pf, LatticeSpec{InitialPrice: 100, Steps: 500}, 1, nil, nil)
	require.NoError(t, err)
	model, err := c.Calibrate(params)
	require.NoError(t, err)
	crr, err := c.PriceEuropean(model, MethodIterative)
	require.NoError(t, err)

	closed, err := NewBlackScholesCalculator().Price(pf, 100, params, 1)
	require.NoError(t, err)
	assert.InDelta(t, closed, crr, 0.01)
}

func TestMonteCarloEuropean(t *testing.T) {
	ctx := context.Background()
	params := BSMParams{Sigma: 0.2, Rate: 0.05}
	mc, err := NewMonteCarloPricer(200000, 4, 42)
	require.NoError(t, err)

	res, err := mc.PriceEuropean(ctx, Call{Strike: 100}, 100, params, 1)
	require.NoError(t, err)
	assert.Equal(t, 200000, res.Paths)
	assert.Greater(t, res.StdErr, 0.0)
	assert.Less(t, res.StdErr, 0.1)
	assert.True(t, res.Within(10.450583572185565, 4), "mc %v ± %v", res.Price, res.StdErr)
	assert.InDelta(t, res.Price-1.96*res.StdErr, res.Low, 1e-12)
	assert.InDelta(t, res.Price+1.96*res.StdErr, res.High, 1e-12)

	again, err := mc.PriceEuropean(ctx, Call{Strike: 100}, 100, params, 1)
	require.NoError(t, err)
	assert.Equal(t, res, again)
}

func TestMonteCarloPathDependent(t *testing.T) {
	ctx := context.Background()
	params := BSMParams{Sigma: 0.2, Rate: 0.05}
	mc, err := NewMonteCarloPricer(50000, 3, 7)
	require.NoError(t, err)

	asian, err := mc.PricePathDependent(ctx, AsianOption{Underlying: Call{Strike: 100}}, 100, params, 1, 50)
	require.NoError(t, err)
	assert.Greater(t, asian.Price, 0.0)
	assert.Less(t, asian.Price, 10.450583572185565)

	knocked, err := mc.PricePathDependent(ctx, BarrierOption{Underlying: Call{Strike: 100}, Barrier: 100, Up: true}, 100, params, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, knocked.Price)

	far, err := mc.PricePathDependent(ctx, BarrierOption{Underlying: Call{Strike: 100}, Barrier: 1e6, Up: true}, 100, params, 1, 10)
	require.NoError(t, err)
	assert.True(t, far.Within(10.450583572185565, 4), "mc %v ± %v", far.Price, far.StdErr)

	_, err = mc.PricePathDependent(ctx, AsianOption{Underlying: Call{Strike: 100}}, 100, params, 1, 0)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
}

func TestMonteCarloCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mc, err := NewMonteCarloPricer(10000, 2, 1)
	require.NoError(t, err)
	_, err = mc.PriceEuropean(ctx, Call{Strike: 100}, 100, BSMParams{Sigma: 0.2, Rate: 0.05}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMonteCarloValidation(t *testing.T) {
	_, err := NewMonteCarloPricer(1, 1, 0)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
	_, err = NewMonteCarloPricer(100, 0, 0)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
}

func TestSamplePath(t *testing.T) {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(3)}
	path, err := SamplePath(100, []float64{0, 0.25, 0.5, 1}, 0.05, 0.2, normal)
	require.NoError(t, err)
	require.Len(t, path, 4)
	assert.Equal(t, 100.0, path[0])
	for _, s := range path {
		assert.Greater(t, s, 0.0)
	}

	_, err = SamplePath(100, []float64{0, 0.5, 0.5}, 0.05, 0.2, normal)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
	_, err = SamplePath(100, nil, 0.05, 0.2, normal)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)

	mc := &MonteCarloPricer{Paths: 2, Workers: 1}
	_, err = mc.PricePathDependent(context.Background(), nil, 100, BSMParams{Sigma: 0.2}, 1, 5)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
}

func TestSampleRealWorldPathsUsesDrift(t *testing.T) {
	ctx := context.Background()
	mc, err := NewMonteCarloPricer(2, 1, 11)
	require.NoError(t, err)

	flat, err := mc.SampleRealWorldPaths(ctx, 100, BSMParams{Sigma: 0.2, Rate: 0.05}, 1, 4, 3)
	require.NoError(t, err)
	drifted, err := mc.SampleRealWorldPaths(ctx, 100, BSMParams{Sigma: 0.2, Rate: 0.05, Drift: 0.5}, 1, 4, 3)
	require.NoError(t, err)
	require.Len(t, flat, 3)
	require.Len(t, drifted, 3)

	// 相同种子下两组路径只差确定性的漂移因子 e^{μt}
	grid := UniformGrid(1, 4)
	for i := range flat {
		require.Len(t, flat[i], 5)
		assert.Equal(t, 100.0, drifted[i][0])
		for k := 1; k < len(grid); k++ {
			assert.InDelta(t, math.Exp(0.5*grid[k]), drifted[i][k]/flat[i][k], 1e-9)
		}
	}

	again, err := mc.SampleRealWorldPaths(ctx, 100, BSMParams{Sigma: 0.2, Rate: 0.05, Drift: 0.5}, 1, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, drifted, again)
}

func TestSampleRealWorldPathsValidation(t *testing.T) {
	ctx := context.Background()
	mc, err := NewMonteCarloPricer(2, 1, 1)
	require.NoError(t, err)
	params := BSMParams{Sigma: 0.2, Rate: 0.05, Drift: 0.1}

	_, err = mc.SampleRealWorldPaths(ctx, 100, params, 1, 0, 1)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
	_, err = mc.SampleRealWorldPaths(ctx, 100, params, 0, 4, 1)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
	_, err = mc.SampleRealWorldPaths(ctx, 100, params, 1, 4, 0)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
	_, err = mc.SampleRealWorldPaths(ctx, 100, BSMParams{Sigma: 0.2, Drift: math.NaN()}, 1, 4, 1)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = mc.SampleRealWorldPaths(cancelled, 100, params, 1, 4, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUniformGrid(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1, 1.5, 2}, UniformGrid(2, 4))
}

func TestLSMAmericanPut(t *testing.T) {
	lsm := NewLSMPricer(0, 20000, 11)
	assert.Equal(t, 2, lsm.Degree)

	res, err := lsm.ComputePrice(AmericanOptionParams{S0: 100, K: 100, T: 1, R: 0.05, Sigma: 0.2, IsPut: true, Steps: 50})
	require.NoError(t, err)
	assert.InDelta(t, 6.0914517, res.Price, 0.25)
	assert.Greater(t, res.StdErr, 0.0)

	_, err = lsm.ComputePrice(AmericanOptionParams{S0: 100, K: 100, T: 0, R: 0.05, Sigma: 0.2, IsPut: true, Steps: 50})
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)
}

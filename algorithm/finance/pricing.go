// Package finance - 期权定价算法：二叉树（CRR）、Black-Scholes 与蒙特卡洛。
package finance

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wyfcoding/pricer/xerrors"
)

// BlackScholesCalculator Black-Scholes 期权定价计算器，用作二叉树定价的连续时间对照。
type BlackScholesCalculator struct {
	norm distuv.Normal
}

// NewBlackScholesCalculator 创建 Black-Scholes 计算器。
func NewBlackScholesCalculator() *BlackScholesCalculator {
	return &BlackScholesCalculator{norm: distuv.UnitNormal}
}

// Price 计算欧式期权价格。支持 Call、Put 与 DoubleDigit（区间现金或无）。
// expiry 为 0 时直接返回 payoff(spot)。
func (bsc *BlackScholesCalculator) Price(payoff Payoff, spot float64, params BSMParams, expiry float64) (float64, error) {
	if payoff == nil {
		return 0, xerrors.InvalidParameters("payoff is required")
	}
	if !isFinite(spot) || spot <= 0 {
		return 0, xerrors.InvalidParameters("spot %v must be positive", spot)
	}
	if !isFinite(expiry) || expiry < 0 {
		return 0, xerrors.InvalidParameters("expiry %v must be non-negative", expiry)
	}
	if err := params.Validate(); err != nil {
		return 0, err
	}
	if expiry == 0 {
		return payoff.Payoff(spot), nil
	}

	switch p := payoff.(type) {
	case Call:
		return bsc.call(spot, p.Strike, params, expiry), nil
	case Put:
		return bsc.put(spot, p.Strike, params, expiry), nil
	case DoubleDigit:
		return bsc.doubleDigit(spot, p.Lower, p.Upper, params, expiry), nil
	default:
		return 0, xerrors.InvalidParameters("payoff %T has no closed form", payoff)
	}
}

func (bsc *BlackScholesCalculator) call(s, k float64, params BSMParams, t float64) float64 {
	if k == 0 {
		return s
	}
	d1, d2 := bsc.d1d2(s, k, params, t)
	return s*bsc.norm.CDF(d1) - k*math.Exp(-params.Rate*t)*bsc.norm.CDF(d2)
}

func (bsc *BlackScholesCalculator) put(s, k float64, params BSMParams, t float64) float64 {
	if k == 0 {
		return 0
	}
	d1, d2 := bsc.d1d2(s, k, params, t)
	return k*math.Exp(-params.Rate*t)*bsc.norm.CDF(-d2) - s*bsc.norm.CDF(-d1)
}

// doubleDigit e^{-rT} (N(d2(L)) - N(d2(U)))，即到期落在 (L, U) 的风险中性概率的折现。
func (bsc *BlackScholesCalculator) doubleDigit(s, lower, upper float64, params BSMParams, t float64) float64 {
	inside := bsc.aboveProb(s, lower, params, t) - bsc.aboveProb(s, upper, params, t)
	return math.Exp(-params.Rate*t) * inside
}

// aboveProb 风险中性测度下 S_T > k 的概率 N(d2)。
func (bsc *BlackScholesCalculator) aboveProb(s, k float64, params BSMParams, t float64) float64 {
	if k == 0 {
		return 1
	}
	_, d2 := bsc.d1d2(s, k, params, t)
	return bsc.norm.CDF(d2)
}

func (bsc *BlackScholesCalculator) d1d2(s, k float64, params BSMParams, t float64) (float64, float64) {
	volT := params.Sigma * math.Sqrt(t)
	d1 := (math.Log(s/k) + (params.Rate+0.5*params.Sigma*params.Sigma)*t) / volT
	return d1, d1 - volT
}

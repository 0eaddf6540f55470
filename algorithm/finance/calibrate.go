package finance

import (
	"math"

	"github.com/wyfcoding/pricer/xerrors"
)

// BSMParams Black-Scholes-Merton 连续时间参数。
type BSMParams struct {
	Sigma float64 // 波动率 σ
	Rate  float64 // 连续复利无风险利率 r
	Drift float64 // 真实测度下的漂移 μ，只影响 SampleRealWorldPaths，定价一律使用 Rate
}

// Validate 检查 σ > 0 且参数有限。
func (p BSMParams) Validate() error {
	if !isFinite(p.Sigma) || !isFinite(p.Rate) || !isFinite(p.Drift) {
		return xerrors.InvalidParameters("sigma=%v rate=%v drift=%v must be finite", p.Sigma, p.Rate, p.Drift)
	}
	if p.Sigma <= 0 {
		return xerrors.InvalidParameters("volatility %v must be positive", p.Sigma)
	}
	return nil
}

// StepSize 步长 h = T / N。
func StepSize(maturity float64, steps int) (float64, error) {
	if steps <= 0 {
		return 0, xerrors.InvalidParameters("steps %d must be positive for calibration", steps)
	}
	if !isFinite(maturity) || maturity <= 0 {
		return 0, xerrors.InvalidParameters("time to maturity %v must be positive", maturity)
	}
	return maturity / float64(steps), nil
}

// FromBlackScholes 由连续参数标定二叉树离散参数，使步数增大时格点收敛到几何布朗运动：
//
//	U = exp((r + σ²/2)h + σ√h) - 1
//	D = exp((r + σ²/2)h - σ√h) - 1
//	R = exp(rh) - 1
//
// 结果同样经过 NewRateModel 的无套利区间检查。
func FromBlackScholes(params BSMParams, stepSize float64) (RateModel, error) {
	if err := params.Validate(); err != nil {
		return RateModel{}, err
	}
	if !isFinite(stepSize) || stepSize <= 0 {
		return RateModel{}, xerrors.InvalidParameters("step size %v must be positive", stepSize)
	}

	drift := (params.Rate + params.Sigma*params.Sigma/2) * stepSize
	shock := params.Sigma * math.Sqrt(stepSize)

	up := math.Exp(drift+shock) - 1
	down := math.Exp(drift-shock) - 1
	rate := math.Exp(params.Rate*stepSize) - 1

	return NewRateModel(up, down, rate)
}

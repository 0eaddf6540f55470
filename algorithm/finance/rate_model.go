package finance

import (
	"math"

	"github.com/wyfcoding/pricer/xerrors"
)

// RateModel 二叉树单步离散参数：上涨收益率 U、下跌收益率 D 与单期简单无风险利率 R。
// 构造后不可变。
type RateModel struct {
	up   float64
	down float64
	rate float64
	q    float64 // 风险中性上涨概率
}

// NewRateModel 校验无套利区间 D < R < U 且 D > -1 后创建 RateModel。
// 上游输入校验通过后这里仍会再次检查，不做任何截断。
func NewRateModel(up, down, rate float64) (RateModel, error) {
	if !isFinite(up) || !isFinite(down) || !isFinite(rate) {
		return RateModel{}, xerrors.InvalidParameters("up=%v down=%v rate=%v must be finite", up, down, rate)
	}
	if down <= -1 {
		return RateModel{}, xerrors.InvalidParameters("down factor %v must be greater than -1", down)
	}
	if !(down < rate && rate < up) {
		return RateModel{}, xerrors.InvalidParameters("no-arbitrage collar violated: need down < rate < up, got %v < %v < %v", down, rate, up)
	}
	return RateModel{
		up:   up,
		down: down,
		rate: rate,
		q:    (rate - down) / (up - down),
	}, nil
}

// Up 上涨收益率 U。
func (m RateModel) Up() float64 { return m.up }

// Down 下跌收益率 D。
func (m RateModel) Down() float64 { return m.down }

// Rate 单期简单无风险利率 R。
func (m RateModel) Rate() float64 { return m.rate }

// RiskNeutralProb q = (R - D) / (U - D)，在 (0, 1) 内。
func (m RateModel) RiskNeutralProb() float64 { return m.q }

// Discount 将下一期价值按单期利率折现一步。
func (m RateModel) Discount(v float64) float64 {
	return v / (1 + m.rate)
}

// expectation 在节点 (m, i) 处对子节点 (m+1, i+1)、(m+1, i) 取风险中性期望并折现。
func (m RateModel) expectation(upValue, downValue float64) float64 {
	return (m.q*upValue + (1-m.q)*downValue) / (1 + m.rate)
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

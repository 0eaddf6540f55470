package finance

import (
	"math"

	"github.com/wyfcoding/pricer/xerrors"
)

// Method 欧式期权定价方法。
type Method string

const (
	// MethodIterative 逐层倒推的 CRR 迭代算法。
	MethodIterative Method = "iterative"
	// MethodAggregated 二项展开的组合闭式算法，用作迭代结果的交叉校验。
	MethodAggregated Method = "aggregated"
)

// DefaultMaxAggregatedSteps 组合闭式算法允许的默认最大步数。
const DefaultMaxAggregatedSteps = 1000

// ParseMethod 解析方法名，未知名称直接报错而不是回退到默认值。
func ParseMethod(name string) (Method, error) {
	switch Method(name) {
	case MethodIterative, MethodAggregated:
		return Method(name), nil
	default:
		return "", xerrors.UnknownMethod(name)
	}
}

// EuropeanPricer 欧式期权二叉树定价器。无状态，可并发使用。
type EuropeanPricer struct {
	maxAggregatedSteps int
}

// EuropeanPricerOption 定义欧式定价器的配置选项。
type EuropeanPricerOption func(*EuropeanPricer)

// WithMaxAggregatedSteps 设置组合闭式算法的步数上限，超过时返回 OverflowRisk。
func WithMaxAggregatedSteps(steps int) EuropeanPricerOption {
	return func(p *EuropeanPricer) {
		if steps > 0 {
			p.maxAggregatedSteps = steps
		}
	}
}

// NewEuropeanPricer 创建欧式定价器。
func NewEuropeanPricer(opts ...EuropeanPricerOption) *EuropeanPricer {
	p := &EuropeanPricer{maxAggregatedSteps: DefaultMaxAggregatedSteps}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAggregatedSteps 返回组合闭式算法的步数上限。
func (p *EuropeanPricer) MaxAggregatedSteps() int { return p.maxAggregatedSteps }

// Price 计算欧式期权在 0 时刻的价格。
// 所有前置条件在计算开始前一次性检查。
func (p *EuropeanPricer) Price(model RateModel, payoff Payoff, spec LatticeSpec, method Method) (float64, error) {
	if payoff == nil {
		return 0, xerrors.InvalidParameters("payoff is required")
	}
	lattice, err := NewLattice(model, spec)
	if err != nil {
		return 0, err
	}

	switch method {
	case MethodIterative:
		return p.iterative(lattice, payoff), nil
	case MethodAggregated:
		if spec.Steps > p.maxAggregatedSteps {
			return 0, xerrors.OverflowRisk(spec.Steps, p.maxAggregatedSteps)
		}
		return p.aggregated(lattice, payoff), nil
	default:
		return 0, xerrors.UnknownMethod(string(method))
	}
}

// iterative 终端层赋值后逐层倒推：
// price[i] = (q*price[i+1] + (1-q)*price[i]) / (1+R)，m 从 N-1 到 0，i 从 0 到 m。
func (p *EuropeanPricer) iterative(l *Lattice, payoff Payoff) float64 {
	n := l.spec.Steps
	price := make([]float64, n+1)
	for i := 0; i <= n; i++ {
		price[i] = payoff.Payoff(l.node(n, i))
	}
	for m := n - 1; m >= 0; m-- {
		for i := 0; i <= m; i++ {
			price[i] = l.model.expectation(price[i+1], price[i])
		}
	}
	return price[0]
}

// aggregated 组合闭式：N!/(1+R)^N * Σ payoff(S(N,i)) q^i (1-q)^(N-i) / (i!(N-i)!)。
// 二项系数与概率权重在对数空间计算，阶乘本身不会被显式求值。
func (p *EuropeanPricer) aggregated(l *Lattice, payoff Payoff) float64 {
	n := l.spec.Steps
	q := l.model.q
	logQ := math.Log(q)
	logOneMinusQ := math.Log1p(-q)
	logNFact := lgamma(n + 1)

	sum := 0.0
	for i := 0; i <= n; i++ {
		v := payoff.Payoff(l.node(n, i))
		if v == 0 {
			continue
		}
		logWeight := logNFact - lgamma(i+1) - lgamma(n-i+1) +
			float64(i)*logQ + float64(n-i)*logOneMinusQ
		sum += v * math.Exp(logWeight)
	}
	return sum / math.Pow(1+l.model.rate, float64(n))
}

func lgamma(x int) float64 {
	v, _ := math.Lgamma(float64(x))
	return v
}

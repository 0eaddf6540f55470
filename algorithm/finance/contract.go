package finance

import "github.com/wyfcoding/pricer/xerrors"

// EuropeanPriceable 能以欧式方式定价的合约。
type EuropeanPriceable interface {
	PriceEuropean(model RateModel, method Method) (float64, error)
}

// AmericanPriceable 能以美式方式定价的合约。
type AmericanPriceable interface {
	PriceAmerican(model RateModel) (*PricingResult, error)
	ApproximateBlackScholes(params BSMParams) (*PricingResult, error)
}

// Contract 将收益函数、格点规格与到期期限绑定在一起。
// 它同时实现 EuropeanPriceable 与 AmericanPriceable。
type Contract struct {
	payoff   Payoff
	spec     LatticeSpec
	maturity float64

	european *EuropeanPricer
	american *AmericanPricer
}

// NewContract 创建合约。maturity 为以年计的到期期限，仅在按 Black-Scholes 参数标定时使用。
func NewContract(payoff Payoff, spec LatticeSpec, maturity float64, european *EuropeanPricer, american *AmericanPricer) (*Contract, error) {
	if payoff == nil {
		return nil, xerrors.InvalidParameters("payoff is required")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if !isFinite(maturity) || maturity < 0 {
		return nil, xerrors.InvalidParameters("time to maturity %v must be non-negative", maturity)
	}
	if european == nil {
		european = NewEuropeanPricer()
	}
	if american == nil {
		american = NewAmericanPricer()
	}
	return &Contract{
		payoff:   payoff,
		spec:     spec,
		maturity: maturity,
		european: european,
		american: american,
	}, nil
}

// Payoff 返回合约收益函数。
func (c *Contract) Payoff() Payoff { return c.payoff }

// Spec 返回格点规格。
func (c *Contract) Spec() LatticeSpec { return c.spec }

// Maturity 返回到期期限。
func (c *Contract) Maturity() float64 { return c.maturity }

// PriceEuropean 实现 EuropeanPriceable。
func (c *Contract) PriceEuropean(model RateModel, method Method) (float64, error) {
	return c.european.Price(model, c.payoff, c.spec, method)
}

// PriceAmerican 实现 AmericanPriceable。
func (c *Contract) PriceAmerican(model RateModel) (*PricingResult, error) {
	return c.american.PriceBySnellEnvelope(model, c.payoff, c.spec)
}

// Calibrate 以 h = T/N 将连续参数标定为该合约格点的离散参数。
func (c *Contract) Calibrate(params BSMParams) (RateModel, error) {
	h, err := StepSize(c.maturity, c.spec.Steps)
	if err != nil {
		return RateModel{}, err
	}
	return FromBlackScholes(params, h)
}

// ApproximateBlackScholes 先标定再用 Snell 包络定价，作为连续时间美式期权价格的近似。
func (c *Contract) ApproximateBlackScholes(params BSMParams) (*PricingResult, error) {
	model, err := c.Calibrate(params)
	if err != nil {
		return nil, err
	}
	return c.PriceAmerican(model)
}

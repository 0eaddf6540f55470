package finance

import (
	"math"

	"github.com/wyfcoding/pricer/xerrors"
)

// Payoff 将到期（或行权时）标的价格映射为内在价值。
// 新的期权品种只需实现该方法即可同时接入欧式与美式定价器。
type Payoff interface {
	Payoff(price float64) float64
}

// OptionKind 输入边界支持的期权品种。
type OptionKind string

const (
	OptionKindCall        OptionKind = "call"
	OptionKindPut         OptionKind = "put"
	OptionKindDoubleDigit OptionKind = "double_digit"
)

// Call 看涨期权，收益 max(S - K, 0)。
type Call struct {
	Strike float64
}

// NewCall 创建看涨期权收益。
func NewCall(strike float64) (Call, error) {
	if err := checkStrike(strike); err != nil {
		return Call{}, err
	}
	return Call{Strike: strike}, nil
}

// Payoff 实现 Payoff 接口。
func (c Call) Payoff(price float64) float64 {
	return math.Max(price-c.Strike, 0)
}

// Put 看跌期权，收益 max(K - S, 0)。
type Put struct {
	Strike float64
}

// NewPut 创建看跌期权收益。
func NewPut(strike float64) (Put, error) {
	if err := checkStrike(strike); err != nil {
		return Put{}, err
	}
	return Put{Strike: strike}, nil
}

// Payoff 实现 Payoff 接口。
func (p Put) Payoff(price float64) float64 {
	return math.Max(p.Strike-price, 0)
}

// DoubleDigit 双数字期权：标的价格严格落在 (Lower, Upper) 内时支付 1，否则为 0。
type DoubleDigit struct {
	Lower float64
	Upper float64
}

// NewDoubleDigit 创建双数字期权收益，要求 Lower < Upper。
func NewDoubleDigit(lower, upper float64) (DoubleDigit, error) {
	if err := checkStrike(lower); err != nil {
		return DoubleDigit{}, err
	}
	if err := checkStrike(upper); err != nil {
		return DoubleDigit{}, err
	}
	if lower >= upper {
		return DoubleDigit{}, xerrors.InvalidParameters("lower strike %v must be below upper strike %v", lower, upper)
	}
	return DoubleDigit{Lower: lower, Upper: upper}, nil
}

// Payoff 实现 Payoff 接口。边界上取 0。
func (d DoubleDigit) Payoff(price float64) float64 {
	if d.Lower < price && price < d.Upper {
		return 1
	}
	return 0
}

// NewPayoff 按品种与行权价构造收益函数。
// call/put 需要一个行权价，double_digit 需要下、上两个行权价。
func NewPayoff(kind OptionKind, strikes ...float64) (Payoff, error) {
	switch kind {
	case OptionKindCall, OptionKindPut:
		if len(strikes) != 1 {
			return nil, xerrors.InvalidParameters("%s option takes exactly one strike, got %d", kind, len(strikes))
		}
		if kind == OptionKindCall {
			c, err := NewCall(strikes[0])
			if err != nil {
				return nil, err
			}
			return c, nil
		}
		p, err := NewPut(strikes[0])
		if err != nil {
			return nil, err
		}
		return p, nil
	case OptionKindDoubleDigit:
		if len(strikes) != 2 {
			return nil, xerrors.InvalidParameters("double digit option takes two strikes, got %d", len(strikes))
		}
		d, err := NewDoubleDigit(strikes[0], strikes[1])
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, xerrors.InvalidParameters("unsupported option kind %q", kind)
	}
}

func checkStrike(strike float64) error {
	if !isFinite(strike) || strike < 0 {
		return xerrors.InvalidParameters("strike %v must be a non-negative number", strike)
	}
	return nil
}

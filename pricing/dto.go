// Package pricing 是定价引擎的应用层：校验输入、组装模型与合约、调度各定价器并汇总结果。
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/pricer/algorithm/finance"
)

// 期权行权方式。bs_approx 为按 Black-Scholes 参数标定后的美式二叉树近似。
const (
	StyleEuropean = "european"
	StyleAmerican = "american"
	StyleBSApprox = "bs_approx"
)

// maxExerciseLayerSteps 超过该步数时行权图只返回边界，不返回逐层标志。
const maxExerciseLayerSteps = 200

// BinomialParams 直接给定的单步离散参数。
type BinomialParams struct {
	Up   float64 `json:"up"   validate:"finite"`
	Down float64 `json:"down" validate:"finite,gt=-1"`
	Rate float64 `json:"rate" validate:"finite"`
}

// BlackScholesParams 风险中性定价用的连续时间参数。
type BlackScholesParams struct {
	Sigma float64 `json:"sigma" validate:"finite,gt=0"`
	Rate  float64 `json:"rate"  validate:"finite"`
}

func (p BlackScholesParams) toFinance() finance.BSMParams {
	return finance.BSMParams{Sigma: p.Sigma, Rate: p.Rate}
}

// QuoteRequest 单个定价请求。Binomial 与 BlackScholes 二选一。
type QuoteRequest struct {
	Option          string              `json:"option"   validate:"required,oneof=call put double_digit"`
	Strikes         []float64           `json:"strikes"  validate:"required,min=1,max=2,dive,finite,gte=0"`
	Style           string              `json:"style"    validate:"required,oneof=european american bs_approx"`
	Method          string              `json:"method,omitempty"`
	Spot            float64             `json:"spot"     validate:"finite,gt=0"`
	Steps           *int                `json:"steps,omitempty" validate:"omitempty,gte=0"`
	Maturity        float64             `json:"maturity" validate:"finite,gte=0"`
	Binomial        *BinomialParams     `json:"binomial,omitempty"      validate:"required_without=BlackScholes,excluded_with=BlackScholes"`
	BlackScholes    *BlackScholesParams `json:"black_scholes,omitempty" validate:"required_without=Binomial"`
	IncludeExercise bool                `json:"include_exercise"`
}

// ModelView 实际使用的离散模型参数。
type ModelView struct {
	Up              float64 `json:"up"`
	Down            float64 `json:"down"`
	Rate            float64 `json:"rate"`
	RiskNeutralProb float64 `json:"risk_neutral_prob"`
	Calibrated      bool    `json:"calibrated"`
}

func newModelView(m finance.RateModel, calibrated bool) ModelView {
	return ModelView{
		Up:              m.Up(),
		Down:            m.Down(),
		Rate:            m.Rate(),
		RiskNeutralProb: m.RiskNeutralProb(),
		Calibrated:      calibrated,
	}
}

// ExerciseView 美式期权行权图。Layers[n][i] 为节点 (n, i) 是否立即行权。
type ExerciseView struct {
	Steps    int                     `json:"steps"`
	Boundary []finance.BoundaryPoint `json:"boundary"`
	Layers   [][]bool                `json:"layers,omitempty"`
}

func newExerciseView(em *finance.ExerciseMap) *ExerciseView {
	if em == nil {
		return nil
	}
	v := &ExerciseView{Steps: em.Steps(), Boundary: em.Boundary()}
	if em.Steps() <= maxExerciseLayerSteps {
		v.Layers = make([][]bool, em.Steps()+1)
		for n := range v.Layers {
			v.Layers[n] = em.Layer(n)
		}
	}
	return v
}

// Quote 定价结果。Price 按配置精度四舍五入，RawPrice 为未舍入的浮点值。
type Quote struct {
	Option   string          `json:"option"`
	Strikes  []float64       `json:"strikes"`
	Style    string          `json:"style"`
	Method   string          `json:"method,omitempty"`
	Steps    int             `json:"steps"`
	Price    decimal.Decimal `json:"price"`
	RawPrice float64         `json:"raw_price"`
	Model    ModelView       `json:"model"`
	Exercise *ExerciseView   `json:"exercise,omitempty"`
}

// BatchRequest 批量定价请求。
type BatchRequest struct {
	Requests []QuoteRequest `json:"requests" validate:"required,min=1,dive"`
}

// BatchResponse 批量定价结果，顺序与请求一致。
type BatchResponse struct {
	Quotes []*Quote `json:"quotes"`
}

// CrossValidationRequest 交叉校验请求，仅支持看涨与看跌。
type CrossValidationRequest struct {
	Option       string             `json:"option"   validate:"required,oneof=call put"`
	Strike       float64            `json:"strike"   validate:"finite,gte=0"`
	Spot         float64            `json:"spot"     validate:"finite,gt=0"`
	Maturity     float64            `json:"maturity" validate:"finite,gt=0"`
	Steps        int                `json:"steps"    validate:"gte=1"`
	BlackScholes BlackScholesParams `json:"black_scholes"`
	Paths        int                `json:"paths,omitempty" validate:"omitempty,gt=1,lte=5000000"`
	Seed         *uint64            `json:"seed,omitempty"`
}

// MonteCarloView 蒙特卡洛估计。
type MonteCarloView struct {
	Price  float64 `json:"price"`
	StdErr float64 `json:"stderr"`
	Low    float64 `json:"low"`
	High   float64 `json:"high"`
	Paths  int     `json:"paths"`
}

// Check 单项校验：|Estimate - Reference| <= Tolerance 时通过。
type Check struct {
	Name      string  `json:"name"`
	Reference float64 `json:"reference"`
	Estimate  float64 `json:"estimate"`
	Diff      float64 `json:"diff"`
	Tolerance float64 `json:"tolerance"`
	Passed    bool    `json:"passed"`
}

// CrossValidationReport 各定价引擎的结果与校验汇总。
type CrossValidationReport struct {
	Option        string         `json:"option"`
	Strike        float64        `json:"strike"`
	Steps         int            `json:"steps"`
	Model         ModelView      `json:"model"`
	BlackScholes  float64        `json:"black_scholes"`
	CRREuropean   float64        `json:"crr_european"`
	CRRAggregated *float64       `json:"crr_aggregated,omitempty"`
	MonteCarlo    MonteCarloView `json:"monte_carlo"`
	CRRAmerican   float64        `json:"crr_american"`
	LSM           MonteCarloView `json:"lsm"`
	Checks        []Check        `json:"checks"`
	Passed        bool           `json:"passed"`
}

// 路径依赖期权种类。
const (
	PathKindAsian   = "asian"
	PathKindBarrier = "barrier"
)

// PathQuoteRequest 路径依赖期权的蒙特卡洛定价请求。
// Asian 对路径均价应用看涨/看跌收益；Barrier 为敲出期权，Direction 为 up 或 down。
type PathQuoteRequest struct {
	Kind         string             `json:"kind"     validate:"required,oneof=asian barrier"`
	Option       string             `json:"option"   validate:"required,oneof=call put"`
	Strike       float64            `json:"strike"   validate:"finite,gte=0"`
	Barrier      float64            `json:"barrier,omitempty"   validate:"finite,gte=0"`
	Direction    string             `json:"direction,omitempty" validate:"omitempty,oneof=up down"`
	Spot         float64            `json:"spot"     validate:"finite,gt=0"`
	Maturity     float64            `json:"maturity" validate:"finite,gt=0"`
	BlackScholes BlackScholesParams `json:"black_scholes"`
	TimeSteps    *int               `json:"time_steps,omitempty" validate:"omitempty,gte=1,lte=10000"`
	Paths        int                `json:"paths,omitempty"      validate:"omitempty,gt=1,lte=5000000"`
	Seed         *uint64            `json:"seed,omitempty"`
}

// PathQuote 路径依赖期权的蒙特卡洛价格。
type PathQuote struct {
	Kind       string          `json:"kind"`
	Option     string          `json:"option"`
	Strike     float64         `json:"strike"`
	Barrier    float64         `json:"barrier,omitempty"`
	Direction  string          `json:"direction,omitempty"`
	TimeSteps  int             `json:"time_steps"`
	Price      decimal.Decimal `json:"price"`
	MonteCarlo MonteCarloView  `json:"monte_carlo"`
}

// PathSampleRequest 真实测度下的价格路径采样请求，Drift 为年化漂移 μ。
type PathSampleRequest struct {
	Spot      float64 `json:"spot"     validate:"finite,gt=0"`
	Maturity  float64 `json:"maturity" validate:"finite,gt=0"`
	Sigma     float64 `json:"sigma"    validate:"finite,gt=0"`
	Drift     float64 `json:"drift"    validate:"finite"`
	TimeSteps *int    `json:"time_steps,omitempty" validate:"omitempty,gte=1,lte=10000"`
	Count     int     `json:"count,omitempty"      validate:"omitempty,gte=1,lte=1000"`
	Seed      *uint64 `json:"seed,omitempty"`
}

// PathSample 采样结果。Times[k] 对应每条路径的第 k 个点。
type PathSample struct {
	Drift float64     `json:"drift"`
	Sigma float64     `json:"sigma"`
	Times []float64   `json:"times"`
	Paths [][]float64 `json:"paths"`
}

// ScenarioRow 场景中单个期权的三种价格。
type ScenarioRow struct {
	Option           string    `json:"option"`
	Strikes          []float64 `json:"strikes"`
	European         float64   `json:"european"`
	American         float64   `json:"american"`
	AmericanBSApprox float64   `json:"american_bs_approx"`
}

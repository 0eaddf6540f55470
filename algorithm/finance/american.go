package finance

import (
	"math"

	"github.com/wyfcoding/pricer/xerrors"
)

// PricingResult 定价结果。Exercise 仅在美式定价且开启记录时非空。
type PricingResult struct {
	Price    float64
	Exercise *ExerciseMap
}

// ExerciseMap 记录每个节点 (n, i) 是否应立即行权。
// 使用单块三角形缓冲区，第 n 行恰好 n+1 个元素。
type ExerciseMap struct {
	steps int
	cells []bool
}

func newExerciseMap(steps int) *ExerciseMap {
	return &ExerciseMap{steps: steps, cells: make([]bool, triSize(steps))}
}

// Steps 返回格点步数。
func (e *ExerciseMap) Steps() int { return e.steps }

// At 返回节点 (n, i) 的行权标志，越界时返回 false。
func (e *ExerciseMap) At(n, i int) bool {
	if n < 0 || n > e.steps || i < 0 || i > n {
		return false
	}
	return e.cells[triIndex(n, i)]
}

// Layer 返回第 n 步行权标志的副本。
func (e *ExerciseMap) Layer(n int) []bool {
	if n < 0 || n > e.steps {
		return nil
	}
	out := make([]bool, n+1)
	copy(out, e.cells[triIndex(n, 0):triIndex(n, n)+1])
	return out
}

// BoundaryPoint 某一步中行权节点的上涨次数范围。
type BoundaryPoint struct {
	Step    int `json:"step"`
	Lowest  int `json:"lowest"`
	Highest int `json:"highest"`
}

// Boundary 按步返回存在行权节点的 [Lowest, Highest] 范围，没有行权节点的步被跳过。
func (e *ExerciseMap) Boundary() []BoundaryPoint {
	var out []BoundaryPoint
	for n := 0; n <= e.steps; n++ {
		lo, hi := -1, -1
		for i := 0; i <= n; i++ {
			if e.cells[triIndex(n, i)] {
				if lo < 0 {
					lo = i
				}
				hi = i
			}
		}
		if lo >= 0 {
			out = append(out, BoundaryPoint{Step: n, Lowest: lo, Highest: hi})
		}
	}
	return out
}

func (e *ExerciseMap) set(n, i int, v bool) {
	e.cells[triIndex(n, i)] = v
}

// AmericanPricer 基于 Snell 包络的美式期权定价器。
type AmericanPricer struct {
	recordExercise bool
}

// AmericanPricerOption 定义美式定价器的配置选项。
type AmericanPricerOption func(*AmericanPricer)

// WithExerciseMap 开启逐节点行权标志记录。
func WithExerciseMap() AmericanPricerOption {
	return func(p *AmericanPricer) {
		p.recordExercise = true
	}
}

// NewAmericanPricer 创建美式定价器。
func NewAmericanPricer(opts ...AmericanPricerOption) *AmericanPricer {
	p := &AmericanPricer{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RecordsExercise 是否记录行权图。
func (p *AmericanPricer) RecordsExercise() bool { return p.recordExercise }

// PriceBySnellEnvelope 倒推计算 Snell 包络：
// 每个节点取 max(继续持有价值, 立即行权价值)；仅当行权价值严格大于继续持有价值时记为行权，
// 相等时视为继续持有。到期层全部记为行权。
func (p *AmericanPricer) PriceBySnellEnvelope(model RateModel, payoff Payoff, spec LatticeSpec) (*PricingResult, error) {
	if payoff == nil {
		return nil, xerrors.InvalidParameters("payoff is required")
	}
	l, err := NewLattice(model, spec)
	if err != nil {
		return nil, err
	}

	n := spec.Steps
	var exercise *ExerciseMap
	if p.recordExercise {
		exercise = newExerciseMap(n)
	}

	// 价值只依赖下一层，单行滚动即可；行权图单独保存在三角形缓冲区中。
	value := make([]float64, n+1)
	for i := 0; i <= n; i++ {
		value[i] = payoff.Payoff(l.node(n, i))
		if exercise != nil {
			exercise.set(n, i, true)
		}
	}
	for m := n - 1; m >= 0; m-- {
		for i := 0; i <= m; i++ {
			continuation := model.expectation(value[i+1], value[i])
			immediate := payoff.Payoff(l.node(m, i))
			value[i] = math.Max(continuation, immediate)
			if exercise != nil {
				exercise.set(m, i, immediate > continuation)
			}
		}
	}

	return &PricingResult{Price: value[0], Exercise: exercise}, nil
}

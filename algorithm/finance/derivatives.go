package finance

import (
	"errors"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wyfcoding/pricer/xerrors"
)

// LSMPricer 实现了 Longstaff-Schwartz (LSM) 算法，以最小二乘回归估计美式期权的延续价值。
type LSMPricer struct {
	Degree int    // 回归多项式的阶数
	Paths  int    // 模拟路径数
	Seed   uint64 // 随机源种子
}

// NewLSMPricer 创建 LSM 定价器，degree 非正时取 2。
func NewLSMPricer(degree, paths int, seed uint64) *LSMPricer {
	if degree <= 0 {
		degree = 2
	}
	return &LSMPricer{Degree: degree, Paths: paths, Seed: seed}
}

// AmericanOptionParams 核心定价参数
type AmericanOptionParams struct {
	S0    float64
	K     float64
	T     float64
	R     float64
	Sigma float64
	IsPut bool
	Steps int // 行权时间点数量
}

// LSMResult LSM 估计值与标准误差。
type LSMResult struct {
	Price  float64
	StdErr float64
}

// ComputePrice 计算美式期权现值
func (p *LSMPricer) ComputePrice(params AmericanOptionParams) (LSMResult, error) {
	if params.S0 <= 0 || params.K < 0 || params.T <= 0 || params.Sigma <= 0 || params.Steps < 1 {
		return LSMResult{}, xerrors.InvalidParameters("lsm: s0=%v k=%v t=%v sigma=%v steps=%d", params.S0, params.K, params.T, params.Sigma, params.Steps)
	}
	if p.Paths <= p.Degree+1 {
		return LSMResult{}, xerrors.InvalidParameters("lsm: %d paths cannot fit a degree %d regression", p.Paths, p.Degree)
	}

	dt := params.T / float64(params.Steps)
	df := math.Exp(-params.R * dt)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(p.Seed)}

	// 1. 生成路径，paths[i][j] 为第 i 条路径第 j 个时间点的价格
	grid := make([]float64, params.Steps+1)
	for j := range grid {
		grid[j] = dt * float64(j)
	}
	paths := make([][]float64, p.Paths)
	for i := range paths {
		path, err := SamplePath(params.S0, grid, params.R, params.Sigma, normal)
		if err != nil {
			return LSMResult{}, err
		}
		paths[i] = path
	}

	// 2. 初始化末端收益
	cashFlows := make([]float64, p.Paths)
	for i := range cashFlows {
		cashFlows[i] = p.payoff(paths[i][params.Steps], params.K, params.IsPut)
	}

	// 3. 反向回归，cashFlows 始终折现到当前时间点
	for t := params.Steps - 1; t > 0; t-- {
		for i := range cashFlows {
			cashFlows[i] *= df
		}

		var xData, yData []float64
		var indices []int
		for i := range p.Paths {
			s := paths[i][t]
			if p.payoff(s, params.K, params.IsPut) > 0 { // 仅考虑价内路径
				xData = append(xData, s/params.S0)
				yData = append(yData, cashFlows[i])
				indices = append(indices, i)
			}
		}
		if len(indices) <= p.Degree+1 {
			continue
		}

		coeffs, err := p.regress(xData, yData)
		if err != nil {
			return LSMResult{}, err
		}

		// 比较行权价值与预测的等待价值
		for idx, i := range indices {
			iv := p.payoff(paths[i][t], params.K, params.IsPut)
			cv := 0.0
			x := 1.0
			for d := 0; d <= p.Degree; d++ {
				cv += coeffs.AtVec(d) * x
				x *= xData[idx]
			}
			if iv > cv {
				cashFlows[i] = iv
			}
		}
	}

	for i := range cashFlows {
		cashFlows[i] *= df
	}
	mean, std := stat.MeanStdDev(cashFlows, nil)
	res := LSMResult{Price: mean, StdErr: std / math.Sqrt(float64(p.Paths))}
	// t=0 时可立即行权
	if iv := p.payoff(params.S0, params.K, params.IsPut); iv > res.Price {
		res.Price = iv
	}
	return res, nil
}

func (p *LSMPricer) payoff(s, k float64, isPut bool) float64 {
	if isPut {
		return math.Max(0, k-s)
	}
	return math.Max(0, s-k)
}

// regress 以 [1, x, x², ...] 为基函数做最小二乘回归，x 已按 S0 归一化。
func (p *LSMPricer) regress(x, y []float64) (*mat.VecDense, error) {
	n := len(x)
	m := p.Degree + 1

	// A 是 Vandermonde 矩阵 [n x m]
	A := mat.NewDense(n, m, nil)
	for i := range x {
		v := 1.0
		for j := range m {
			A.Set(i, j, v)
			v *= x[i]
		}
	}

	var coeffs mat.VecDense
	if err := coeffs.SolveVec(A, mat.NewVecDense(n, y)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, xerrors.Wrap(err, xerrors.ErrInternal, "lsm regression failed")
		}
	}
	return &coeffs, nil
}

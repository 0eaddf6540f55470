package finance

import (
	"context"
	"math"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wyfcoding/pricer/xerrors"
)

// ConfidenceZ 95% 双侧置信区间对应的标准正态分位数。
const ConfidenceZ = 1.96

// PathPayoff 路径依赖收益，输入为包含初始价格在内的整条价格路径。
type PathPayoff interface {
	PathPayoff(path []float64) float64
}

// AsianOption 算术平均亚式期权：对路径（不含初始点）均价应用基础收益。
type AsianOption struct {
	Underlying Payoff
}

// PathPayoff 实现 PathPayoff 接口。
func (a AsianOption) PathPayoff(path []float64) float64 {
	if len(path) < 2 {
		return a.Underlying.Payoff(path[len(path)-1])
	}
	sum := 0.0
	for _, s := range path[1:] {
		sum += s
	}
	return a.Underlying.Payoff(sum / float64(len(path)-1))
}

// BarrierOption 敲出障碍期权。Up 为真时价格触及或高于 Barrier 即作废，否则触及或低于 Barrier 作废。
type BarrierOption struct {
	Underlying Payoff
	Barrier    float64
	Up         bool
}

// PathPayoff 实现 PathPayoff 接口。
func (b BarrierOption) PathPayoff(path []float64) float64 {
	for _, s := range path {
		if (b.Up && s >= b.Barrier) || (!b.Up && s <= b.Barrier) {
			return 0
		}
	}
	return b.Underlying.Payoff(path[len(path)-1])
}

// MonteCarloResult 蒙特卡洛估计值及其误差。
type MonteCarloResult struct {
	Price  float64
	StdErr float64
	Paths  int
	Low    float64 // 95% 置信下界
	High   float64 // 95% 置信上界
}

// Within 判断 v 是否在估计值 k 个标准误差以内。
func (r MonteCarloResult) Within(v, k float64) bool {
	return math.Abs(v-r.Price) <= k*r.StdErr
}

// MonteCarloPricer 在几何布朗运动下模拟价格并估计期权价值。
// 相同 Seed 与 Workers 下结果可复现。
type MonteCarloPricer struct {
	Paths   int
	Workers int
	Seed    uint64
}

// NewMonteCarloPricer 创建蒙特卡洛定价器。
func NewMonteCarloPricer(paths, workers int, seed uint64) (*MonteCarloPricer, error) {
	p := &MonteCarloPricer{Paths: paths, Workers: workers, Seed: seed}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *MonteCarloPricer) validate() error {
	if p.Paths <= 1 {
		return xerrors.InvalidParameters("monte carlo needs more than one path, got %d", p.Paths)
	}
	if p.Workers < 1 {
		return xerrors.InvalidParameters("monte carlo workers %d must be at least 1", p.Workers)
	}
	return nil
}

// SamplePath 在递增时间网格 grid 上精确模拟一条 GBM 路径，grid[0] 对应 s0。
// S_k = S_{k-1} exp((μ - σ²/2)Δt + σ√Δt Z)。
func SamplePath(s0 float64, grid []float64, drift, sigma float64, normal distuv.Normal) ([]float64, error) {
	if len(grid) == 0 {
		return nil, xerrors.InvalidParameters("time grid is empty")
	}
	path := make([]float64, len(grid))
	path[0] = s0
	for k := 1; k < len(grid); k++ {
		dt := grid[k] - grid[k-1]
		if dt <= 0 {
			return nil, xerrors.InvalidParameters("time grid must be strictly increasing at index %d", k)
		}
		path[k] = path[k-1] * math.Exp((drift-0.5*sigma*sigma)*dt+sigma*math.Sqrt(dt)*normal.Rand())
	}
	return path, nil
}

// PriceEuropean 风险中性测度下只模拟到期价格，返回折现后的样本均值。
func (p *MonteCarloPricer) PriceEuropean(ctx context.Context, payoff Payoff, spot float64, params BSMParams, expiry float64) (MonteCarloResult, error) {
	if payoff == nil {
		return MonteCarloResult{}, xerrors.InvalidParameters("payoff is required")
	}
	if err := p.checkInputs(spot, params, expiry); err != nil {
		return MonteCarloResult{}, err
	}

	drift := (params.Rate - 0.5*params.Sigma*params.Sigma) * expiry
	vol := params.Sigma * math.Sqrt(expiry)
	discount := math.Exp(-params.Rate * expiry)

	return p.simulate(ctx, func(normal distuv.Normal) (float64, error) {
		st := spot * math.Exp(drift+vol*normal.Rand())
		return discount * payoff.Payoff(st), nil
	})
}

// PricePathDependent 在 timeSteps 等分网格上模拟整条路径，用于亚式与障碍期权。
func (p *MonteCarloPricer) PricePathDependent(ctx context.Context, payoff PathPayoff, spot float64, params BSMParams, expiry float64, timeSteps int) (MonteCarloResult, error) {
	if payoff == nil {
		return MonteCarloResult{}, xerrors.InvalidParameters("path payoff is required")
	}
	if err := p.checkInputs(spot, params, expiry); err != nil {
		return MonteCarloResult{}, err
	}
	if timeSteps < 1 {
		return MonteCarloResult{}, xerrors.InvalidParameters("time steps %d must be at least 1", timeSteps)
	}
	if expiry == 0 {
		return MonteCarloResult{}, xerrors.InvalidParameters("path dependent pricing needs a positive expiry")
	}

	grid := UniformGrid(expiry, timeSteps)
	discount := math.Exp(-params.Rate * expiry)

	return p.simulate(ctx, func(normal distuv.Normal) (float64, error) {
		path, err := SamplePath(spot, grid, params.Rate, params.Sigma, normal)
		if err != nil {
			return 0, err
		}
		return discount * payoff.PathPayoff(path), nil
	})
}

// SampleRealWorldPaths 在真实测度下（漂移取 params.Drift）模拟 count 条路径，用于情景展示与回测。
// 路径只依赖 Seed，与 Workers 无关。
func (p *MonteCarloPricer) SampleRealWorldPaths(ctx context.Context, spot float64, params BSMParams, expiry float64, timeSteps, count int) ([][]float64, error) {
	if err := p.checkInputs(spot, params, expiry); err != nil {
		return nil, err
	}
	if timeSteps < 1 {
		return nil, xerrors.InvalidParameters("time steps %d must be at least 1", timeSteps)
	}
	if expiry == 0 {
		return nil, xerrors.InvalidParameters("path sampling needs a positive expiry")
	}
	if count < 1 {
		return nil, xerrors.InvalidParameters("path count %d must be at least 1", count)
	}

	grid := UniformGrid(expiry, timeSteps)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(p.Seed)}
	paths := make([][]float64, count)
	for i := range paths {
		if err := ctx.Err(); err != nil {
			return nil, xerrors.Wrap(err, xerrors.ErrInternal, "path sampling interrupted")
		}
		path, err := SamplePath(spot, grid, params.Drift, params.Sigma, normal)
		if err != nil {
			return nil, err
		}
		paths[i] = path
	}
	return paths, nil
}

// UniformGrid 返回 [0, expiry] 上 steps 等分的时间网格，共 steps+1 个点。
func UniformGrid(expiry float64, steps int) []float64 {
	grid := make([]float64, steps+1)
	for k := range grid {
		grid[k] = expiry * float64(k) / float64(steps)
	}
	return grid
}

func (p *MonteCarloPricer) checkInputs(spot float64, params BSMParams, expiry float64) error {
	if err := p.validate(); err != nil {
		return err
	}
	if !isFinite(spot) || spot <= 0 {
		return xerrors.InvalidParameters("spot %v must be positive", spot)
	}
	if !isFinite(expiry) || expiry < 0 {
		return xerrors.InvalidParameters("expiry %v must be non-negative", expiry)
	}
	return params.Validate()
}

// simulate 将路径切分为 Workers 块并发执行，每块使用种子 Seed+chunk 的独立随机源，
// 按块顺序汇总样本，保证结果与调度无关。
func (p *MonteCarloPricer) simulate(ctx context.Context, sample func(distuv.Normal) (float64, error)) (MonteCarloResult, error) {
	workers := min(p.Workers, p.Paths)
	samples := make([]float64, p.Paths)
	chunk := (p.Paths + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for w := range workers {
		start := w * chunk
		end := min(start+chunk, p.Paths)
		if start >= end {
			break
		}
		normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(p.Seed + uint64(w))}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if (i-start)%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				v, err := sample(normal)
				if err != nil {
					return err
				}
				samples[i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MonteCarloResult{}, xerrors.Wrap(err, xerrors.ErrInternal, "monte carlo simulation failed")
	}

	mean, std := stat.MeanStdDev(samples, nil)
	stdErr := std / math.Sqrt(float64(len(samples)))
	return MonteCarloResult{
		Price:  mean,
		StdErr: stdErr,
		Paths:  len(samples),
		Low:    mean - ConfidenceZ*stdErr,
		High:   mean + ConfidenceZ*stdErr,
	}, nil
}

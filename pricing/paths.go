package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/pricer/algorithm/finance"
	"github.com/wyfcoding/pricer/config"
	"github.com/wyfcoding/pricer/contextx"
	"github.com/wyfcoding/pricer/logging"
	"github.com/wyfcoding/pricer/tracing"
	"github.com/wyfcoding/pricer/validator"
	"github.com/wyfcoding/pricer/xerrors"
)

// QuotePath 用蒙特卡洛为亚式或敲出障碍期权定价。时间步数默认取 montecarlo.time_steps。
func (s *Service) QuotePath(ctx context.Context, req *PathQuoteRequest) (*PathQuote, error) {
	if req == nil {
		return nil, xerrors.InvalidParameters("request is required")
	}
	if err := validator.Struct(req); err != nil {
		return nil, err
	}
	pcfg, mcfg, _ := s.snapshot()

	underlying, err := finance.NewPayoff(finance.OptionKind(req.Option), req.Strike)
	if err != nil {
		return nil, err
	}
	var payoff finance.PathPayoff
	switch req.Kind {
	case PathKindAsian:
		payoff = finance.AsianOption{Underlying: underlying}
	case PathKindBarrier:
		if req.Barrier <= 0 {
			return nil, xerrors.InvalidParameters("barrier option needs a positive barrier, got %v", req.Barrier)
		}
		if req.Direction == "" {
			return nil, xerrors.InvalidParameters("barrier option needs direction up or down")
		}
		payoff = finance.BarrierOption{Underlying: underlying, Barrier: req.Barrier, Up: req.Direction == "up"}
	}

	steps := timeStepsOr(mcfg, req.TimeSteps)
	mc, err := monteCarloFor(mcfg, req.Paths, req.Seed)
	if err != nil {
		return nil, err
	}

	ctx = contextx.WithEngine(ctx, engineMonteCarlo)
	ctx, span := tracing.StartSpan(ctx, "pricing.QuotePath")
	defer span.End()
	tracing.AddTag(ctx, "kind", req.Kind)
	defer logging.LogDuration(ctx, "path quote", "kind", req.Kind, "option", req.Option, "time_steps", steps)()

	release, err := s.acquireHeavy(ctx, "path quote")
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	res, err := mc.PricePathDependent(ctx, payoff, req.Spot, req.BlackScholes.toFinance(), req.Maturity, steps)
	s.metrics.ObservePricing(engineMonteCarlo, req.Kind, time.Since(start), err)
	if err != nil {
		tracing.SetError(ctx, err)
		s.logger.WarnContext(ctx, "path quote failed", "error", err)
		return nil, err
	}
	s.metrics.ObserveStdErr(res.StdErr)

	q := &PathQuote{
		Kind:       req.Kind,
		Option:     req.Option,
		Strike:     req.Strike,
		TimeSteps:  steps,
		Price:      decimal.NewFromFloat(res.Price).Round(pcfg.Precision),
		MonteCarlo: MonteCarloView{Price: res.Price, StdErr: res.StdErr, Low: res.Low, High: res.High, Paths: res.Paths},
	}
	if req.Kind == PathKindBarrier {
		q.Barrier = req.Barrier
		q.Direction = req.Direction
	}
	return q, nil
}

// SamplePaths 在真实测度下生成价格路径，漂移取请求中的 drift。
func (s *Service) SamplePaths(ctx context.Context, req *PathSampleRequest) (*PathSample, error) {
	if req == nil {
		return nil, xerrors.InvalidParameters("request is required")
	}
	if err := validator.Struct(req); err != nil {
		return nil, err
	}
	_, mcfg, _ := s.snapshot()

	steps := timeStepsOr(mcfg, req.TimeSteps)
	count := max(req.Count, 1)
	mc, err := monteCarloFor(mcfg, 0, req.Seed)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "pricing.SamplePaths")
	defer span.End()

	params := finance.BSMParams{Sigma: req.Sigma, Drift: req.Drift}
	start := time.Now()
	paths, err := mc.SampleRealWorldPaths(ctx, req.Spot, params, req.Maturity, steps, count)
	s.metrics.ObservePricing(engineMonteCarlo, "path_sample", time.Since(start), err)
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	return &PathSample{
		Drift: req.Drift,
		Sigma: req.Sigma,
		Times: finance.UniformGrid(req.Maturity, steps),
		Paths: paths,
	}, nil
}

func timeStepsOr(mcfg config.MonteCarloConfig, override *int) int {
	if override != nil {
		return *override
	}
	return mcfg.TimeSteps
}

// monteCarloFor 按配置构造定价器，paths > 0 或 seed 非空时覆盖配置值。
func monteCarloFor(mcfg config.MonteCarloConfig, paths int, seed *uint64) (*finance.MonteCarloPricer, error) {
	n, sd := mcfg.Paths, mcfg.Seed
	if paths > 0 {
		n = paths
	}
	if seed != nil {
		sd = *seed
	}
	return finance.NewMonteCarloPricer(n, mcfg.Workers, sd)
}

package pricing

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/pricer/algorithm/finance"
	"github.com/wyfcoding/pricer/contextx"
	"github.com/wyfcoding/pricer/logging"
	"github.com/wyfcoding/pricer/tracing"
	"github.com/wyfcoding/pricer/validator"
	"github.com/wyfcoding/pricer/xerrors"
)

// methodAgreement 迭代与组合闭式两种算法之间允许的相对误差。
const methodAgreement = 1e-9

// CrossValidate 用相互独立的引擎为同一期权定价并比较：
// 标定后的 CRR 欧式价 vs Black-Scholes 闭式解、CRR vs 蒙特卡洛（以标准误差计）、
// 迭代 vs 组合闭式、Snell 包络美式价 vs LSM。各引擎并发执行。
func (s *Service) CrossValidate(ctx context.Context, req *CrossValidationRequest) (*CrossValidationReport, error) {
	if req == nil {
		return nil, xerrors.InvalidParameters("request is required")
	}
	if err := validator.Struct(req); err != nil {
		return nil, err
	}
	pcfg, mcfg, european := s.snapshot()
	if req.Steps > pcfg.MaxSteps {
		return nil, xerrors.InvalidParameters("steps %d exceeds configured maximum %d", req.Steps, pcfg.MaxSteps)
	}
	ctx, span := tracing.StartSpan(ctx, "pricing.CrossValidate")
	defer span.End()
	defer logging.LogDuration(ctx, "cross validation", "option", req.Option, "steps", req.Steps)()

	release, err := s.acquireHeavy(ctx, "cross validation")
	if err != nil {
		return nil, err
	}
	defer release()

	payoff, err := finance.NewPayoff(finance.OptionKind(req.Option), req.Strike)
	if err != nil {
		return nil, err
	}
	params := req.BlackScholes.toFinance()
	contract, err := finance.NewContract(payoff, finance.LatticeSpec{InitialPrice: req.Spot, Steps: req.Steps}, req.Maturity, european, finance.NewAmericanPricer())
	if err != nil {
		return nil, err
	}
	model, err := contract.Calibrate(params)
	if err != nil {
		return nil, err
	}

	mc, err := monteCarloFor(mcfg, req.Paths, req.Seed)
	if err != nil {
		return nil, err
	}
	lsm := finance.NewLSMPricer(mcfg.LSMDegree, mcfg.LSMPaths, mc.Seed)

	report := &CrossValidationReport{
		Option: req.Option,
		Strike: req.Strike,
		Steps:  req.Steps,
		Model:  newModelView(model, true),
	}
	withAggregated := req.Steps <= european.MaxAggregatedSteps()

	g, gctx := errgroup.WithContext(ctx)
	run := func(engine string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			ctx := contextx.WithEngine(gctx, engine)
			start := time.Now()
			err := fn(ctx)
			s.metrics.ObservePricing(engine, "cross_validation", time.Since(start), err)
			return err
		})
	}

	run(engineBlackScholes, func(context.Context) error {
		v, err := s.bs.Price(payoff, req.Spot, params, req.Maturity)
		report.BlackScholes = v
		return err
	})
	run(engineCRR, func(context.Context) error {
		v, err := contract.PriceEuropean(model, finance.MethodIterative)
		report.CRREuropean = v
		return err
	})
	if withAggregated {
		run(engineCRR, func(context.Context) error {
			v, err := contract.PriceEuropean(model, finance.MethodAggregated)
			if err == nil {
				report.CRRAggregated = &v
			}
			return err
		})
	}
	run(engineCRR, func(context.Context) error {
		res, err := contract.PriceAmerican(model)
		if err == nil {
			report.CRRAmerican = res.Price
		}
		return err
	})
	run(engineMonteCarlo, func(ctx context.Context) error {
		res, err := mc.PriceEuropean(ctx, payoff, req.Spot, params, req.Maturity)
		if err == nil {
			report.MonteCarlo = MonteCarloView{Price: res.Price, StdErr: res.StdErr, Low: res.Low, High: res.High, Paths: res.Paths}
			s.metrics.ObserveStdErr(res.StdErr)
		}
		return err
	})
	run(engineLSM, func(context.Context) error {
		res, err := lsm.ComputePrice(finance.AmericanOptionParams{
			S0:    req.Spot,
			K:     req.Strike,
			T:     req.Maturity,
			R:     params.Rate,
			Sigma: params.Sigma,
			IsPut: req.Option == string(finance.OptionKindPut),
			Steps: mcfg.LSMSteps,
		})
		if err == nil {
			ci := finance.ConfidenceZ * res.StdErr
			report.LSM = MonteCarloView{Price: res.Price, StdErr: res.StdErr, Low: res.Price - ci, High: res.Price + ci, Paths: mcfg.LSMPaths}
		}
		return err
	})

	if err := g.Wait(); err != nil {
		tracing.SetError(ctx, err)
		s.logger.WarnContext(ctx, "cross validation failed", "error", err)
		return nil, err
	}

	report.Checks = append(report.Checks,
		newCheck("crr_vs_black_scholes", report.BlackScholes, report.CRREuropean, pcfg.Tolerance),
		newCheck("crr_vs_monte_carlo", report.MonteCarlo.Price, report.CRREuropean, mcfg.MaxStdErrs*report.MonteCarlo.StdErr),
	)
	if report.CRRAggregated != nil {
		tol := methodAgreement * math.Max(1, math.Abs(report.CRREuropean))
		report.Checks = append(report.Checks, newCheck("iterative_vs_aggregated", report.CRREuropean, *report.CRRAggregated, tol))
	}
	// LSM 低估美式价格（次优行权），容差在统计误差之外再加上定价容差。
	report.Checks = append(report.Checks,
		newCheck("snell_vs_lsm", report.CRRAmerican, report.LSM.Price, mcfg.MaxStdErrs*report.LSM.StdErr+pcfg.Tolerance),
		dominance(report.CRREuropean, report.CRRAmerican),
	)

	report.Passed = true
	for _, c := range report.Checks {
		s.metrics.ObserveCheck(c.Name, c.Passed)
		if !c.Passed {
			report.Passed = false
			s.logger.WarnContext(ctx, "cross validation check failed",
				"check", c.Name, "reference", c.Reference, "estimate", c.Estimate, "tolerance", c.Tolerance)
		}
	}
	tracing.AddTag(ctx, "passed", report.Passed)
	return report, nil
}

// acquireHeavy 等待一个重计算名额。等待期间 ctx 结束时返回 504 类错误。
func (s *Service) acquireHeavy(ctx context.Context, op string) (func(), error) {
	heavy := s.heavyLimiter()
	if err := heavy.Acquire(ctx); err != nil {
		err = xerrors.Interrupted(err, op)
		tracing.SetError(ctx, err)
		s.logger.WarnContext(ctx, "gave up waiting for a heavy run slot", "op", op, "error", err)
		return nil, err
	}
	return heavy.Release, nil
}

func newCheck(name string, reference, estimate, tolerance float64) Check {
	diff := math.Abs(estimate - reference)
	return Check{
		Name:      name,
		Reference: reference,
		Estimate:  estimate,
		Diff:      diff,
		Tolerance: tolerance,
		Passed:    diff <= tolerance,
	}
}

// dominance 美式价格不低于欧式价格。
func dominance(european, american float64) Check {
	return Check{
		Name:      "american_ge_european",
		Reference: european,
		Estimate:  american,
		Diff:      american - european,
		Passed:    american >= european-1e-12,
	}
}

package pricing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"github.com/wyfcoding/pricer/algorithm/finance"
	"github.com/wyfcoding/pricer/cache"
	"github.com/wyfcoding/pricer/config"
	"github.com/wyfcoding/pricer/contextx"
	"github.com/wyfcoding/pricer/limiter"
	"github.com/wyfcoding/pricer/logging"
	"github.com/wyfcoding/pricer/metrics"
	"github.com/wyfcoding/pricer/tracing"
	"github.com/wyfcoding/pricer/validator"
	"github.com/wyfcoding/pricer/xerrors"
)

// 指标与日志中的引擎名。
const (
	engineCRR          = "crr"
	engineCRRBS        = "crr_bs"
	engineBlackScholes = "black_scholes"
	engineMonteCarlo   = "monte_carlo"
	engineLSM          = "lsm"
)

// Service 定价应用服务。每次调用自行分配工作内存，可被并发调用。
type Service struct {
	mu       sync.RWMutex
	pricing  config.PricingConfig
	mc       config.MonteCarloConfig
	european *finance.EuropeanPricer
	heavy    *limiter.SemaphoreLimiter // 限制同时进行的蒙特卡洛计算（交叉校验、路径依赖定价）

	bs      *finance.BlackScholesCalculator
	cache   cache.Cache
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// Option 定义 Service 的可选配置。
type Option func(*Service)

// WithQuoteCache 缓存报价结果。定价是确定性的，相同请求在参数未变时直接返回缓存。
func WithQuoteCache(c cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// NewService 创建定价服务。m 可以为 nil。
func NewService(pcfg config.PricingConfig, mcfg config.MonteCarloConfig, m *metrics.Metrics, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		bs:      finance.NewBlackScholesCalculator(),
		metrics: m,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.UpdateConfig(pcfg, mcfg)
	return s
}

// UpdateConfig 热更新定价参数并清空报价缓存，已在执行中的请求不受影响。
func (s *Service) UpdateConfig(pcfg config.PricingConfig, mcfg config.MonteCarloConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pricing = pcfg
	s.mc = mcfg
	s.european = finance.NewEuropeanPricer(finance.WithMaxAggregatedSteps(pcfg.MaxAggregatedSteps))
	s.heavy = limiter.NewSemaphoreLimiter(mcfg.MaxRunning)
	if s.cache != nil {
		if err := s.cache.Reset(); err != nil {
			s.logger.Error("failed to reset quote cache", "error", err)
		}
	}
}

// OnConfigReload 适配 config.RegisterReloadHook。
func (s *Service) OnConfigReload(cfg *config.Config) {
	s.UpdateConfig(cfg.Pricing, cfg.MonteCarlo)
	s.logger.Info("pricing config reloaded",
		"max_steps", cfg.Pricing.MaxSteps,
		"max_aggregated_steps", cfg.Pricing.MaxAggregatedSteps,
		"paths", cfg.MonteCarlo.Paths,
	)
}

func (s *Service) snapshot() (config.PricingConfig, config.MonteCarloConfig, *finance.EuropeanPricer) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pricing, s.mc, s.european
}

func (s *Service) heavyLimiter() *limiter.SemaphoreLimiter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heavy
}

// Quote 对单个期权定价。
func (s *Service) Quote(ctx context.Context, req *QuoteRequest) (*Quote, error) {
	if req == nil {
		return nil, xerrors.InvalidParameters("request is required")
	}
	engine := engineCRR
	if req.Style == StyleBSApprox || (req.Binomial == nil && req.BlackScholes != nil) {
		engine = engineCRRBS
	}
	ctx = contextx.WithEngine(ctx, engine)
	ctx, span := tracing.StartSpan(ctx, "pricing.Quote")
	defer span.End()
	tracing.AddTag(ctx, "option", req.Option)
	tracing.AddTag(ctx, "style", req.Style)
	defer logging.LogDuration(ctx, "quote", "option", req.Option, "style", req.Style)()

	key, cached := s.cachedQuote(ctx, req)
	if cached != nil {
		tracing.AddTag(ctx, "cache", "hit")
		return cached, nil
	}

	start := time.Now()
	q, err := s.quote(req)
	s.metrics.ObservePricing(engine, req.Style, time.Since(start), err)
	if err != nil {
		tracing.SetError(ctx, err)
		s.logger.WarnContext(ctx, "quote rejected", "error", err)
		return nil, err
	}
	s.metrics.ObserveSteps(q.Steps)
	tracing.AddTag(ctx, "steps", q.Steps)

	if key != "" {
		if err := s.cache.Set(ctx, key, q); err != nil {
			s.logger.WarnContext(ctx, "failed to cache quote", "error", err)
		}
	}
	return q, nil
}

// cachedQuote 返回缓存键与命中的报价。缓存未开启或请求无法编码时键为空。
func (s *Service) cachedQuote(ctx context.Context, req *QuoteRequest) (string, *Quote) {
	if s.cache == nil {
		return "", nil
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return "", nil
	}
	sum := sha256.Sum256(raw)
	key := "quote:" + hex.EncodeToString(sum[:])

	var q Quote
	if err := s.cache.Get(ctx, key, &q); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.WarnContext(ctx, "quote cache read failed", "error", err)
		}
		s.metrics.ObserveCache(false)
		return key, nil
	}
	s.metrics.ObserveCache(true)
	return key, &q
}

func (s *Service) quote(req *QuoteRequest) (*Quote, error) {
	if err := validator.Struct(req); err != nil {
		return nil, err
	}
	pcfg, _, european := s.snapshot()

	payoff, err := finance.NewPayoff(finance.OptionKind(req.Option), req.Strikes...)
	if err != nil {
		return nil, err
	}

	method := finance.MethodIterative
	if req.Method != "" {
		if method, err = finance.ParseMethod(req.Method); err != nil {
			return nil, err
		}
	}

	steps := pcfg.DefaultSteps
	if req.Steps != nil {
		steps = *req.Steps
	}
	if steps > pcfg.MaxSteps {
		return nil, xerrors.InvalidParameters("steps %d exceeds configured maximum %d", steps, pcfg.MaxSteps)
	}

	spec := finance.LatticeSpec{InitialPrice: req.Spot, Steps: steps}
	var american *finance.AmericanPricer
	if req.IncludeExercise || pcfg.RecordExercise {
		american = finance.NewAmericanPricer(finance.WithExerciseMap())
	} else {
		american = finance.NewAmericanPricer()
	}
	contract, err := finance.NewContract(payoff, spec, req.Maturity, european, american)
	if err != nil {
		return nil, err
	}

	var (
		model      finance.RateModel
		calibrated bool
	)
	switch {
	case req.Style == StyleBSApprox && req.BlackScholes == nil:
		return nil, xerrors.InvalidParameters("style %s needs black_scholes parameters", StyleBSApprox)
	case req.BlackScholes != nil:
		model, err = contract.Calibrate(req.BlackScholes.toFinance())
		calibrated = true
	default:
		model, err = finance.NewRateModel(req.Binomial.Up, req.Binomial.Down, req.Binomial.Rate)
	}
	if err != nil {
		return nil, err
	}

	q := &Quote{
		Option:  req.Option,
		Strikes: req.Strikes,
		Style:   req.Style,
		Steps:   steps,
		Model:   newModelView(model, calibrated),
	}

	var price float64
	switch req.Style {
	case StyleEuropean:
		q.Method = string(method)
		price, err = contract.PriceEuropean(model, method)
	default:
		var res *finance.PricingResult
		res, err = contract.PriceAmerican(model)
		if err == nil {
			price = res.Price
			q.Exercise = newExerciseView(res.Exercise)
		}
	}
	if err != nil {
		return nil, err
	}

	q.RawPrice = price
	q.Price = decimal.NewFromFloat(price).Round(pcfg.Precision)
	return q, nil
}

// QuoteBatch 并发执行多个相互独立的定价请求，结果顺序与请求一致；任一失败则返回第一个错误。
func (s *Service) QuoteBatch(ctx context.Context, reqs []QuoteRequest) ([]*Quote, error) {
	pcfg, _, _ := s.snapshot()
	if len(reqs) == 0 {
		return nil, xerrors.InvalidParameters("batch is empty")
	}
	if len(reqs) > pcfg.MaxBatchSize {
		return nil, xerrors.InvalidParameters("batch of %d exceeds configured maximum %d", len(reqs), pcfg.MaxBatchSize)
	}

	quotes := make([]*Quote, len(reqs))
	p := pool.New().
		WithContext(ctx).
		WithMaxGoroutines(max(pcfg.BatchConcurrency, 1)).
		WithCancelOnError().
		WithFirstError()
	for i := range reqs {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			q, err := s.Quote(ctx, &reqs[i])
			if err != nil {
				return xerrors.Wrap(err, xerrors.ErrInternal, "batch quote failed").WithContext("index", i)
			}
			quotes[i] = q
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return quotes, nil
}

// selfCheckPrice 两步二叉树 (u=0.1, d=-0.05, r=0.02, S0=100, K=100) 看涨期权的精确价格。
const selfCheckPrice = 6.548763296168149

// SelfCheck 用一个已知解的两步二叉树校验两种欧式算法，供健康检查使用。
func (s *Service) SelfCheck(ctx context.Context) error {
	_, _, european := s.snapshot()
	model, err := finance.NewRateModel(0.1, -0.05, 0.02)
	if err != nil {
		return err
	}
	spec := finance.LatticeSpec{InitialPrice: 100, Steps: 2}
	for _, method := range []finance.Method{finance.MethodIterative, finance.MethodAggregated} {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := european.Price(model, finance.Call{Strike: 100}, spec, method)
		if err != nil {
			return err
		}
		if math.Abs(v-selfCheckPrice) > 1e-9 {
			return xerrors.Internal(fmt.Sprintf("%s pricer drifted: got %.12f, want %.12f", method, v, selfCheckPrice), nil)
		}
	}
	return nil
}

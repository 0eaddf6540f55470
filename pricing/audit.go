package pricing

import (
	"context"

	"github.com/wyfcoding/pricer/config"
	"github.com/wyfcoding/pricer/scheduler"
	"github.com/wyfcoding/pricer/xerrors"
)

// AuditJobName 定时交叉校验任务名。
const AuditJobName = "cross_validation_audit"

// AuditRequest 由场景的标的与 Black-Scholes 参数以及审计配置组装交叉校验请求。
func AuditRequest(sc config.ScenarioConfig, ac config.AuditConfig) *CrossValidationRequest {
	return &CrossValidationRequest{
		Option:   ac.Option,
		Strike:   ac.Strike,
		Spot:     sc.Spot,
		Maturity: sc.Maturity,
		Steps:    ac.Steps,
		BlackScholes: BlackScholesParams{
			Sigma: sc.BlackScholes.Sigma,
			Rate:  sc.BlackScholes.Rate,
		},
		Paths: ac.Paths,
	}
}

// AuditJob 返回定时执行的交叉校验任务。任一校验未通过时任务记为失败，各项结果同时写入指标。
func (s *Service) AuditJob(sc config.ScenarioConfig, ac config.AuditConfig) scheduler.Job {
	req := AuditRequest(sc, ac)
	return func(ctx context.Context) error {
		report, err := s.CrossValidate(ctx, req)
		if err != nil {
			return err
		}
		if !report.Passed {
			failed := make([]string, 0, len(report.Checks))
			for _, c := range report.Checks {
				if !c.Passed {
					failed = append(failed, c.Name)
				}
			}
			return xerrors.New(xerrors.ErrInternal, 500, "cross validation audit failed", "", nil).
				WithContext("checks", failed)
		}
		s.logger.InfoContext(ctx, "cross validation audit passed",
			"option", req.Option, "steps", req.Steps, "black_scholes", report.BlackScholes, "crr", report.CRREuropean)
		return nil
	}
}

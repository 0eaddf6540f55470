package pricing

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/pricer/config"
	"github.com/wyfcoding/pricer/validator"
	"github.com/wyfcoding/pricer/xerrors"
)

// RunScenario 对场景中的每个期权计算欧式 CRR、美式 Snell 包络与 Black-Scholes 标定后的美式近似三种价格。
func (s *Service) RunScenario(ctx context.Context, sc config.ScenarioConfig) ([]ScenarioRow, error) {
	if err := validator.Struct(sc); err != nil {
		return nil, err
	}
	if len(sc.Options) == 0 {
		return nil, xerrors.InvalidParameters("scenario has no options")
	}

	steps := sc.Steps
	binomial := &BinomialParams{Up: sc.Binomial.Up, Down: sc.Binomial.Down, Rate: sc.Binomial.Rate}
	bs := &BlackScholesParams{Sigma: sc.BlackScholes.Sigma, Rate: sc.BlackScholes.Rate}

	// 每个期权三个请求，按 [european, american, bs_approx] 顺序排列。
	reqs := make([]QuoteRequest, 0, 3*len(sc.Options))
	for _, opt := range sc.Options {
		base := QuoteRequest{
			Option:   opt.Kind,
			Strikes:  opt.Strikes,
			Spot:     sc.Spot,
			Steps:    &steps,
			Maturity: sc.Maturity,
		}
		eu, am, approx := base, base, base
		eu.Style, eu.Method, eu.Binomial = StyleEuropean, sc.Method, binomial
		am.Style, am.Binomial = StyleAmerican, binomial
		approx.Style, approx.BlackScholes = StyleBSApprox, bs
		reqs = append(reqs, eu, am, approx)
	}

	quotes, err := s.quoteAll(ctx, reqs)
	if err != nil {
		return nil, err
	}

	rows := make([]ScenarioRow, len(sc.Options))
	for i, opt := range sc.Options {
		rows[i] = ScenarioRow{
			Option:           opt.Kind,
			Strikes:          opt.Strikes,
			European:         quotes[3*i].RawPrice,
			American:         quotes[3*i+1].RawPrice,
			AmericanBSApprox: quotes[3*i+2].RawPrice,
		}
	}
	return rows, nil
}

// quoteAll 与 QuoteBatch 相同，但不受 MaxBatchSize 限制。
func (s *Service) quoteAll(ctx context.Context, reqs []QuoteRequest) ([]*Quote, error) {
	quotes := make([]*Quote, 0, len(reqs))
	pcfg, _, _ := s.snapshot()
	size := max(pcfg.MaxBatchSize, 1)
	for start := 0; start < len(reqs); start += size {
		end := min(start+size, len(reqs))
		part, err := s.QuoteBatch(ctx, reqs[start:end])
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, part...)
	}
	return quotes, nil
}

// WriteScenario 以对齐的文本表格输出场景结果。
func WriteScenario(w io.Writer, rows []ScenarioRow, precision int32) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OPTION\tSTRIKES\tEUROPEAN\tAMERICAN\tAMERICAN (BS APPROX)")
	for _, r := range rows {
		strikes := make([]string, len(r.Strikes))
		for i, k := range r.Strikes {
			strikes[i] = strconv.FormatFloat(k, 'f', -1, 64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Option,
			strings.Join(strikes, "/"),
			formatPrice(r.European, precision),
			formatPrice(r.American, precision),
			formatPrice(r.AmericanBSApprox, precision),
		)
	}
	return tw.Flush()
}

func formatPrice(v float64, precision int32) string {
	return decimal.NewFromFloat(v).StringFixed(precision)
}

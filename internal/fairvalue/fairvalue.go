// Package fairvalue runs the valuation pipeline for one ticker or a batch:
// it pulls statement rows from a provider, derives the metrics record and
// values it with the DCF engine.
package fairvalue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/fairvalue/internal/analysis/metrics"
	"github.com/seenimoa/fairvalue/internal/analysis/valuation"
	"github.com/seenimoa/fairvalue/internal/infra"
	"github.com/seenimoa/fairvalue/internal/provider"
	"github.com/seenimoa/fairvalue/pkg/models"
	"github.com/seenimoa/fairvalue/pkg/utils"
)

// Options tune provider calls and batch fan-out.
type Options struct {
	Timeout     time.Duration     // per provider call; zero means none
	Retry       infra.RetryPolicy // applied to provider errors only
	Concurrency int               // tickers valued at once in a batch
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Timeout: 20 * time.Second,
		Retry: infra.RetryPolicy{
			MaxRetries:     2,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     8 * time.Second,
			Multiplier:     2,
		},
		Concurrency: 4,
	}
}

// Valuer values tickers against one statement provider.
type Valuer struct {
	provider provider.Provider
	opts     Options
}

// New creates a Valuer reading from p.
func New(p provider.Provider, opts Options) *Valuer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Valuer{provider: p, opts: opts}
}

// Job is one ticker to value in a batch.
type Job struct {
	Ticker string
	Params valuation.Params
}

// Outcome is the result of valuing one ticker. Exactly one of Result and
// Err is set; Metrics is set whenever derivation succeeded.
type Outcome struct {
	RunID   string            `json:"run_id,omitempty"`
	Ticker  string            `json:"ticker"`
	Params  valuation.Params  `json:"params"`
	Metrics *models.Metrics   `json:"metrics,omitempty"`
	Result  *valuation.Result `json:"result,omitempty"`
	Err     error             `json:"-"`
	Error   string            `json:"error,omitempty"`
	Kind    string            `json:"error_kind,omitempty"`
}

// OK reports whether the ticker was valued.
func (o Outcome) OK() bool { return o.Err == nil }

func (o *Outcome) fail(err error) {
	o.Err = err
	o.Error = err.Error()
	o.Kind = models.ErrorKind(err)
}

// Metrics fetches the nine statement rows and the beta of ticker
// concurrently and derives its metrics record.
func (v *Valuer) Metrics(ctx context.Context, ticker string) (models.Metrics, error) {
	ticker = utils.NormalizeTicker(ticker)

	var in metrics.Inputs
	rows := map[provider.LineItem]*models.RawSeries{
		provider.TotalRevenue:                &in.Revenue,
		provider.EBITDA:                      &in.EBITDA,
		provider.TaxProvision:                &in.TaxProvision,
		provider.PretaxIncome:                &in.PretaxIncome,
		provider.DepreciationAndAmortization: &in.DA,
		provider.CapitalExpenditure:          &in.Capex,
		provider.ChangeInWorkingCapital:      &in.DeltaWorkCap,
		provider.NetDebt:                     &in.NetDebt,
		provider.ShareIssued:                 &in.Shares,
	}

	g, gctx := errgroup.WithContext(ctx)
	for item, dst := range rows {
		item, dst := item, dst
		g.Go(func() error {
			return v.call(gctx, ticker, item.String(), func(ctx context.Context) error {
				s, err := v.provider.Series(ctx, ticker, item, models.Lookback)
				*dst = s
				return err
			})
		})
	}
	g.Go(func() error {
		return v.call(gctx, ticker, "beta", func(ctx context.Context) error {
			b, err := v.provider.Beta(ctx, ticker)
			in.Beta = b
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return models.Metrics{}, err
	}

	return metrics.Derive(ticker, in)
}

// Value derives the metrics of ticker and values it with p.
func (v *Valuer) Value(ctx context.Context, ticker string, p valuation.Params) (*Outcome, error) {
	out := &Outcome{Ticker: utils.NormalizeTicker(ticker), Params: p}

	m, err := v.Metrics(ctx, out.Ticker)
	if err != nil {
		out.fail(err)
		return out, err
	}
	out.Metrics = &m

	res, err := valuation.Value(m, p)
	if err != nil {
		out.fail(err)
		return out, err
	}
	out.Result = res
	return out, nil
}

// Batch values every job, at most Options.Concurrency at a time. A failing
// ticker is recorded in its outcome and does not stop the others. Outcomes
// are returned in job order.
func (v *Valuer) Batch(ctx context.Context, jobs []Job) []Outcome {
	runID := uuid.NewString()
	started := time.Now()
	logger := log.With().Str("run_id", runID).Logger()
	logger.Info().Int("tickers", len(jobs)).Int("concurrency", v.opts.Concurrency).Msg("batch started")

	outcomes := make([]Outcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(v.opts.Concurrency)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			out, err := v.Value(ctx, job.Ticker, job.Params)
			out.RunID = runID
			outcomes[i] = *out

			if err != nil {
				logger.Warn().Err(err).Str("ticker", out.Ticker).Str("kind", out.Kind).Msg("valuation failed")
			} else {
				logger.Info().Str("ticker", out.Ticker).Float64("fair_value", out.Result.FairValue).Msg("valued")
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
		}
	}
	logger.Info().Int("ok", len(jobs)-failed).Int("failed", failed).Dur("took", time.Since(started)).Msg("batch finished")
	return outcomes
}

// call runs one provider call with the per-call timeout, retrying provider
// errors under the retry policy.
func (v *Valuer) call(ctx context.Context, ticker, op string, fn func(ctx context.Context) error) error {
	err := infra.Retry(ctx, v.opts.Retry, isProviderError, func(ctx context.Context) error {
		if v.opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, v.opts.Timeout)
			defer cancel()
		}
		return fn(ctx)
	})
	if err != nil {
		log.Debug().Err(err).Str("ticker", ticker).Str("op", op).Msg("provider call failed")
	}
	return err
}

func isProviderError(err error) bool {
	var pe *models.ProviderError
	return errors.As(err, &pe)
}

package repeat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/abdul-hamid-achik/hitshot/packages/http"
	"github.com/abdul-hamid-achik/hitshot/packages/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Creator starts tasks. *model.Model satisfies it.
type Creator interface {
	CreateRequest(req http.Request, opts model.RequestOptions) *http.Task
}

// Runner fires a descriptor Config.Count times
type Runner struct {
	config     *Config
	creator    Creator
	logger     *slog.Logger
	onResponse func(*http.Response)
}

// RunnerOption configures the runner
type RunnerOption func(*Runner)

func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithOnResponse registers fn for every finished task. Calls are serialised.
func WithOnResponse(fn func(*http.Response)) RunnerOption {
	return func(r *Runner) {
		r.onResponse = fn
	}
}

func NewRunner(config *Config, creator Creator, opts ...RunnerOption) *Runner {
	if config == nil {
		config = DefaultConfig()
	}
	r := &Runner{
		config:  config,
		creator: creator,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run fires req and blocks until every started task is terminal. When ctx
// ends early, tasks not yet started are skipped, tasks still in Created are
// cancelled, and the partial summary is returned with ctx's error.
func (r *Runner) Run(ctx context.Context, req http.Request, opts model.RequestOptions) (*Summary, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if r.config.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.config.Rate), 1)
	}

	// every task gets its own audit trail
	opts.Auditor = nil
	outer := opts.Cancelled
	opts.Cancelled = func() bool {
		if ctx.Err() != nil {
			return true
		}
		return outer != nil && outer()
	}

	metrics := NewMetrics()
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(r.config.Concurrency)

	metrics.Start()
	var runErr error
	for i := 0; i < r.config.Count; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				runErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		g.Go(func() error {
			task := r.creator.CreateRequest(req, opts)
			<-task.Done()

			resp := task.Response()
			metrics.Record(resp)
			r.logger.Debug("repeat response", "ref", resp.ReferenceID, "state", resp.State, "status", resp.StatusCode, "elapsed", resp.Elapsed)

			if r.onResponse != nil {
				mu.Lock()
				r.onResponse(resp)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	metrics.Stop()

	summary := metrics.Summary()
	if !r.config.Thresholds.IsZero() {
		summary.Evaluate(r.config.Thresholds)
	}
	if runErr == nil {
		runErr = ctx.Err()
	}
	return summary, runErr
}

package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/batch"
	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/structured"
)

// normalizeGrace bounds normalization that runs after the run deadline.
const normalizeGrace = 30 * time.Second

// plan wires the mode-specific stages of a run.
type plan[T any] struct {
	job       extract.DepartmentJob
	schema    structured.Schema[T]
	object    string
	discover  func(ctx context.Context) ([]string, error)
	extract   func(ctx context.Context, urls []string) ([]T, batch.Summary, bool, error)
	normalize func(ctx context.Context, records []T) ([]extract.InterestEdge, error)
}

// execute drives a plan through the state machine. A batch timeout returns
// the partial result together with an error wrapping extract.ErrBatchTimeout.
func execute[T any](ctx context.Context, s *Service, opts Options, p plan[T]) (Result[T], error) {
	r, err := s.begin(p.job)
	if err != nil {
		return Result[T]{Job: p.job, State: StateFailed}, err
	}
	res := newResult[T](r)

	ctx, cancel := context.WithTimeout(ctx, s.timeout(p.job.Mode))
	defer cancel()

	r.enter(StateDiscovering)
	urls, err := p.discover(ctx)
	if err != nil {
		if discoveryErr(ctx, err) {
			err = r.fail(deadlineErr(p.job.Mode, err))
			finish(r, &res)
			return res, err
		}
		r.logger.Warn("discovery failed, continuing with no pages", zap.Error(err))
		urls = nil
	}
	res.Discovered = len(urls)

	r.enter(StateExtracting)
	records, summary, partial, runErr := p.extract(ctx, urls)
	if terminal(runErr) {
		err = r.fail(runErr)
		finish(r, &res)
		return res, err
	}
	if records != nil {
		res.Records = records
	}
	res.Summary = summary
	res.Partial = partial

	if p.normalize != nil {
		r.enter(StateNormalizing)
		nctx := ctx
		if ctx.Err() != nil {
			var ncancel context.CancelFunc
			nctx, ncancel = context.WithTimeout(context.WithoutCancel(ctx), normalizeGrace)
			defer ncancel()
		}
		edges, err := p.normalize(nctx, res.Records)
		if err != nil {
			r.logger.Warn("normalization failed", zap.Error(err))
		}
		res.Edges = edges
	}

	r.done(len(res.Records), res.Partial)
	finish(r, &res)

	if opts.Persist && s.gateway != nil {
		switch {
		case len(res.Records) == 0:
			r.logger.Info("nothing to persist")
		case res.Partial:
			r.logger.Warn("partial result not persisted")
		default:
			persisted, perr := persist(context.WithoutCancel(ctx), s.gateway, r, p.schema, p.object, res.Records)
			res.Persisted = persisted
			res.PersistErr = perr
			if perr != nil {
				r.logger.Error("persistence failed", zap.Error(perr))
			}
		}
	}
	return res, runErr
}

// Package batch runs independent extraction tasks behind a shared admission
// gate. Every input gets exactly one outcome, failures stay local to their
// task, and an overall deadline yields a partial report instead of nothing.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/metrics"
)

// DefaultMaxConcurrency is the admission limit used when none is configured.
const DefaultMaxConcurrency = 5

// Kind tags a task outcome.
type Kind string

// Outcome kinds.
const (
	KindSuccess       Kind = "success"
	KindFetchFailed   Kind = "fetch_failed"
	KindExtractFailed Kind = "extract_failed"
	KindTimedOut      Kind = "timeout"
	KindCanceled      Kind = "canceled"
)

// Outcome is the result of one task.
type Outcome[T any] struct {
	Key      string
	Value    T
	Kind     Kind
	Err      error
	Duration time.Duration
}

// Summary counts outcomes by kind.
type Summary struct {
	Total         int `json:"total"`
	Succeeded     int `json:"succeeded"`
	FetchFailed   int `json:"fetch_failed"`
	ExtractFailed int `json:"extract_failed"`
	TimedOut      int `json:"timed_out"`
	Canceled      int `json:"canceled"`
}

// Report holds one outcome per input, index-aligned with the input slice.
type Report[T any] struct {
	Outcomes []Outcome[T]
	// Partial is set when the batch stopped before every task finished.
	Partial bool
}

// Values returns the successful values in input order.
func (r Report[T]) Values() []T {
	out := make([]T, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Kind == KindSuccess {
			out = append(out, o.Value)
		}
	}
	return out
}

// Failures returns every non-successful outcome.
func (r Report[T]) Failures() []Outcome[T] {
	var out []Outcome[T]
	for _, o := range r.Outcomes {
		if o.Kind != KindSuccess {
			out = append(out, o)
		}
	}
	return out
}

// Summary counts outcomes by kind.
func (r Report[T]) Summary() Summary {
	s := Summary{Total: len(r.Outcomes)}
	for _, o := range r.Outcomes {
		switch o.Kind {
		case KindSuccess:
			s.Succeeded++
		case KindFetchFailed:
			s.FetchFailed++
		case KindExtractFailed:
			s.ExtractFailed++
		case KindTimedOut:
			s.TimedOut++
		case KindCanceled:
			s.Canceled++
		}
	}
	return s
}

// Add folds another summary into s.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		Total:         s.Total + o.Total,
		Succeeded:     s.Succeeded + o.Succeeded,
		FetchFailed:   s.FetchFailed + o.FetchFailed,
		ExtractFailed: s.ExtractFailed + o.ExtractFailed,
		TimedOut:      s.TimedOut + o.TimedOut,
		Canceled:      s.Canceled + o.Canceled,
	}
}

// Engine carries the admission limit and logging for a family of batches.
type Engine struct {
	name   string
	limit  int
	logger *zap.Logger
}

// New builds an Engine. A non-positive limit falls back to DefaultMaxConcurrency.
func New(name string, limit int, logger *zap.Logger) *Engine {
	if limit <= 0 {
		limit = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{name: name, limit: limit, logger: logger.Named("batch").With(zap.String("batch", name))}
}

// Limit returns the admission limit.
func (e *Engine) Limit() int { return e.limit }

// Named returns an Engine sharing the limit under a different batch name.
func (e *Engine) Named(name string) *Engine {
	return &Engine{name: name, limit: e.limit, logger: e.logger.With(zap.String("batch", name))}
}

// Run executes work for every item with at most e.Limit() tasks in flight.
//
// The returned report always has len(items) outcomes. When ctx expires, tasks
// that have not finished are tagged KindTimedOut, Report.Partial is set and the
// error wraps extract.ErrBatchTimeout. A task failing with
// extract.ErrCapabilityUnavailable cancels the rest and is returned as the error.
func Run[I, T any](
	ctx context.Context,
	e *Engine,
	items []I,
	key func(I) string,
	work func(context.Context, I) (T, error),
) (Report[T], error) {
	rec := newRecorder[T](len(items))
	for i, item := range items {
		rec.outcomes[i].Key = key(item)
	}
	if len(items) == 0 {
		return Report[T]{Outcomes: rec.outcomes}, nil
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(e.limit)
		for i, item := range items {
			if runCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				if runCtx.Err() != nil {
					return nil
				}
				metrics.IncBatchInFlight()
				defer metrics.DecBatchInFlight()

				start := time.Now()
				value, err := work(runCtx, item)
				kind := classify(err, runCtx.Err() != nil)
				if kind == "" {
					cancel(err)
					return nil
				}
				rec.set(i, Outcome[T]{Key: rec.key(i), Value: value, Kind: kind, Err: err, Duration: time.Since(start)})
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-runCtx.Done():
	}

	cause := context.Cause(runCtx)
	pendingKind := KindTimedOut
	if !errors.Is(cause, context.DeadlineExceeded) {
		pendingKind = KindCanceled
	}
	report := Report[T]{Outcomes: rec.seal(pendingKind, cause)}
	// Tasks can time out on their own before the batch deadline fires, for
	// example when a rate limiter knows its token arrives too late.
	sum := report.Summary()
	report.Partial = sum.TimedOut+sum.Canceled > 0

	observe(e, report)

	switch {
	case errors.Is(cause, extract.ErrCapabilityUnavailable):
		e.logger.Error("batch aborted", zap.Error(cause))
		return report, fmt.Errorf("batch %s aborted: %w", e.name, cause)
	case sum.TimedOut > 0:
		e.logger.Warn("batch deadline exceeded",
			zap.Int("unstarted_or_running", rec.pending),
			zap.Int("timed_out", sum.TimedOut),
			zap.Int("total", len(items)))
		return report, fmt.Errorf("batch %s: %w", e.name, extract.ErrBatchTimeout)
	case report.Partial:
		if cause == nil {
			cause = context.Canceled
		}
		return report, fmt.Errorf("batch %s: %w", e.name, cause)
	}
	return report, nil
}

// classify maps a task error to an outcome kind. An empty kind means the
// whole batch must abort. While the batch is still running, a per-URL request
// timeout is a fetch failure; a bare deadline error means the task could not
// finish in the time the batch has left.
func classify(err error, batchDone bool) Kind {
	switch {
	case err == nil:
		return KindSuccess
	case errors.Is(err, extract.ErrCapabilityUnavailable):
		return ""
	case batchDone && errors.Is(err, context.DeadlineExceeded):
		return KindTimedOut
	case batchDone && errors.Is(err, context.Canceled):
		return KindCanceled
	case extract.IsFetchFailure(err):
		return KindFetchFailed
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimedOut
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindExtractFailed
	}
}

func observe[T any](e *Engine, report Report[T]) {
	for _, o := range report.Outcomes {
		metrics.ObserveBatchOutcome(e.name, string(o.Kind))
		if o.Kind != KindSuccess && o.Err != nil {
			e.logger.Warn("task failed", zap.String("key", o.Key), zap.String("outcome", string(o.Kind)), zap.Error(o.Err))
		}
	}
	s := report.Summary()
	e.logger.Info("batch finished",
		zap.Int("total", s.Total),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("fetch_failed", s.FetchFailed),
		zap.Int("extract_failed", s.ExtractFailed),
		zap.Int("timed_out", s.TimedOut),
		zap.Bool("partial", report.Partial),
	)
}

// recorder collects outcomes by index. Once sealed, late writes from tasks
// still running are dropped.
type recorder[T any] struct {
	mu       sync.Mutex
	outcomes []Outcome[T]
	filled   []bool
	sealed   bool
	pending  int
}

func newRecorder[T any](n int) *recorder[T] {
	return &recorder[T]{outcomes: make([]Outcome[T], n), filled: make([]bool, n)}
}

func (r *recorder[T]) key(i int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[i].Key
}

func (r *recorder[T]) set(i int, o Outcome[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	r.outcomes[i] = o
	r.filled[i] = true
}

func (r *recorder[T]) seal(kind Kind, cause error) []Outcome[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	if cause == nil {
		cause = context.Canceled
	}
	for i := range r.outcomes {
		if r.filled[i] {
			continue
		}
		r.pending++
		r.outcomes[i].Kind = kind
		r.outcomes[i].Err = cause
	}
	out := make([]Outcome[T], len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

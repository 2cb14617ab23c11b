// Package pipeline composes discovery, batch extraction, normalization and
// persistence into one call per source: research and courses per department,
// events for the whole site.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/batch"
	"github.com/JakeFAU/campus-extractor/internal/catalog"
	"github.com/JakeFAU/campus-extractor/internal/discovery"
	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/logging"
	"github.com/JakeFAU/campus-extractor/internal/metrics"
	"github.com/JakeFAU/campus-extractor/internal/normalize"
	"github.com/JakeFAU/campus-extractor/internal/structured"
)

// State is a pipeline run state.
type State string

// Run states. Normalizing is only entered by research runs.
const (
	StateNotStarted  State = "not_started"
	StateDiscovering State = "discovering"
	StateExtracting  State = "extracting"
	StateNormalizing State = "normalizing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Options tune one run.
type Options struct {
	// Debug forces browser rendering for every fetch.
	Debug bool
	// Persist hands the records to the persistence gateway.
	Persist bool
}

// Result is the outcome of one run. Records are the primary deliverable;
// persistence problems land in PersistErr without invalidating them.
type Result[T any] struct {
	RunID      string                 `json:"run_id"`
	Job        extract.DepartmentJob  `json:"job"`
	State      State                  `json:"state"`
	Records    []T                    `json:"records"`
	Edges      []extract.InterestEdge `json:"edges,omitempty"`
	Discovered int                    `json:"discovered"`
	Summary    batch.Summary          `json:"summary"`
	Partial    bool                   `json:"partial"`
	Persisted  *Persisted             `json:"persisted,omitempty"`
	PersistErr error                  `json:"-"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

// Count returns the number of records.
func (r Result[T]) Count() int { return len(r.Records) }

// Deps are the collaborators of a Service.
type Deps struct {
	Catalog    *catalog.Catalog
	Discoverer *discovery.Discoverer
	Fetcher    extract.PageFetcher
	Extractor  *structured.Extractor
	Normalizer *normalize.Normalizer
	Engine     *batch.Engine
	Gateway    *Gateway
	Timeouts   map[extract.Mode]time.Duration
	IDs        extract.IDGenerator
	Clock      extract.Clock
	Logger     *zap.Logger
}

// Service runs pipelines.
type Service struct {
	catalog    *catalog.Catalog
	discoverer *discovery.Discoverer
	fetcher    extract.PageFetcher
	extractor  *structured.Extractor
	normalizer *normalize.Normalizer
	engine     *batch.Engine
	gateway    *Gateway
	timeouts   map[extract.Mode]time.Duration
	ids        extract.IDGenerator
	clock      extract.Clock
	logger     *zap.Logger
}

// New validates deps and builds a Service. A missing extractor is allowed so
// the service can start; runs then fail with ErrCapabilityUnavailable.
func New(deps Deps) (*Service, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pipeline: catalog is required")
	}
	if deps.IDs == nil || deps.Clock == nil {
		return nil, errors.New("pipeline: id generator and clock are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Engine == nil {
		deps.Engine = batch.New("extract", batch.DefaultMaxConcurrency, deps.Logger)
	}
	if deps.Discoverer == nil {
		deps.Discoverer = discovery.New(deps.Catalog, deps.Fetcher, deps.Logger)
	}
	return &Service{
		catalog:    deps.Catalog,
		discoverer: deps.Discoverer,
		fetcher:    deps.Fetcher,
		extractor:  deps.Extractor,
		normalizer: deps.Normalizer,
		engine:     deps.Engine,
		gateway:    deps.Gateway,
		timeouts:   deps.Timeouts,
		ids:        deps.IDs,
		clock:      deps.Clock,
		logger:     deps.Logger.Named("pipeline"),
	}, nil
}

func (s *Service) timeout(mode extract.Mode) time.Duration {
	if d := s.timeouts[mode]; d > 0 {
		return d
	}
	if mode == extract.ModeEvents {
		return 600 * time.Second
	}
	return 300 * time.Second
}

func (s *Service) extraction(name string, debug bool) batch.Extraction {
	return batch.Extraction{
		Engine:    s.engine.Named(name),
		Fetcher:   s.fetcher,
		Extractor: s.extractor,
		Debug:     debug,
	}
}

// run tracks state transitions of a single pipeline invocation.
type run struct {
	job     extract.DepartmentJob
	id      string
	state   State
	started time.Time
	clock   extract.Clock
	logger  *zap.Logger
}

func (s *Service) begin(job extract.DepartmentJob) (*run, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	r := &run{job: job, id: id, state: StateNotStarted, started: s.clock.Now(), clock: s.clock}
	r.logger = logging.ForJob(s.logger, job, id)
	r.logger.Info("pipeline started")
	return r, nil
}

func (r *run) enter(state State) {
	r.logger.Debug("pipeline state", zap.String("from", string(r.state)), zap.String("to", string(state)))
	r.state = state
}

func (r *run) fail(err error) error {
	r.enter(StateFailed)
	metrics.ObservePipelineRun(string(r.job.Mode), string(StateFailed), r.clock.Now().Sub(r.started))
	r.logger.Error("pipeline failed", zap.Error(err))
	return err
}

func (r *run) done(count int, partial bool) {
	r.enter(StateDone)
	metrics.ObservePipelineRun(string(r.job.Mode), string(StateDone), r.clock.Now().Sub(r.started))
	r.logger.Info("pipeline finished", zap.Int("records", count), zap.Bool("partial", partial))
}

func newResult[T any](r *run) Result[T] {
	return Result[T]{RunID: r.id, Job: r.job, State: r.state, Records: []T{}, StartedAt: r.started}
}

func finish[T any](r *run, res *Result[T]) {
	res.State = r.state
	res.FinishedAt = r.clock.Now()
}

// discoveryErr decides whether a discovery error ends the run. Listing fetch
// failures, including a single request timing out, degrade to an empty run;
// input, capability and run deadline errors do not.
func discoveryErr(ctx context.Context, err error) bool {
	var unknown *extract.UnknownDepartmentError
	switch {
	case errors.As(err, &unknown),
		errors.Is(err, extract.ErrCapabilityUnavailable):
		return true
	case ctx.Err() != nil:
		return true
	case extract.IsFetchFailure(err):
		return false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return true
	}
	return false
}

// terminal reports whether an extraction error fails the run. Batch timeouts
// keep the partial records and are returned alongside the result.
func terminal(err error) bool {
	return err != nil && !errors.Is(err, extract.ErrBatchTimeout)
}

func deadlineErr(mode extract.Mode, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, extract.ErrBatchTimeout) {
		return fmt.Errorf("%s discovery: %w: %w", mode, extract.ErrBatchTimeout, err)
	}
	return err
}

func departmentCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

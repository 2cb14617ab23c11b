package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/ingest"
	"github.com/JakeFAU/campus-extractor/internal/metrics"
	"github.com/JakeFAU/campus-extractor/internal/pipeline"
)

// Pipelines runs extractions on behalf of the HTTP handlers.
type Pipelines interface {
	Research(ctx context.Context, department string, opts pipeline.Options) (pipeline.Result[extract.ProfessorRecord], error)
	Courses(ctx context.Context, department string, opts pipeline.Options) (pipeline.Result[extract.CourseRecord], error)
	Events(ctx context.Context, opts pipeline.Options) (pipeline.Result[extract.EventRecord], error)
	All(ctx context.Context, opts pipeline.Options) pipeline.AllReport
}

// Ingester loads an uploaded object into the record store.
type Ingester interface {
	Ingest(ctx context.Context, objectPath string) (ingest.Summary, error)
}

// ProfessorLister reads stored professors back.
type ProfessorLister interface {
	ListProfessors(ctx context.Context, limit int) ([]extract.ProfessorRecord, error)
}

// Check is a readiness check for one downstream.
type Check func(ctx context.Context) error

// RequestIDs produces request correlation IDs.
type RequestIDs interface {
	NewRequestID() string
}

// WebhookConfig authenticates and filters storage notifications.
type WebhookConfig struct {
	// Secret is the expected bearer token. An empty secret rejects every call.
	Secret string
	// Bucket is the only bucket whose objects are ingested.
	Bucket string
}

// Deps are the collaborators of a Server. Pipelines is required; the rest
// degrade to 503 or 500 responses when absent.
type Deps struct {
	Pipelines Pipelines
	Ingester  Ingester
	Records   ProfessorLister
	Webhook   WebhookConfig
	// PersistByDefault applies when a request carries no persist parameter.
	PersistByDefault bool
	Checks           map[string]Check
	RequestIDs       RequestIDs
	Logger           *zap.Logger
}

// Server wires HTTP handlers to the pipelines and stores.
type Server struct {
	router    chi.Router
	pipelines Pipelines
	ingester  Ingester
	records   ProfessorLister
	webhook   WebhookConfig
	persist   bool
	checks    map[string]Check
	ids       RequestIDs
	logger    *zap.Logger
}

const (
	storeTimeout = 60 * time.Second
	readyTimeout = 2 * time.Second
)

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipelines: deps.Pipelines,
		ingester:  deps.Ingester,
		records:   deps.Records,
		webhook:   deps.Webhook,
		persist:   deps.PersistByDefault,
		checks:    deps.Checks,
		ids:       deps.RequestIDs,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/", s.index)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	// Extraction runs carry their own per-mode deadline.
	r.Route("/extract", func(r chi.Router) {
		r.Get("/research/{department_code}", s.extractResearch)
		r.Get("/courses/{department_code}", s.extractCourses)
		r.Get("/events", s.extractEvents)
		r.Get("/all", s.extractAll)
	})

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(storeTimeout))
		r.Post("/write-to-db", s.writeToDB)
		r.Get("/records/professors", s.listProfessors)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service": "campus-extractor",
		"endpoints": []string{
			"GET /extract/research/{department_code}",
			"GET /extract/courses/{department_code}",
			"GET /extract/events",
			"GET /extract/all",
			"POST /write-to-db",
			"GET /records/professors",
		},
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "failed": failed})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusFor maps a pipeline error onto an HTTP status.
func statusFor(err error) int {
	var unknown *extract.UnknownDepartmentError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &unknown):
		return http.StatusBadRequest
	case errors.Is(err, extract.ErrBatchTimeout):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Int("status", status), zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/pipeline"
)

// extractResponse is a run result plus its persistence error, if any.
type extractResponse[T any] struct {
	pipeline.Result[T]
	PersistError string `json:"persist_error,omitempty"`
}

func (s *Server) extractResearch(w http.ResponseWriter, r *http.Request) {
	opts, ok := s.runOptions(w, r)
	if !ok {
		return
	}
	dept := chi.URLParam(r, "department_code")
	res, err := s.pipelines.Research(r.Context(), dept, opts)
	respond(s, w, fmt.Sprintf("no professors found for %s", dept), res, err)
}

func (s *Server) extractCourses(w http.ResponseWriter, r *http.Request) {
	opts, ok := s.runOptions(w, r)
	if !ok {
		return
	}
	dept := chi.URLParam(r, "department_code")
	res, err := s.pipelines.Courses(r.Context(), dept, opts)
	respond(s, w, fmt.Sprintf("no courses found for %s", dept), res, err)
}

func (s *Server) extractEvents(w http.ResponseWriter, r *http.Request) {
	opts, ok := s.runOptions(w, r)
	if !ok {
		return
	}
	res, err := s.pipelines.Events(r.Context(), opts)
	respond(s, w, "no events found", res, err)
}

func (s *Server) extractAll(w http.ResponseWriter, r *http.Request) {
	opts, ok := s.runOptions(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.pipelines.All(r.Context(), opts))
}

// respond writes 200 with records, 404 when nothing was extracted, 408 with
// the partial result on deadline, and 400 or 500 for other failures.
func respond[T any](s *Server, w http.ResponseWriter, emptyMsg string, res pipeline.Result[T], err error) {
	status := statusFor(err)
	switch {
	case status == http.StatusRequestTimeout:
		s.logger.Warn("extraction timed out", zap.String("run_id", res.RunID), zap.Int("records", res.Count()))
		s.writeJSON(w, status, toResponse(res))
	case err != nil:
		if status == http.StatusInternalServerError {
			s.logger.Error("extraction failed", zap.String("run_id", res.RunID), zap.Error(err))
		}
		s.writeError(w, status, err.Error())
	case res.Count() == 0:
		s.writeError(w, http.StatusNotFound, emptyMsg)
	default:
		s.writeJSON(w, http.StatusOK, toResponse(res))
	}
}

func toResponse[T any](res pipeline.Result[T]) extractResponse[T] {
	out := extractResponse[T]{Result: res}
	if res.PersistErr != nil {
		out.PersistError = res.PersistErr.Error()
	}
	return out
}

// runOptions reads the debug and persist query parameters.
func (s *Server) runOptions(w http.ResponseWriter, r *http.Request) (pipeline.Options, bool) {
	opts := pipeline.Options{Persist: s.persist}
	q := r.URL.Query()
	for name, dst := range map[string]*bool{"debug": &opts.Debug, "persist": &opts.Persist} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s parameter %q", name, raw))
			return pipeline.Options{}, false
		}
		*dst = v
	}
	return opts, true
}

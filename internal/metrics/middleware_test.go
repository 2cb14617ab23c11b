package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/extract/research/{department_code}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})
	r.Get("/extract/courses/{department_code}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	const researchRoute = "/extract/research/{department_code}"
	const coursesRoute = "/extract/courses/{department_code}"
	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, researchRoute, "200"))
	badBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, coursesRoute, "400"))
	missBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404"))

	for _, path := range []string{"/extract/research/CSCI", "/extract/research/MATH", "/extract/courses/CSCI", "/nope"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, okBefore+2,
		testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, researchRoute, "200")), 0)
	require.InDelta(t, badBefore+1,
		testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, coursesRoute, "400")), 0)
	require.InDelta(t, missBefore+1,
		testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")), 0)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func TestStatusWriterKeepsFirstCode(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}
	require.Equal(t, http.StatusOK, sw.code())

	sw.WriteHeader(http.StatusAccepted)
	sw.WriteHeader(http.StatusInternalServerError)
	require.Equal(t, http.StatusAccepted, sw.code())
	require.Same(t, rec, sw.Unwrap())
}

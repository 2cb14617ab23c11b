package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/ingest"
	"github.com/JakeFAU/campus-extractor/internal/pipeline"
)

const testSecret = "s3cret"

func TestServer_ExtractResearch_ReturnsRecords(t *testing.T) {
	t.Parallel()

	p := &fakePipelines{research: pipeline.Result[extract.ProfessorRecord]{
		RunID:   "run-1",
		Records: []extract.ProfessorRecord{{Name: "Ada", SourceURL: "https://cs.example.edu/ada"}},
	}}
	rec := serve(t, newTestServer(p, nil, nil), http.MethodGet, "/extract/research/CSCI?debug=true", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"run_id":"run-1"`)
	require.Contains(t, rec.Body.String(), "Ada")
	require.Equal(t, []string{"CSCI"}, p.departments())
	require.True(t, p.lastOpts.Debug)
	require.True(t, p.lastOpts.Persist)
}

func TestServer_ExtractResearch_StatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		result  pipeline.Result[extract.ProfessorRecord]
		err     error
		want    int
		content string
	}{
		{
			name: "unknown department",
			err:  &extract.UnknownDepartmentError{Code: "NOPE", Mode: extract.ModeResearch},
			want: http.StatusBadRequest, content: "NOPE",
		},
		{
			name: "empty", want: http.StatusNotFound, content: "no professors found for CSCI",
		},
		{
			name: "timeout with partial records",
			result: pipeline.Result[extract.ProfessorRecord]{
				Partial: true,
				Records: []extract.ProfessorRecord{{Name: "Grace", SourceURL: "https://cs.example.edu/grace"}},
			},
			err:  fmt.Errorf("research CSCI: %w", extract.ErrBatchTimeout),
			want: http.StatusRequestTimeout, content: "Grace",
		},
		{
			name: "capability outage",
			err:  fmt.Errorf("batch research aborted: %w", extract.ErrCapabilityUnavailable),
			want: http.StatusInternalServerError, content: "capability unavailable",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := &fakePipelines{research: tc.result, researchErr: tc.err}
			rec := serve(t, newTestServer(p, nil, nil), http.MethodGet, "/extract/research/CSCI", nil, "")
			require.Equal(t, tc.want, rec.Code)
			require.Contains(t, rec.Body.String(), tc.content)
		})
	}
}

func TestServer_ExtractResearch_ReportsPersistError(t *testing.T) {
	t.Parallel()

	p := &fakePipelines{research: pipeline.Result[extract.ProfessorRecord]{
		Records:    []extract.ProfessorRecord{{Name: "Ada", SourceURL: "https://cs.example.edu/ada"}},
		PersistErr: errors.New("bucket unavailable"),
	}}
	rec := serve(t, newTestServer(p, nil, nil), http.MethodGet, "/extract/research/CSCI", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"persist_error":"bucket unavailable"`)
}

func TestServer_ExtractInvalidFlag(t *testing.T) {
	t.Parallel()

	p := &fakePipelines{}
	rec := serve(t, newTestServer(p, nil, nil), http.MethodGet, "/extract/events?persist=maybe", nil, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, p.callCount())
}

func TestServer_ExtractCoursesAndEvents(t *testing.T) {
	t.Parallel()

	p := &fakePipelines{
		courses: pipeline.Result[extract.CourseRecord]{Records: []extract.CourseRecord{{CourseName: "CSCI 141", CourseDescription: "Intro"}}},
		events:  pipeline.Result[extract.EventRecord]{},
	}
	srv := newTestServer(p, nil, nil)

	rec := serve(t, srv, http.MethodGet, "/extract/courses/CSCI?persist=false", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "CSCI 141")
	require.False(t, p.lastOpts.Persist)

	rec = serve(t, srv, http.MethodGet, "/extract/events", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "no events found")
}

func TestServer_ExtractAll(t *testing.T) {
	t.Parallel()

	p := &fakePipelines{all: pipeline.AllReport{
		Summary: pipeline.AllSummary{TotalExtractions: 3, Successful: 2, Failed: 1, OverallStatus: pipeline.StatusPartialSuccess},
	}}
	rec := serve(t, newTestServer(p, nil, nil), http.MethodGet, "/extract/all", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body pipeline.AllReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Summary.TotalExtractions)
	require.Equal(t, pipeline.StatusPartialSuccess, body.Summary.OverallStatus)
}

func TestServer_Webhook_IgnoresDelete(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{}
	rec := serve(t, newTestServer(&fakePipelines{}, ing, nil), http.MethodPost, "/write-to-db",
		webhookBody("DELETE", "research_scrapes", "professors.json"), testSecret)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ignored"`)
	require.Empty(t, ing.objects())
}

func TestServer_Webhook_Unauthorized(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		secret string
		token  string
	}{
		{name: "missing token", secret: testSecret},
		{name: "wrong token", secret: testSecret, token: "nope"},
		{name: "no secret configured", token: "anything"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ing := &fakeIngester{}
			srv := NewServer(Deps{
				Pipelines: &fakePipelines{},
				Ingester:  ing,
				Webhook:   WebhookConfig{Secret: tc.secret, Bucket: "research_scrapes"},
				Logger:    zap.NewNop(),
			})
			rec := serve(t, srv, http.MethodPost, "/write-to-db",
				webhookBody("INSERT", "research_scrapes", "professors.json"), tc.token)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Empty(t, ing.objects())
		})
	}
}

func TestServer_Webhook_IgnoresOtherBucket(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{}
	rec := serve(t, newTestServer(&fakePipelines{}, ing, nil), http.MethodPost, "/write-to-db",
		webhookBody("INSERT", "avatars", "professors.json"), testSecret)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "not watched")
	require.Empty(t, ing.objects())
}

func TestServer_Webhook_IngestsObject(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{summary: ingest.Summary{Object: "professors.json", Mode: extract.ModeResearch, Accepted: 2}}
	rec := serve(t, newTestServer(&fakePipelines{}, ing, nil), http.MethodPost, "/write-to-db",
		webhookBody("UPDATE", "research_scrapes", "professors.json"), testSecret)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"success"`)
	require.Contains(t, rec.Body.String(), `"file_processed":"professors.json"`)
	require.Equal(t, []string{"professors.json"}, ing.objects())
}

func TestServer_Webhook_IngestErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
		body string
	}{
		{name: "unsupported", err: fmt.Errorf("notes.txt: %w", ingest.ErrUnsupportedObject), want: http.StatusOK, body: "ignored"},
		{name: "missing object", err: fmt.Errorf("load x: %w", extract.ErrNotFound), want: http.StatusNotFound, body: "not found"},
		{name: "store failure", err: errors.New("db down"), want: http.StatusInternalServerError, body: "db down"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ing := &fakeIngester{err: tc.err}
			rec := serve(t, newTestServer(&fakePipelines{}, ing, nil), http.MethodPost, "/write-to-db",
				webhookBody("INSERT", "research_scrapes", "professors.json"), testSecret)
			require.Equal(t, tc.want, rec.Code)
			require.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestServer_Webhook_InvalidJSON(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(&fakePipelines{}, &fakeIngester{}, nil), http.MethodPost, "/write-to-db",
		[]byte("{invalid"), testSecret)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListProfessors(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{profs: []extract.ProfessorRecord{{Name: "Ada"}, {Name: "Grace"}}}
	srv := newTestServer(&fakePipelines{}, nil, lister)

	rec := serve(t, srv, http.MethodGet, "/records/professors?limit=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"count":1`)
	require.Equal(t, 1, lister.lastLimit)

	rec = serve(t, srv, http.MethodGet, "/records/professors?limit=zero", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, newTestServer(&fakePipelines{}, nil, nil), http.MethodGet, "/records/professors", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	srv := NewServer(Deps{
		Pipelines: &fakePipelines{},
		Checks: map[string]Check{
			"db": func(context.Context) error { return errors.New("connection refused") },
		},
	})
	rec := serve(t, srv, http.MethodGet, "/readyz", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "connection refused")

	rec = serve(t, newTestServer(&fakePipelines{}, nil, nil), http.MethodGet, "/readyz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	p := &fakePipelines{panicOnAll: true}
	rec := serve(t, newTestServer(p, nil, nil), http.MethodGet, "/extract/all", nil, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	srv := NewServer(Deps{Pipelines: &fakePipelines{}, RequestIDs: staticIDs("req-42")})
	rec := serve(t, srv, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = serve(t, newTestServer(&fakePipelines{}, nil, nil), http.MethodGet, "/", nil, "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Contains(t, rec.Body.String(), "campus-extractor")
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

func TestServer_WriteJSONLogsThroughInjectedLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	s := NewServer(Deps{Pipelines: &fakePipelines{}, Logger: zap.New(core)})

	rec := httptest.NewRecorder()
	s.writeJSON(rec, http.StatusOK, map[string]any{"bad": func() {}})

	require.Equal(t, 1, logs.FilterMessage("write JSON failed").Len())
	entry := logs.All()[0]
	require.Equal(t, int64(http.StatusOK), entry.ContextMap()["status"])
}

func newTestServer(p Pipelines, ing Ingester, lister ProfessorLister) *Server {
	return NewServer(Deps{
		Pipelines:        p,
		Ingester:         ing,
		Records:          lister,
		Webhook:          WebhookConfig{Secret: testSecret, Bucket: "research_scrapes"},
		PersistByDefault: true,
		Logger:           zap.NewNop(),
	})
}

func serve(t *testing.T, s *Server, method, target string, body []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func webhookBody(eventType, bucket, name string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":%q,"table":"objects","schema":"storage","record":{"id":"obj-1","bucket_id":%q,"name":%q},"old_record":null}`,
		eventType, bucket, name,
	))
}

type fakePipelines struct {
	mu          sync.Mutex
	calls       int
	depts       []string
	lastOpts    pipeline.Options
	research    pipeline.Result[extract.ProfessorRecord]
	researchErr error
	courses     pipeline.Result[extract.CourseRecord]
	events      pipeline.Result[extract.EventRecord]
	all         pipeline.AllReport
	panicOnAll  bool
}

func (f *fakePipelines) record(dept string, opts pipeline.Options) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastOpts = opts
	if dept != "" {
		f.depts = append(f.depts, dept)
	}
}

func (f *fakePipelines) departments() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.depts...)
}

func (f *fakePipelines) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePipelines) Research(
	_ context.Context,
	dept string,
	opts pipeline.Options,
) (pipeline.Result[extract.ProfessorRecord], error) {
	f.record(dept, opts)
	return f.research, f.researchErr
}

func (f *fakePipelines) Courses(
	_ context.Context,
	dept string,
	opts pipeline.Options,
) (pipeline.Result[extract.CourseRecord], error) {
	f.record(dept, opts)
	return f.courses, nil
}

func (f *fakePipelines) Events(_ context.Context, opts pipeline.Options) (pipeline.Result[extract.EventRecord], error) {
	f.record("", opts)
	return f.events, nil
}

func (f *fakePipelines) All(_ context.Context, opts pipeline.Options) pipeline.AllReport {
	f.record("", opts)
	if f.panicOnAll {
		panic("boom")
	}
	return f.all
}

type fakeIngester struct {
	mu      sync.Mutex
	seen    []string
	summary ingest.Summary
	err     error
}

func (f *fakeIngester) Ingest(_ context.Context, objectPath string) (ingest.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, objectPath)
	return f.summary, f.err
}

func (f *fakeIngester) objects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

type fakeLister struct {
	profs     []extract.ProfessorRecord
	lastLimit int
}

func (f *fakeLister) ListProfessors(_ context.Context, limit int) ([]extract.ProfessorRecord, error) {
	f.lastLimit = limit
	if limit < len(f.profs) {
		return f.profs[:limit], nil
	}
	return f.profs, nil
}

type staticIDs string

func (s staticIDs) NewRequestID() string { return string(s) }

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

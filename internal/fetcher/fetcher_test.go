package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

func TestPage_FetchPageConvertsMarkdown(t *testing.T) {
	t.Parallel()

	static := &fakeFetcher{body: `<html><body><h1>Jane Doe</h1><p>Robotics</p></body></html>`}
	p, err := New(static, zap.NewNop())
	require.NoError(t, err)

	page, err := p.FetchPage(context.Background(), extract.FetchRequest{URL: "https://cs.example.edu/jane"})
	require.NoError(t, err)
	require.Equal(t, "https://cs.example.edu/jane", page.URL)
	require.Contains(t, page.Content, "# Jane Doe")
	require.False(t, page.Rendered)
}

func TestPage_FetchPageEmptyContent(t *testing.T) {
	t.Parallel()

	p, err := New(&fakeFetcher{body: `<html><body><script>x()</script></body></html>`}, zap.NewNop())
	require.NoError(t, err)

	_, err = p.FetchPage(context.Background(), extract.FetchRequest{URL: "https://cs.example.edu/empty"})
	require.ErrorIs(t, err, extract.ErrEmptyContent)
	require.True(t, extract.IsFetchFailure(err))
}

func TestPage_PromotesToBrowser(t *testing.T) {
	t.Parallel()

	static := &fakeFetcher{body: `<div id="root"></div>`}
	browser := &fakeFetcher{body: `<html><body><p>Rendered faculty list</p></body></html>`, headless: true}
	p, err := New(static, zap.NewNop(), WithBrowser(browser, promoteAll{}))
	require.NoError(t, err)

	page, err := p.FetchPage(context.Background(), extract.FetchRequest{URL: "https://cs.example.edu/people"})
	require.NoError(t, err)
	require.True(t, page.Rendered)
	require.Contains(t, page.Content, "Rendered faculty list")
	require.Equal(t, 1, static.callCount())
	require.Equal(t, 1, browser.callCount())
}

func TestPage_ForceRenderSkipsStatic(t *testing.T) {
	t.Parallel()

	static := &fakeFetcher{body: `<p>static</p>`}
	browser := &fakeFetcher{body: `<p>rendered</p>`, headless: true}
	p, err := New(static, zap.NewNop(), WithBrowser(browser, promoteAll{}))
	require.NoError(t, err)

	page, err := p.FetchPage(context.Background(), extract.FetchRequest{URL: "https://x.edu/", ForceRender: true})
	require.NoError(t, err)
	require.Equal(t, "rendered", page.Content)
	require.Zero(t, static.callCount())
}

func TestPage_BrowserFailureFallsBackToStatic(t *testing.T) {
	t.Parallel()

	static := &fakeFetcher{body: `<p>static body</p>`}
	browser := &fakeFetcher{err: extract.ErrCapabilityUnavailable}
	p, err := New(static, zap.NewNop(), WithBrowser(browser, promoteAll{}))
	require.NoError(t, err)

	page, err := p.FetchPage(context.Background(), extract.FetchRequest{URL: "https://x.edu/"})
	require.NoError(t, err)
	require.Equal(t, "static body", page.Content)
}

func TestPage_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	static := &fakeFetcher{
		body:     `<p>eventually</p>`,
		failures: []error{&extract.FetchError{URL: "https://x.edu/", Err: errors.New("connection reset")}},
	}
	limiter := &countingLimiter{}
	p, err := New(static, zap.NewNop(), WithRetry(fastRetry{max: 3}), WithLimiter(limiter))
	require.NoError(t, err)

	page, err := p.FetchPage(context.Background(), extract.FetchRequest{URL: "https://x.edu/"})
	require.NoError(t, err)
	require.Equal(t, "eventually", page.Content)
	require.Equal(t, 2, static.callCount())
	require.Equal(t, 2, limiter.calls)
}

func TestPage_FetchListing(t *testing.T) {
	t.Parallel()

	static := &fakeFetcher{body: `<div class="row"><a href="/a">A</a></div><div class="row"><a href="/b">B</a></div>`}
	p, err := New(static, zap.NewNop())
	require.NoError(t, err)

	items, err := p.FetchListing(context.Background(), extract.FetchRequest{URL: "https://x.edu/"}, extract.ListingSchema{
		Name:         "faculty",
		BaseSelector: "div.row",
		Fields:       []extract.ListingField{{Name: "page_url", Selector: "a", Type: "attribute", Attribute: "href"}},
	})
	require.NoError(t, err)
	require.Equal(t, []extract.ListingItem{{"page_url": "/a"}, {"page_url": "/b"}}, items)
}

func TestNew_RequiresStatic(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil)
	require.ErrorIs(t, err, extract.ErrCapabilityUnavailable)
}

type fakeFetcher struct {
	mu       sync.Mutex
	body     string
	headless bool
	err      error
	failures []error
	calls    int
}

func (f *fakeFetcher) Fetch(_ context.Context, req extract.FetchRequest) (extract.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return extract.FetchResponse{}, err
	}
	if f.err != nil {
		return extract.FetchResponse{}, f.err
	}
	return extract.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(f.body), UsedHeadless: f.headless}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type promoteAll struct{}

func (promoteAll) ShouldPromote(extract.FetchResponse) bool { return true }

type fastRetry struct{ max int }

func (r fastRetry) ShouldRetry(err error, attempt int) bool {
	return err != nil && attempt < r.max && extract.IsFetchFailure(err)
}

func (fastRetry) Backoff(int) time.Duration { return time.Millisecond }

type countingLimiter struct{ calls int }

func (l *countingLimiter) Wait(context.Context, string) error {
	l.calls++
	return nil
}

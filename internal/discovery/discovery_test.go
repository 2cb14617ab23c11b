package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/catalog"
	"github.com/JakeFAU/campus-extractor/internal/extract"
)

type fakeFetcher struct {
	items    []extract.ListingItem
	err      error
	requests []extract.FetchRequest
}

func (f *fakeFetcher) FetchPage(context.Context, extract.FetchRequest) (extract.SourcePage, error) {
	return extract.SourcePage{}, errors.New("not used")
}

func (f *fakeFetcher) FetchListing(_ context.Context, req extract.FetchRequest, _ extract.ListingSchema) ([]extract.ListingItem, error) {
	f.requests = append(f.requests, req)
	return f.items, f.err
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(catalog.Options{
		Departments: map[string]catalog.DepartmentSpec{
			"CSCI": {BaseURL: "https://cs.example.edu/", FacultyURL: "https://cs.example.edu/faculty"},
		},
		Events: &catalog.EventsSpec{BaseURL: "https://cs.example.edu/", ListingURL: "https://cs.example.edu/events"},
	})
	require.NoError(t, err)
	return c
}

func TestResearch_ResolvesRelativeLinks(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{items: []extract.ListingItem{{"page_url": "/a"}, {"page_url": "/b"}}}
	d := New(testCatalog(t), f, zap.NewNop())

	urls, err := d.Research(context.Background(), "CSCI", false)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"https://cs.example.edu/a", "https://cs.example.edu/b"}, urls)
	require.Equal(t, "https://cs.example.edu/faculty", f.requests[0].URL)
	require.False(t, f.requests[0].ForceRender)
}

func TestResearch_UnknownDepartmentNeverFetches(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{}
	d := New(testCatalog(t), f, zap.NewNop())

	_, err := d.Research(context.Background(), "XYZ", false)
	var unknown *extract.UnknownDepartmentError
	require.ErrorAs(t, err, &unknown)
	require.Empty(t, f.requests)
}

func TestListing_DeduplicatesAndFilters(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{items: []extract.ListingItem{
		{"page_url": "/people/jane"},
		{"page_url": "/people/jane/"},
		{"page_url": "https://CS.example.edu/people/jane#bio"},
		{"page_url": "mailto:office@cs.example.edu"},
		{"name": "No Link"},
		{"page_url": "people/john"},
	}}
	d := New(testCatalog(t), f, zap.NewNop())

	urls, err := d.Research(context.Background(), "csci", true)
	require.NoError(t, err)
	require.Equal(t, []string{"https://cs.example.edu/people/jane", "https://cs.example.edu/people/john"}, urls)
	require.True(t, f.requests[0].ForceRender)
}

func TestListing_EmptyIsNotAnError(t *testing.T) {
	t.Parallel()

	d := New(testCatalog(t), &fakeFetcher{}, zap.NewNop())

	urls, err := d.Events(context.Background(), false)
	require.NoError(t, err)
	require.Empty(t, urls)
}

func TestListing_FetchFailure(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{err: &extract.FetchError{URL: "https://cs.example.edu/faculty", StatusCode: 503, Err: errors.New("down")}}
	d := New(testCatalog(t), f, zap.NewNop())

	_, err := d.Research(context.Background(), "CSCI", false)
	require.True(t, extract.IsFetchFailure(err))
}

func TestListing_NoFetcher(t *testing.T) {
	t.Parallel()

	d := New(testCatalog(t), nil, nil)
	_, err := d.Research(context.Background(), "CSCI", false)
	require.ErrorIs(t, err, extract.ErrCapabilityUnavailable)
}

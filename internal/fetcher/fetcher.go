// Package fetcher turns URLs into extraction-ready pages. It fetches with a
// plain HTTP fetcher, promotes to a browser when the detector asks for it,
// and converts the resulting HTML to markdown or applies a listing schema.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/markdown"
	"github.com/JakeFAU/campus-extractor/internal/metrics"
)

// Page implements extract.PageFetcher.
type Page struct {
	static   extract.Fetcher
	browser  extract.Fetcher
	detector extract.HeadlessDetector
	limiter  extract.Limiter
	retry    extract.RetryPolicy
	logger   *zap.Logger
}

// Option customises a Page fetcher.
type Option func(*Page)

// WithBrowser enables promotion to a rendering fetcher.
func WithBrowser(browser extract.Fetcher, detector extract.HeadlessDetector) Option {
	return func(p *Page) {
		p.browser = browser
		p.detector = detector
	}
}

// WithLimiter waits on a per-host limiter before every network fetch.
func WithLimiter(l extract.Limiter) Option {
	return func(p *Page) { p.limiter = l }
}

// WithRetry retries transient fetch failures.
func WithRetry(r extract.RetryPolicy) Option {
	return func(p *Page) { p.retry = r }
}

// New builds a Page fetcher around the static fetcher.
func New(static extract.Fetcher, logger *zap.Logger, opts ...Option) (*Page, error) {
	if static == nil {
		return nil, fmt.Errorf("page fetcher: %w", extract.ErrCapabilityUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Page{static: static, logger: logger.Named("fetcher")}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// FetchPage fetches a URL and returns its markdown rendering.
func (p *Page) FetchPage(ctx context.Context, request extract.FetchRequest) (extract.SourcePage, error) {
	resp, err := p.fetchHTML(ctx, request)
	if err != nil {
		return extract.SourcePage{}, err
	}
	content, err := markdown.Convert(resp.Body, resp.URL)
	if err != nil {
		return extract.SourcePage{}, &extract.FetchError{URL: request.URL, StatusCode: resp.StatusCode, Err: err}
	}
	if strings.TrimSpace(content) == "" {
		return extract.SourcePage{}, fmt.Errorf("%s: %w", request.URL, extract.ErrEmptyContent)
	}
	return extract.SourcePage{URL: resp.URL, Content: content, Rendered: resp.UsedHeadless}, nil
}

// FetchListing fetches an index page and applies a CSS listing schema.
func (p *Page) FetchListing(
	ctx context.Context,
	request extract.FetchRequest,
	schema extract.ListingSchema,
) ([]extract.ListingItem, error) {
	resp, err := p.fetchHTML(ctx, request)
	if err != nil {
		return nil, err
	}
	items, err := ApplySchema(resp.Body, schema)
	if err != nil {
		return nil, &extract.FetchError{URL: request.URL, StatusCode: resp.StatusCode, Err: err}
	}
	p.logger.Debug("listing extracted",
		zap.String("url", request.URL),
		zap.String("schema", schema.Name),
		zap.Int("items", len(items)),
	)
	return items, nil
}

func (p *Page) fetchHTML(ctx context.Context, request extract.FetchRequest) (extract.FetchResponse, error) {
	if request.ForceRender && p.browser != nil {
		return p.fetchWithRetry(ctx, p.browser, request)
	}
	resp, err := p.fetchWithRetry(ctx, p.static, request)
	if err != nil {
		return extract.FetchResponse{}, err
	}
	if p.browser == nil || p.detector == nil || !p.detector.ShouldPromote(resp) {
		return resp, nil
	}
	p.logger.Debug("promoting to browser", zap.String("url", request.URL))
	rendered, err := p.fetchWithRetry(ctx, p.browser, request)
	if err != nil {
		// The static body is still usable when rendering fails.
		p.logger.Warn("browser render failed, using static body", zap.String("url", request.URL), zap.Error(err))
		return resp, nil
	}
	return rendered, nil
}

func (p *Page) fetchWithRetry(ctx context.Context, f extract.Fetcher, request extract.FetchRequest) (extract.FetchResponse, error) {
	for attempt := 1; ; attempt++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx, request.URL); err != nil {
				return extract.FetchResponse{}, fmt.Errorf("rate limit wait: %w", err)
			}
		}
		resp, err := f.Fetch(ctx, request)
		if err == nil {
			metrics.ObservePageFetch(request.URL, resp.StatusCode, resp.UsedHeadless, resp.Duration)
			return resp, nil
		}
		metrics.ObservePageFetch(request.URL, statusOf(err), false, 0)
		if p.retry == nil || !p.retry.ShouldRetry(err, attempt) {
			return extract.FetchResponse{}, err
		}
		delay := p.retry.Backoff(attempt)
		p.logger.Debug("retrying fetch",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return extract.FetchResponse{}, fmt.Errorf("retry backoff: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func statusOf(err error) int {
	var fe *extract.FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

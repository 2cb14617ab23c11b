// Package discovery enumerates the detail pages linked from a department listing.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/catalog"
	"github.com/JakeFAU/campus-extractor/internal/extract"
)

// Discoverer resolves listing pages into absolute detail URLs.
type Discoverer struct {
	catalog *catalog.Catalog
	fetcher extract.PageFetcher
	logger  *zap.Logger
}

// New builds a Discoverer.
func New(c *catalog.Catalog, fetcher extract.PageFetcher, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{catalog: c, fetcher: fetcher, logger: logger.Named("discovery")}
}

// Research returns the faculty profile URLs for a department. Unknown codes
// fail before any fetch.
func (d *Discoverer) Research(ctx context.Context, department string, debug bool) ([]string, error) {
	src, err := d.catalog.ResearchSource(department)
	if err != nil {
		return nil, err
	}
	return d.Listing(ctx, src, debug)
}

// Events returns the event page URLs from the events calendar.
func (d *Discoverer) Events(ctx context.Context, debug bool) ([]string, error) {
	src, ok := d.catalog.EventsSource()
	if !ok {
		d.logger.Warn("no events listing configured")
		return []string{}, nil
	}
	return d.Listing(ctx, src, debug)
}

// Listing fetches src.ListingURL, applies its schema and resolves each link
// against src.BaseURL. Duplicates by normalized URL are dropped and the result
// is sorted. An empty listing is not an error.
func (d *Discoverer) Listing(ctx context.Context, src catalog.ListingSource, debug bool) ([]string, error) {
	if d.fetcher == nil {
		return nil, fmt.Errorf("discovery: %w", extract.ErrCapabilityUnavailable)
	}
	base, err := url.Parse(src.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	items, err := d.fetcher.FetchListing(ctx, extract.FetchRequest{URL: src.ListingURL, ForceRender: debug}, src.Schema)
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", src.ListingURL, err)
	}

	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		ref := item[src.LinkField]
		if ref == "" {
			continue
		}
		resolved, err := extract.ResolveURL(base, ref)
		if err != nil {
			d.logger.Debug("skipping listing link", zap.String("href", ref), zap.Error(err))
			continue
		}
		key, err := extract.NormalizeURL(resolved)
		if err != nil {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)

	if len(out) == 0 {
		d.logger.Warn("listing yielded no links",
			zap.String("url", src.ListingURL),
			zap.String("schema", src.Schema.Name),
			zap.Int("items", len(items)),
		)
	} else {
		d.logger.Info("discovered pages", zap.String("url", src.ListingURL), zap.Int("count", len(out)))
	}
	return out, nil
}

package batch

import (
	"context"
	"fmt"

	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/structured"
)

// Extraction bundles what a fetch-then-extract batch needs.
type Extraction struct {
	Engine    *Engine
	Fetcher   extract.PageFetcher
	Extractor *structured.Extractor
	Debug     bool
}

// Chunk is one prefiltered slice of a fetched page.
type Chunk struct {
	SourceURL string
	Index     int
	Content   string
}

// Key identifies the chunk in reports.
func (c Chunk) Key() string { return fmt.Sprintf("%s#%d", c.SourceURL, c.Index) }

// ExtractMany fetches each URL and extracts one record from it.
func ExtractMany[T any](
	ctx context.Context,
	x Extraction,
	urls []string,
	schema structured.Schema[T],
	instruction string,
) (Report[T], error) {
	if x.Fetcher == nil || x.Extractor == nil {
		return Report[T]{}, fmt.Errorf("extract %s: %w", schema.Name, extract.ErrCapabilityUnavailable)
	}
	return Run(ctx, x.Engine, urls, identity, func(ctx context.Context, url string) (T, error) {
		var zero T
		page, err := x.Fetcher.FetchPage(ctx, extract.FetchRequest{URL: url, ForceRender: x.Debug})
		if err != nil {
			return zero, err
		}
		return structured.Extract(ctx, x.Extractor, schema, extract.ExtractionRequest{
			Content:     page.Content,
			Schema:      schema.Name,
			Instruction: instruction,
			SourceURL:   url,
		})
	})
}

// FetchMany fetches every URL as markdown without extracting.
func FetchMany(ctx context.Context, x Extraction, urls []string) (Report[extract.SourcePage], error) {
	if x.Fetcher == nil {
		return Report[extract.SourcePage]{}, fmt.Errorf("fetch pages: %w", extract.ErrCapabilityUnavailable)
	}
	return Run(ctx, x.Engine, urls, identity, func(ctx context.Context, url string) (extract.SourcePage, error) {
		return x.Fetcher.FetchPage(ctx, extract.FetchRequest{URL: url, ForceRender: x.Debug})
	})
}

// ExtractChunks extracts one record per chunk.
func ExtractChunks[T any](
	ctx context.Context,
	x Extraction,
	chunks []Chunk,
	schema structured.Schema[T],
	instruction string,
) (Report[T], error) {
	if x.Extractor == nil {
		return Report[T]{}, fmt.Errorf("extract %s: %w", schema.Name, extract.ErrCapabilityUnavailable)
	}
	return Run(ctx, x.Engine, chunks, Chunk.Key, func(ctx context.Context, c Chunk) (T, error) {
		return structured.Extract(ctx, x.Extractor, schema, extract.ExtractionRequest{
			Content:     c.Content,
			Schema:      schema.Name,
			Instruction: instruction,
			SourceURL:   c.SourceURL,
		})
	})
}

func identity(s string) string { return s }

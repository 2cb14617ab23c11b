package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/batch"
	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/structured"
)

// Courses extracts catalog courses for a department. Catalog pages are
// fetched first, split into per-course chunks, then each chunk is extracted.
func (s *Service) Courses(ctx context.Context, department string, opts Options) (Result[extract.CourseRecord], error) {
	job := extract.DepartmentJob{Department: departmentCode(department), Mode: extract.ModeCourses, Debug: opts.Debug}
	var chunker *structured.Chunker
	return execute(ctx, s, opts, plan[extract.CourseRecord]{
		job:    job,
		schema: structured.CourseSchema,
		object: CoursesObject,
		discover: func(context.Context) ([]string, error) {
			src, err := s.catalog.CourseSource(job.Department)
			if err != nil {
				return nil, err
			}
			chunker, err = structured.NewChunker(src.Chunks.Anchor, src.Chunks.Pattern)
			if err != nil {
				return nil, fmt.Errorf("course chunker: %w", err)
			}
			return src.URLs, nil
		},
		extract: func(ctx context.Context, urls []string) ([]extract.CourseRecord, batch.Summary, bool, error) {
			return s.extractCourses(ctx, chunker, urls, opts.Debug)
		},
	})
}

func (s *Service) extractCourses(
	ctx context.Context,
	chunker *structured.Chunker,
	urls []string,
	debug bool,
) ([]extract.CourseRecord, batch.Summary, bool, error) {
	pages, err := batch.FetchMany(ctx, s.extraction("courses-fetch", debug), urls)
	fetchSummary := pages.Summary()
	fetchSummary.Total -= fetchSummary.Succeeded
	fetchSummary.Succeeded = 0
	if err != nil {
		return nil, fetchSummary, pages.Partial, err
	}

	var chunks []batch.Chunk
	for _, o := range pages.Outcomes {
		if o.Kind != batch.KindSuccess {
			continue
		}
		for i, text := range chunker.Split(o.Value.Content) {
			chunks = append(chunks, batch.Chunk{SourceURL: o.Key, Index: i, Content: text})
		}
	}
	s.logger.Debug("course chunks", zap.Int("pages", len(urls)), zap.Int("chunks", len(chunks)))

	report, err := batch.ExtractChunks(ctx, s.extraction("courses", debug), chunks,
		structured.CourseSchema, s.catalog.Prompt(extract.ModeCourses))
	return dedupeCourses(report.Values()), fetchSummary.Add(report.Summary()), report.Partial, err
}

// dedupeCourses keeps the first record per course name.
func dedupeCourses(in []extract.CourseRecord) []extract.CourseRecord {
	seen := make(map[string]bool, len(in))
	out := make([]extract.CourseRecord, 0, len(in))
	for _, c := range in {
		if seen[c.CourseName] {
			continue
		}
		seen[c.CourseName] = true
		out = append(out, c)
	}
	return out
}

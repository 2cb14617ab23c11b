package pipeline

import (
	"context"

	"github.com/JakeFAU/campus-extractor/internal/batch"
	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/structured"
)

// Object names in the blob store.
const (
	ProfessorsObject = "professors.json"
	CoursesObject    = "courses.json"
	EventsObject     = "events.json"
)

// Research extracts professor profiles for a department and normalizes
// their research interests.
func (s *Service) Research(ctx context.Context, department string, opts Options) (Result[extract.ProfessorRecord], error) {
	job := extract.DepartmentJob{Department: departmentCode(department), Mode: extract.ModeResearch, Debug: opts.Debug}
	return execute(ctx, s, opts, plan[extract.ProfessorRecord]{
		job:    job,
		schema: structured.ProfessorSchema,
		object: ProfessorsObject,
		discover: func(ctx context.Context) ([]string, error) {
			return s.discoverer.Research(ctx, job.Department, opts.Debug)
		},
		extract: func(ctx context.Context, urls []string) ([]extract.ProfessorRecord, batch.Summary, bool, error) {
			report, err := batch.ExtractMany(ctx, s.extraction("research", opts.Debug), urls,
				structured.ProfessorSchema, s.catalog.Prompt(extract.ModeResearch))
			return report.Values(), report.Summary(), report.Partial, err
		},
		normalize: func(ctx context.Context, records []extract.ProfessorRecord) ([]extract.InterestEdge, error) {
			if s.normalizer == nil {
				return nil, nil
			}
			return s.normalizer.Normalize(ctx, records)
		},
	})
}

// Events extracts the department events calendar.
func (s *Service) Events(ctx context.Context, opts Options) (Result[extract.EventRecord], error) {
	job := extract.DepartmentJob{Mode: extract.ModeEvents, Debug: opts.Debug}
	return execute(ctx, s, opts, plan[extract.EventRecord]{
		job:    job,
		schema: structured.EventSchema,
		object: EventsObject,
		discover: func(ctx context.Context) ([]string, error) {
			return s.discoverer.Events(ctx, opts.Debug)
		},
		extract: func(ctx context.Context, urls []string) ([]extract.EventRecord, batch.Summary, bool, error) {
			report, err := batch.ExtractMany(ctx, s.extraction("events", opts.Debug), urls,
				structured.EventSchema, s.catalog.Prompt(extract.ModeEvents))
			return report.Values(), report.Summary(), report.Partial, err
		},
	})
}

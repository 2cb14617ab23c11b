package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

// Source statuses and overall outcomes of an extract-all run.
const (
	StatusSuccess        = "success"
	StatusFailed         = "failed"
	StatusPartialSuccess = "partial_success"
)

// SourceStatus is the outcome of one source inside an extract-all run.
type SourceStatus struct {
	Status  string `json:"status"`
	Count   int    `json:"count"`
	Partial bool   `json:"partial,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AllSummary aggregates the counters of an extract-all run.
type AllSummary struct {
	TotalExtractions int      `json:"total_extractions"`
	Successful       int      `json:"successful"`
	Failed           int      `json:"failed"`
	Errors           []string `json:"errors"`
	OverallStatus    string   `json:"overall_status"`
}

// AllReport is the response of an extract-all run.
type AllReport struct {
	Research map[string]SourceStatus `json:"research"`
	Events   SourceStatus            `json:"events"`
	Courses  map[string]SourceStatus `json:"courses"`
	Summary  AllSummary              `json:"summary"`
}

// All runs research for every department with a faculty listing, then
// events, then courses. Sources run one after another so the batch
// concurrency limit holds for the whole process. Failures are recorded per
// source and never stop the sweep.
func (s *Service) All(ctx context.Context, opts Options) AllReport {
	report := AllReport{
		Research: make(map[string]SourceStatus),
		Courses:  make(map[string]SourceStatus),
		Summary:  AllSummary{Errors: []string{}},
	}
	record := func(label string, count int, partial bool, err error) SourceStatus {
		report.Summary.TotalExtractions++
		st := SourceStatus{Status: StatusSuccess, Count: count, Partial: partial}
		if err != nil {
			st.Status = StatusFailed
			st.Error = err.Error()
			report.Summary.Failed++
			report.Summary.Errors = append(report.Summary.Errors, fmt.Sprintf("%s failed: %v", label, err))
			s.logger.Warn("extraction failed", zap.String("source", label), zap.Error(err))
			return st
		}
		report.Summary.Successful++
		return st
	}

	for _, dept := range s.catalog.Departments(extract.ModeResearch) {
		res, err := s.Research(ctx, string(dept), opts)
		report.Research[string(dept)] = record("research "+string(dept), res.Count(), res.Partial, err)
	}

	if _, ok := s.catalog.EventsSource(); ok {
		res, err := s.Events(ctx, opts)
		report.Events = record("events", res.Count(), res.Partial, err)
	} else {
		report.Events = SourceStatus{Status: StatusSuccess}
	}

	for _, dept := range s.catalog.Departments(extract.ModeCourses) {
		res, err := s.Courses(ctx, string(dept), opts)
		report.Courses[string(dept)] = record("courses "+string(dept), res.Count(), res.Partial, err)
	}

	switch {
	case report.Summary.Failed == 0:
		report.Summary.OverallStatus = StatusSuccess
	case report.Summary.Successful > 0:
		report.Summary.OverallStatus = StatusPartialSuccess
	default:
		report.Summary.OverallStatus = StatusFailed
	}
	s.logger.Info("extract all finished",
		zap.Int("successful", report.Summary.Successful),
		zap.Int("failed", report.Summary.Failed),
		zap.String("overall_status", report.Summary.OverallStatus),
	)
	return report
}

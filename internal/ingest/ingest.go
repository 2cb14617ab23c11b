// Package ingest loads an uploaded scrape object, validates every element
// against its record schema and writes the survivors to the record store.
// It backs the storage webhook.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/csvout"
	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/normalize"
	"github.com/JakeFAU/campus-extractor/internal/structured"
)

// maxReportedErrors caps the rejection messages carried in a Summary.
const maxReportedErrors = 10

// ErrUnsupportedObject marks objects whose name or format is not ingestible.
var ErrUnsupportedObject = errors.New("unsupported object")

// Summary describes one ingest.
type Summary struct {
	Object   string       `json:"file_processed"`
	Mode     extract.Mode `json:"mode"`
	Accepted int          `json:"accepted"`
	Rejected int          `json:"rejected"`
	Edges    int          `json:"edges,omitempty"`
	Errors   []string     `json:"errors,omitempty"`
}

// Service performs ingests.
type Service struct {
	blobs      extract.BlobStore
	records    extract.RecordStore
	normalizer *normalize.Normalizer
	logger     *zap.Logger
}

// New builds a Service. A nil normalizer stores professors without edges.
func New(blobs extract.BlobStore, records extract.RecordStore, normalizer *normalize.Normalizer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{blobs: blobs, records: records, normalizer: normalizer, logger: logger.Named("ingest")}
}

// ModeFor infers the record kind from an object name.
func ModeFor(objectPath string) (extract.Mode, bool) {
	name := strings.ToLower(path.Base(objectPath))
	switch {
	case strings.Contains(name, "professor"), strings.Contains(name, "research"):
		return extract.ModeResearch, true
	case strings.Contains(name, "course"):
		return extract.ModeCourses, true
	case strings.Contains(name, "event"):
		return extract.ModeEvents, true
	}
	return "", false
}

// Ingest loads objectPath and persists its valid records. Invalid elements
// are counted and skipped.
func (s *Service) Ingest(ctx context.Context, objectPath string) (Summary, error) {
	summary := Summary{Object: objectPath}
	if s.blobs == nil || s.records == nil {
		return summary, fmt.Errorf("ingest: %w", extract.ErrCapabilityUnavailable)
	}
	mode, ok := ModeFor(objectPath)
	if !ok {
		return summary, fmt.Errorf("%s: %w", objectPath, ErrUnsupportedObject)
	}
	summary.Mode = mode

	data, err := s.blobs.GetObject(ctx, objectPath)
	if err != nil {
		return summary, fmt.Errorf("load %s: %w", objectPath, err)
	}

	var rejected []error
	switch mode {
	case extract.ModeResearch:
		var profs []extract.ProfessorRecord
		profs, rejected, err = decode(structured.ProfessorSchema, objectPath, data)
		if err != nil {
			return summary, err
		}
		var edges []extract.InterestEdge
		if s.normalizer != nil {
			if edges, err = s.normalizer.Normalize(ctx, profs); err != nil {
				return summary, err
			}
		}
		if err := s.records.SaveProfessors(ctx, profs, edges); err != nil {
			return summary, fmt.Errorf("save professors: %w", err)
		}
		summary.Accepted, summary.Edges = len(profs), len(edges)
	case extract.ModeCourses:
		var courses []extract.CourseRecord
		courses, rejected, err = decode(structured.CourseSchema, objectPath, data)
		if err != nil {
			return summary, err
		}
		if err := s.records.SaveCourses(ctx, courses); err != nil {
			return summary, fmt.Errorf("save courses: %w", err)
		}
		summary.Accepted = len(courses)
	case extract.ModeEvents:
		var events []extract.EventRecord
		events, rejected, err = decode(structured.EventSchema, objectPath, data)
		if err != nil {
			return summary, err
		}
		if err := s.records.SaveEvents(ctx, events); err != nil {
			return summary, fmt.Errorf("save events: %w", err)
		}
		summary.Accepted = len(events)
	}

	summary.Rejected = len(rejected)
	for i, e := range rejected {
		if i == maxReportedErrors {
			break
		}
		summary.Errors = append(summary.Errors, e.Error())
	}
	s.logger.Info("object ingested",
		zap.String("object", objectPath),
		zap.String("mode", string(mode)),
		zap.Int("accepted", summary.Accepted),
		zap.Int("rejected", summary.Rejected),
	)
	return summary, nil
}

// decode parses a JSON array or a CSV side-output file into records.
func decode[T any](schema structured.Schema[T], objectPath string, data []byte) ([]T, []error, error) {
	switch strings.ToLower(path.Ext(objectPath)) {
	case ".csv":
		return csvout.Decode(schema, bytes.NewReader(data))
	case ".json":
		return decodeJSON(schema, data)
	default:
		return nil, nil, fmt.Errorf("%s: %w", objectPath, ErrUnsupportedObject)
	}
}

func decodeJSON[T any](schema structured.Schema[T], data []byte) ([]T, []error, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, nil, &extract.SchemaValidationError{Schema: schema.Name, Reason: "object is not a JSON array"}
	}
	var (
		out  []T
		errs []error
	)
	for i, raw := range elements {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil || obj == nil {
			errs = append(errs, fmt.Errorf("element %d: %w", i, &extract.SchemaValidationError{Schema: schema.Name, Reason: "not an object"}))
			continue
		}
		rec, err := schema.Build(obj, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("element %d: %w", i, err))
			continue
		}
		out = append(out, rec)
	}
	return out, errs, nil
}

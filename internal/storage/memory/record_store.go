package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

// RecordStore keeps extracted records keyed the same way the Postgres store
// upserts them.
type RecordStore struct {
	mu         sync.RWMutex
	professors map[string]extract.ProfessorRecord
	edges      map[extract.InterestEdge]struct{}
	courses    map[string]extract.CourseRecord
	events     map[string]extract.EventRecord
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		professors: make(map[string]extract.ProfessorRecord),
		edges:      make(map[extract.InterestEdge]struct{}),
		courses:    make(map[string]extract.CourseRecord),
		events:     make(map[string]extract.EventRecord),
	}
}

// SaveProfessors upserts professors by source URL and replaces their edges.
func (s *RecordStore) SaveProfessors(_ context.Context, professors []extract.ProfessorRecord, edges []extract.InterestEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range professors {
		p.ResearchInterest = append([]string(nil), p.ResearchInterest...)
		s.professors[p.SourceURL] = p
	}
	stale := make(map[string]bool)
	for _, name := range extract.ProfessorNames(professors, edges) {
		stale[name] = true
	}
	for e := range s.edges {
		if stale[e.ProfessorName] {
			delete(s.edges, e)
		}
	}
	for _, e := range edges {
		e.Method = ""
		s.edges[e] = struct{}{}
	}
	return nil
}

// SaveCourses upserts courses by name.
func (s *RecordStore) SaveCourses(_ context.Context, courses []extract.CourseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range courses {
		s.courses[c.CourseName] = c
	}
	return nil
}

// SaveEvents upserts events by source URL and title.
func (s *RecordStore) SaveEvents(_ context.Context, events []extract.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.events[e.SourceURL+"\x00"+e.Title] = e
	}
	return nil
}

// ListProfessors returns up to limit professors ordered by name.
func (s *RecordStore) ListProfessors(_ context.Context, limit int) ([]extract.ProfessorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]extract.ProfessorRecord, 0, len(s.professors))
	for _, p := range s.professors {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].SourceURL < out[j].SourceURL
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Counts reports how many rows of each kind are stored.
func (s *RecordStore) Counts() (professors, edges, courses, events int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.professors), len(s.edges), len(s.courses), len(s.events)
}

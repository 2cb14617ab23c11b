package extract

import (
	"net/http"
	"sort"
	"time"
)

// Mode selects which pipeline a job runs.
type Mode string

// Supported pipeline modes.
const (
	ModeResearch Mode = "research"
	ModeCourses  Mode = "courses"
	ModeEvents   Mode = "events"
)

// Valid reports whether the mode is one of the known pipelines.
func (m Mode) Valid() bool {
	switch m {
	case ModeResearch, ModeCourses, ModeEvents:
		return true
	default:
		return false
	}
}

// WebsiteUnknown is stored when a professor page lists no personal website.
const WebsiteUnknown = "N/A"

// CreditsUnknown is stored when a course lists no credit count.
const CreditsUnknown = -1

// UncategorizedInterest is the canonical bucket for interests no taxonomy entry covers.
const UncategorizedInterest = "Uncategorized"

// ListingField describes one value pulled out of each repeated listing element.
type ListingField struct {
	Name      string `json:"name" mapstructure:"name"`
	Selector  string `json:"selector" mapstructure:"selector"`
	Type      string `json:"type" mapstructure:"type"` // text, attribute or html
	Attribute string `json:"attribute,omitempty" mapstructure:"attribute"`
}

// ListingSchema is a CSS extraction schema applied to index pages such as
// faculty directories and event calendars.
type ListingSchema struct {
	Name         string         `json:"name" mapstructure:"name"`
	BaseSelector string         `json:"base_selector" mapstructure:"base_selector"`
	Fields       []ListingField `json:"fields" mapstructure:"fields"`
}

// ListingItem holds the field values extracted from a single listing element.
type ListingItem map[string]string

// SourcePage is fetched page content ready for extraction. It is never persisted.
type SourcePage struct {
	URL     string
	Content string
	Schema  *ListingSchema
	// Rendered is true when the content came from the headless browser.
	Rendered bool
}

// ExtractionRequest is one call to the structured extractor.
type ExtractionRequest struct {
	Content     string
	Schema      string
	Instruction string
	SourceURL   string
}

// ModelRequest is a single prompt sent to the language model.
type ModelRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}

// ProfessorRecord is one faculty research profile.
type ProfessorRecord struct {
	Name             string   `json:"name"`
	Website          string   `json:"website"`
	ResearchInterest []string `json:"research_interest"`
	SourceURL        string   `json:"src_url"`
}

// CourseRecord is one catalog course entry.
type CourseRecord struct {
	CourseName        string `json:"course_name"`
	CourseDescription string `json:"course_description"`
	Prereqs           string `json:"prereqs"`
	Credits           int    `json:"credits"`
}

// EventRecord is one department calendar event.
type EventRecord struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Location    string `json:"location"`
	Description string `json:"description"`
	SourceURL   string `json:"src_url"`
}

// InterestEdge links a canonical research interest to a professor.
type InterestEdge struct {
	CanonicalInterest string `json:"canonical_interest"`
	RawInterest       string `json:"raw_interest"`
	ProfessorName     string `json:"professor_name"`
	Method            string `json:"method"`
}

// ProfessorNames returns the distinct professor names found in records and
// edges, sorted.
func ProfessorNames(professors []ProfessorRecord, edges []InterestEdge) []string {
	seen := make(map[string]bool, len(professors))
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, p := range professors {
		add(p.Name)
	}
	for _, e := range edges {
		add(e.ProfessorName)
	}
	sort.Strings(names)
	return names
}

// DepartmentJob is a single pipeline invocation.
type DepartmentJob struct {
	Department string `json:"department"`
	Mode       Mode   `json:"mode"`
	Debug      bool   `json:"debug"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	// ForceRender skips the static and goes straight to the browser when one is configured.
	ForceRender bool
}

// FetchResponse is the raw result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

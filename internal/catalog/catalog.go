// Package catalog maps department codes to their source pages, listing schemas
// and extraction prompts. A Catalog is validated once at startup and is
// read-only afterwards, so it is safe to share across goroutines.
package catalog

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

// Department is a closed enumeration of supported department codes.
type Department string

// Known departments.
const (
	CSCI Department = "CSCI"
	MATH Department = "MATH"
)

// Known lists every department the service recognises.
var Known = []Department{CSCI, MATH}

// ParseDepartment maps a user-supplied code onto the enumeration.
func ParseDepartment(code string) (Department, bool) {
	d := Department(strings.ToUpper(strings.TrimSpace(code)))
	for _, k := range Known {
		if k == d {
			return d, true
		}
	}
	return "", false
}

// DepartmentSpec describes where a department publishes its pages.
type DepartmentSpec struct {
	BaseURL    string   `mapstructure:"base_url"`
	FacultyURL string   `mapstructure:"faculty_url"`
	CourseURLs []string `mapstructure:"course_urls"`
}

// EventsSpec describes the events calendar.
type EventsSpec struct {
	BaseURL    string `mapstructure:"base_url"`
	ListingURL string `mapstructure:"listing_url"`
}

// ListingSource is everything discovery needs to enumerate detail pages.
type ListingSource struct {
	BaseURL    string
	ListingURL string
	Schema     extract.ListingSchema
	LinkField  string
}

// ChunkSpec configures the course catalog pre-filter.
type ChunkSpec struct {
	Anchor  string
	Pattern string
}

// CourseSource lists catalog pages and how to split them.
type CourseSource struct {
	URLs   []string
	Chunks ChunkSpec
}

// Options overrides the built-in tables.
type Options struct {
	Departments   map[string]DepartmentSpec
	Events        *EventsSpec
	FacultySchema *extract.ListingSchema
	EventsSchema  *extract.ListingSchema
}

// Catalog is the validated, immutable vocabulary of the service.
type Catalog struct {
	departments   map[Department]DepartmentSpec
	events        EventsSpec
	facultySchema extract.ListingSchema
	eventsSchema  extract.ListingSchema
	chunks        ChunkSpec
	prompts       map[extract.Mode]string
}

// New merges overrides on top of the defaults and validates the result.
func New(opts Options) (*Catalog, error) {
	c := &Catalog{
		departments:   make(map[Department]DepartmentSpec, len(Known)),
		events:        defaultEvents,
		facultySchema: defaultFacultySchema,
		eventsSchema:  defaultEventsSchema,
		chunks:        defaultChunks,
		prompts:       defaultPrompts,
	}
	for dept, spec := range defaultDepartments {
		c.departments[dept] = spec
	}
	for code, override := range opts.Departments {
		dept, ok := ParseDepartment(code)
		if !ok {
			return nil, fmt.Errorf("catalog: %w", &extract.UnknownDepartmentError{Code: code})
		}
		c.departments[dept] = mergeSpec(c.departments[dept], override)
	}
	if opts.Events != nil {
		if opts.Events.BaseURL != "" {
			c.events.BaseURL = opts.Events.BaseURL
		}
		if opts.Events.ListingURL != "" {
			c.events.ListingURL = opts.Events.ListingURL
		}
	}
	if opts.FacultySchema != nil {
		c.facultySchema = *opts.FacultySchema
	}
	if opts.EventsSchema != nil {
		c.eventsSchema = *opts.EventsSchema
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func mergeSpec(base, override DepartmentSpec) DepartmentSpec {
	if override.BaseURL != "" {
		base.BaseURL = override.BaseURL
	}
	if override.FacultyURL != "" {
		base.FacultyURL = override.FacultyURL
	}
	if len(override.CourseURLs) > 0 {
		base.CourseURLs = append([]string(nil), override.CourseURLs...)
	}
	return base
}

// Validate checks that every configured URL is absolute and every schema usable.
func (c *Catalog) Validate() error {
	for dept, spec := range c.departments {
		if err := requireAbsolute(spec.BaseURL); err != nil {
			return fmt.Errorf("catalog %s base_url: %w", dept, err)
		}
		if spec.FacultyURL != "" {
			if err := requireAbsolute(spec.FacultyURL); err != nil {
				return fmt.Errorf("catalog %s faculty_url: %w", dept, err)
			}
		}
		for _, u := range spec.CourseURLs {
			if err := requireAbsolute(u); err != nil {
				return fmt.Errorf("catalog %s course_urls: %w", dept, err)
			}
		}
	}
	if c.events.ListingURL != "" {
		if err := requireAbsolute(c.events.BaseURL); err != nil {
			return fmt.Errorf("catalog events base_url: %w", err)
		}
		if err := requireAbsolute(c.events.ListingURL); err != nil {
			return fmt.Errorf("catalog events listing_url: %w", err)
		}
	}
	if err := validateSchema(c.facultySchema, linkField); err != nil {
		return fmt.Errorf("catalog faculty schema: %w", err)
	}
	if err := validateSchema(c.eventsSchema, linkField); err != nil {
		return fmt.Errorf("catalog events schema: %w", err)
	}
	for _, mode := range []extract.Mode{extract.ModeResearch, extract.ModeCourses, extract.ModeEvents} {
		if strings.TrimSpace(c.prompts[mode]) == "" {
			return fmt.Errorf("catalog: missing prompt for %s", mode)
		}
	}
	return nil
}

func requireAbsolute(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}

func validateSchema(schema extract.ListingSchema, required string) error {
	if strings.TrimSpace(schema.BaseSelector) == "" {
		return fmt.Errorf("base selector is required")
	}
	found := false
	for _, f := range schema.Fields {
		if f.Name == "" || f.Selector == "" {
			return fmt.Errorf("field name and selector are required")
		}
		switch f.Type {
		case "text", "html":
		case "attribute":
			if f.Attribute == "" {
				return fmt.Errorf("field %s: attribute type needs an attribute", f.Name)
			}
		default:
			return fmt.Errorf("field %s: unknown type %q", f.Name, f.Type)
		}
		if f.Name == required {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("field %q is required", required)
	}
	return nil
}

func (c *Catalog) lookup(code string, mode extract.Mode) (Department, DepartmentSpec, error) {
	dept, ok := ParseDepartment(code)
	if !ok {
		return "", DepartmentSpec{}, &extract.UnknownDepartmentError{Code: code, Mode: mode}
	}
	spec, ok := c.departments[dept]
	if !ok {
		return "", DepartmentSpec{}, &extract.UnknownDepartmentError{Code: code, Mode: mode}
	}
	return dept, spec, nil
}

// ResearchSource returns the faculty listing for a department.
func (c *Catalog) ResearchSource(code string) (ListingSource, error) {
	_, spec, err := c.lookup(code, extract.ModeResearch)
	if err != nil {
		return ListingSource{}, err
	}
	if spec.FacultyURL == "" {
		return ListingSource{}, &extract.UnknownDepartmentError{Code: code, Mode: extract.ModeResearch}
	}
	return ListingSource{
		BaseURL:    spec.BaseURL,
		ListingURL: spec.FacultyURL,
		Schema:     c.facultySchema,
		LinkField:  linkField,
	}, nil
}

// CourseSource returns the catalog pages for a department.
func (c *Catalog) CourseSource(code string) (CourseSource, error) {
	_, spec, err := c.lookup(code, extract.ModeCourses)
	if err != nil {
		return CourseSource{}, err
	}
	if len(spec.CourseURLs) == 0 {
		return CourseSource{}, &extract.UnknownDepartmentError{Code: code, Mode: extract.ModeCourses}
	}
	return CourseSource{URLs: append([]string(nil), spec.CourseURLs...), Chunks: c.chunks}, nil
}

// EventsSource returns the events listing, or false when none is configured.
func (c *Catalog) EventsSource() (ListingSource, bool) {
	if c.events.ListingURL == "" {
		return ListingSource{}, false
	}
	return ListingSource{
		BaseURL:    c.events.BaseURL,
		ListingURL: c.events.ListingURL,
		Schema:     c.eventsSchema,
		LinkField:  linkField,
	}, true
}

// Prompt returns the extraction instruction for a mode.
func (c *Catalog) Prompt(mode extract.Mode) string {
	return c.prompts[mode]
}

// Departments lists departments that have a source for mode, sorted by code.
func (c *Catalog) Departments(mode extract.Mode) []Department {
	out := make([]Department, 0, len(c.departments))
	for dept, spec := range c.departments {
		switch mode {
		case extract.ModeResearch:
			if spec.FacultyURL == "" {
				continue
			}
		case extract.ModeCourses:
			if len(spec.CourseURLs) == 0 {
				continue
			}
		}
		out = append(out, dept)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

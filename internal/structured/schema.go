package structured

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

// Field describes one record field, in output column order.
type Field struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Schema binds a record type to its field list, its validating decoder and
// its flat row form. Build is the only way model output becomes a record.
type Schema[T any] struct {
	Name    string
	Fields  []Field
	Build   func(obj map[string]any, sourceURL string) (T, error)
	Row     func(T) []string
	FromRow func([]string) (T, error)
}

// Header returns the CSV header in field order.
func (s Schema[T]) Header() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Describe renders the schema as a JSON shape for prompts.
func (s Schema[T]) Describe() string {
	var b strings.Builder
	b.WriteString("{\n")
	for i, f := range s.Fields {
		req := "optional"
		if f.Required {
			req = "required"
		}
		fmt.Fprintf(&b, "  %q: %s (%s) // %s", f.Name, f.Type, req, f.Description)
		if i < len(s.Fields)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

// ProfessorSchema validates faculty research profiles.
var ProfessorSchema = Schema[extract.ProfessorRecord]{
	Name: "professor",
	Fields: []Field{
		{Name: "name", Type: "string", Description: "full name of the professor", Required: true},
		{Name: "website", Type: "string", Description: "personal or lab website URL, \"N/A\" if none"},
		{Name: "research_interest", Type: "array of strings", Description: "research interests, one short phrase each"},
		{Name: "src_url", Type: "string", Description: "URL of the profile page", Required: true},
	},
	Build: buildProfessor,
	Row: func(p extract.ProfessorRecord) []string {
		interests, _ := json.Marshal(nonNil(p.ResearchInterest))
		return []string{p.Name, p.Website, string(interests), p.SourceURL}
	},
	FromRow: func(row []string) (extract.ProfessorRecord, error) {
		if len(row) != 4 {
			return extract.ProfessorRecord{}, rowError("professor", len(row), 4)
		}
		var interests []string
		if strings.TrimSpace(row[2]) != "" {
			if err := json.Unmarshal([]byte(row[2]), &interests); err != nil {
				return extract.ProfessorRecord{}, &extract.SchemaValidationError{
					Schema: "professor", Field: "research_interest", Reason: "not a JSON array",
				}
			}
		}
		return buildProfessor(map[string]any{
			"name": row[0], "website": row[1], "research_interest": toAnySlice(interests), "src_url": row[3],
		}, "")
	},
}

// CourseSchema validates catalog course entries.
var CourseSchema = Schema[extract.CourseRecord]{
	Name: "course",
	Fields: []Field{
		{Name: "course_name", Type: "string", Description: "course code and title, e.g. \"CSCI 141 - Computer Programming I\"", Required: true},
		{Name: "course_description", Type: "string", Description: "full course description", Required: true},
		{Name: "prereqs", Type: "string", Description: "prerequisite text, empty if none"},
		{Name: "credits", Type: "integer", Description: "number of credits, -1 if not stated"},
	},
	Build: buildCourse,
	Row: func(c extract.CourseRecord) []string {
		return []string{c.CourseName, c.CourseDescription, c.Prereqs, strconv.Itoa(c.Credits)}
	},
	FromRow: func(row []string) (extract.CourseRecord, error) {
		if len(row) != 4 {
			return extract.CourseRecord{}, rowError("course", len(row), 4)
		}
		return buildCourse(map[string]any{
			"course_name": row[0], "course_description": row[1], "prereqs": row[2], "credits": row[3],
		}, "")
	},
}

// EventSchema validates department events.
var EventSchema = Schema[extract.EventRecord]{
	Name: "event",
	Fields: []Field{
		{Name: "title", Type: "string", Description: "event title", Required: true},
		{Name: "date", Type: "string", Description: "date and time as written on the page"},
		{Name: "location", Type: "string", Description: "room, building or \"Online\""},
		{Name: "description", Type: "string", Description: "short description of the event"},
		{Name: "src_url", Type: "string", Description: "URL of the event page", Required: true},
	},
	Build: buildEvent,
	Row: func(e extract.EventRecord) []string {
		return []string{e.Title, e.Date, e.Location, e.Description, e.SourceURL}
	},
	FromRow: func(row []string) (extract.EventRecord, error) {
		if len(row) != 5 {
			return extract.EventRecord{}, rowError("event", len(row), 5)
		}
		return buildEvent(map[string]any{
			"title": row[0], "date": row[1], "location": row[2], "description": row[3], "src_url": row[4],
		}, "")
	},
}

func buildProfessor(obj map[string]any, sourceURL string) (extract.ProfessorRecord, error) {
	const schema = "professor"
	name := stringField(obj, "name")
	if name == "" {
		return extract.ProfessorRecord{}, missing(schema, "name")
	}
	src := firstNonEmpty(stringField(obj, "src_url"), stringField(obj, "source_url"), sourceURL)
	if src == "" {
		return extract.ProfessorRecord{}, missing(schema, "src_url")
	}
	website := stringField(obj, "website")
	if website == "" || strings.EqualFold(website, "none") || strings.EqualFold(website, "null") {
		website = extract.WebsiteUnknown
	}
	interests, err := stringListField(obj, "research_interest")
	if err != nil {
		return extract.ProfessorRecord{}, &extract.SchemaValidationError{Schema: schema, Field: "research_interest", Reason: err.Error()}
	}
	return extract.ProfessorRecord{
		Name:             name,
		Website:          website,
		ResearchInterest: interests,
		SourceURL:        src,
	}, nil
}

func buildCourse(obj map[string]any, _ string) (extract.CourseRecord, error) {
	const schema = "course"
	name := stringField(obj, "course_name")
	if name == "" {
		return extract.CourseRecord{}, missing(schema, "course_name")
	}
	desc := firstNonEmpty(stringField(obj, "course_description"), stringField(obj, "description"))
	if desc == "" {
		return extract.CourseRecord{}, missing(schema, "course_description")
	}
	credits, err := creditsField(obj["credits"])
	if err != nil {
		return extract.CourseRecord{}, &extract.SchemaValidationError{Schema: schema, Field: "credits", Reason: err.Error()}
	}
	prereqs := stringField(obj, "prereqs")
	if strings.EqualFold(prereqs, "none") || strings.EqualFold(prereqs, "n/a") {
		prereqs = ""
	}
	return extract.CourseRecord{
		CourseName:        name,
		CourseDescription: desc,
		Prereqs:           prereqs,
		Credits:           credits,
	}, nil
}

func buildEvent(obj map[string]any, sourceURL string) (extract.EventRecord, error) {
	const schema = "event"
	title := firstNonEmpty(stringField(obj, "title"), stringField(obj, "name"))
	if title == "" {
		return extract.EventRecord{}, missing(schema, "title")
	}
	src := firstNonEmpty(stringField(obj, "src_url"), stringField(obj, "source_url"), sourceURL)
	if src == "" {
		return extract.EventRecord{}, missing(schema, "src_url")
	}
	return extract.EventRecord{
		Title:       title,
		Date:        stringField(obj, "date"),
		Location:    stringField(obj, "location"),
		Description: stringField(obj, "description"),
		SourceURL:   src,
	}, nil
}

func missing(schema, field string) error {
	return &extract.SchemaValidationError{Schema: schema, Field: field, Reason: "required field is missing or empty"}
}

func rowError(schema string, got, want int) error {
	return &extract.SchemaValidationError{Schema: schema, Reason: fmt.Sprintf("row has %d columns, want %d", got, want)}
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// stringListField accepts a JSON array of strings or a single delimited string.
func stringListField(obj map[string]any, key string) ([]string, error) {
	out := make([]string, 0)
	switch v := obj[key].(type) {
	case nil:
		return out, nil
	case string:
		for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ';' || r == ',' || r == '\n' }) {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected strings, got %T", item)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}

var (
	leadingInt  = regexp.MustCompile(`-?\d+`)
	creditRange = regexp.MustCompile(`\d+\s*(-|to|–)\s*\d+`)
)

func creditsField(v any) (int, error) {
	switch c := v.(type) {
	case nil:
		return extract.CreditsUnknown, nil
	case float64:
		if c != math.Trunc(c) {
			// Variable or fractional credit counts are not representable.
			return extract.CreditsUnknown, nil
		}
		return checkCredits(int(c))
	case json.Number:
		n, err := c.Int64()
		if err != nil {
			return extract.CreditsUnknown, nil
		}
		return checkCredits(int(n))
	case string:
		if creditRange.MatchString(c) {
			return extract.CreditsUnknown, nil
		}
		m := leadingInt.FindString(c)
		if m == "" {
			return extract.CreditsUnknown, nil
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return extract.CreditsUnknown, nil
		}
		return checkCredits(n)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func checkCredits(n int) (int, error) {
	if n < extract.CreditsUnknown {
		return 0, fmt.Errorf("negative credit count %d", n)
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

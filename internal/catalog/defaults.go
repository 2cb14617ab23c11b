package catalog

import "github.com/JakeFAU/campus-extractor/internal/extract"

// linkField is the listing field holding the detail-page href.
const linkField = "page_url"

var defaultDepartments = map[Department]DepartmentSpec{
	CSCI: {
		BaseURL:    "https://cs.wwu.edu/",
		FacultyURL: "https://cs.wwu.edu/faculty",
		CourseURLs: []string{"https://catalog.wwu.edu/content.php?catoid=21&navoid=4838"},
	},
	MATH: {
		BaseURL:    "https://math.wwu.edu/",
		FacultyURL: "https://math.wwu.edu/people",
		CourseURLs: []string{"https://catalog.wwu.edu/content.php?catoid=21&navoid=4860"},
	},
}

var defaultEvents = EventsSpec{
	BaseURL:    "https://cs.wwu.edu/",
	ListingURL: "https://cs.wwu.edu/events",
}

var defaultFacultySchema = extract.ListingSchema{
	Name:         "faculty",
	BaseSelector: "div.views-row",
	Fields: []extract.ListingField{
		{Name: "name", Selector: "h3, .field--name-title", Type: "text"},
		{Name: linkField, Selector: "a", Type: "attribute", Attribute: "href"},
	},
}

var defaultEventsSchema = extract.ListingSchema{
	Name:         "events",
	BaseSelector: "article, div.views-row",
	Fields: []extract.ListingField{
		{Name: "title", Selector: "h2, h3", Type: "text"},
		{Name: linkField, Selector: "a", Type: "attribute", Attribute: "href"},
	},
}

var defaultChunks = ChunkSpec{
	Anchor:  "### Grade Requirements",
	Pattern: `(?s)(###.*?---)`,
}

var defaultPrompts = map[extract.Mode]string{
	extract.ModeResearch: "Extract the professor's full name, personal or lab website, and list of research interests " +
		"from this faculty profile page. Each research interest is a short phrase. Use \"N/A\" when no website is listed. " +
		"Return an empty list when no research interests are listed.",
	extract.ModeCourses: "Extract the course from this catalog entry: the course code and title as course_name, " +
		"the full description as course_description, the prerequisites text as prereqs (empty when none) and the " +
		"number of credits as an integer (-1 when not stated).",
	extract.ModeEvents: "Extract the event title, the date, the location and a one paragraph description from this " +
		"event page. Leave a field empty when the page does not state it.",
}

package extract

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(page FetchResponse) bool
}

// PageFetcher turns a URL into extraction-ready content.
type PageFetcher interface {
	FetchPage(ctx context.Context, request FetchRequest) (SourcePage, error)
	FetchListing(ctx context.Context, request FetchRequest, schema ListingSchema) ([]ListingItem, error)
}

// Model is the language-model capability used for structured extraction and classification.
type Model interface {
	Complete(ctx context.Context, request ModelRequest) (string, error)
}

// BlobStore writes and reads whole objects and returns a URI on write.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// RecordStore persists extracted records in the relational datastore.
type RecordStore interface {
	SaveProfessors(ctx context.Context, professors []ProfessorRecord, edges []InterestEdge) error
	SaveCourses(ctx context.Context, courses []CourseRecord) error
	SaveEvents(ctx context.Context, events []EventRecord) error
	ListProfessors(ctx context.Context, limit int) ([]ProfessorRecord, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Limiter gates outbound requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

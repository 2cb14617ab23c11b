package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyContent is returned when a page was fetched but carried no usable text.
	ErrEmptyContent = errors.New("page has no extractable content")
	// ErrCapabilityUnavailable aborts a whole batch: no fetcher or model can be reached.
	ErrCapabilityUnavailable = errors.New("extraction capability unavailable")
	// ErrBatchTimeout marks a batch that hit its deadline and returned partial outcomes.
	ErrBatchTimeout = errors.New("batch deadline exceeded")
	// ErrNotFound is returned by stores when an object does not exist.
	ErrNotFound = errors.New("not found")
)

// UnknownDepartmentError is returned for department codes missing from the catalog.
type UnknownDepartmentError struct {
	Code string
	Mode Mode
}

func (e *UnknownDepartmentError) Error() string {
	if e.Mode == "" {
		return fmt.Sprintf("unknown department %q", e.Code)
	}
	return fmt.Sprintf("unknown department %q for %s", e.Code, e.Mode)
}

// FetchError wraps a failure to retrieve a single URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SchemaValidationError is returned when model output does not satisfy a record schema.
type SchemaValidationError struct {
	Schema string
	Field  string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Schema, e.Reason)
	}
	return fmt.Sprintf("%s.%s: %s", e.Schema, e.Field, e.Reason)
}

// IsFetchFailure reports whether err belongs to the per-URL fetch class.
func IsFetchFailure(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) || errors.Is(err, ErrEmptyContent)
}

// IsValidationFailure reports whether err is a schema validation failure.
func IsValidationFailure(err error) bool {
	var ve *SchemaValidationError
	return errors.As(err, &ve)
}

package headless

import (
	"context"
	"fmt"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

// Unavailable replaces the browser when Chrome could not be started. Every
// render fails with extract.ErrCapabilityUnavailable wrapping the startup
// cause, so a debug run explains why it could not render.
type Unavailable struct {
	cause error
}

// NewUnavailable records why the browser is missing. cause may be nil.
func NewUnavailable(cause error) *Unavailable {
	return &Unavailable{cause: cause}
}

// Fetch always fails.
func (u *Unavailable) Fetch(_ context.Context, request extract.FetchRequest) (extract.FetchResponse, error) {
	if u.cause != nil {
		return extract.FetchResponse{}, fmt.Errorf("render %s: browser unavailable (%v): %w",
			request.URL, u.cause, extract.ErrCapabilityUnavailable)
	}
	return extract.FetchResponse{}, fmt.Errorf("render %s: browser unavailable: %w",
		request.URL, extract.ErrCapabilityUnavailable)
}

package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/metrics"
)

// Reasons recorded when a robots.txt lookup is abandoned and the host is
// treated as allow-all.
const (
	robotsReasonTimeout     = "timeout"
	robotsReasonServerError = "server_error"

	// robotsFallbackHeader marks pages fetched under an allow-all fallback.
	robotsFallbackHeader = "X-Extractor-Robots-Fallback"

	allowAllRobots = "User-agent: *\nAllow: /"
)

var defaultRobotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsGuard wraps the collector transport. Requests for /robots.txt are
// retried on timeouts and 5xx answers; once retries run out the guard serves
// an allow-all body so a flaky department server does not block the crawl.
type robotsGuard struct {
	base    http.RoundTripper
	backoff []time.Duration

	fellBack bool
	reason   string
}

func newRobotsGuard(base http.RoundTripper) *robotsGuard {
	return &robotsGuard{base: base, backoff: defaultRobotsBackoff}
}

func (g *robotsGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots guard: nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		resp, err := g.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots guard roundtrip: %w", err)
		}
		return resp, nil
	}
	return g.fetchRobots(req)
}

func (g *robotsGuard) fetchRobots(req *http.Request) (*http.Response, error) {
	reason := ""
	for attempt := 0; attempt <= len(g.backoff); attempt++ {
		resp, err := g.base.RoundTrip(req.Clone(req.Context()))
		switch {
		case err != nil && !isTransient(err):
			return nil, fmt.Errorf("robots.txt %s: %w", req.URL.Host, err)
		case err != nil:
			reason = robotsReasonTimeout
		case resp.StatusCode >= http.StatusInternalServerError:
			_ = resp.Body.Close()
			reason = robotsReasonServerError
		default:
			return resp, nil
		}
		if attempt == len(g.backoff) {
			break
		}
		if err := sleepCtx(req.Context(), g.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots.txt %s backoff: %w", req.URL.Host, err)
		}
	}
	g.fallBack(reason)
	return allowAllResponse(req), nil
}

func (g *robotsGuard) fallBack(reason string) {
	if g.fellBack {
		return
	}
	g.fellBack = true
	g.reason = reason
	metrics.ObserveRobotsFallback(reason)
}

// annotate tags the page so callers can tell robots rules were not applied.
func (g *robotsGuard) annotate(resp *extract.FetchResponse) {
	if g == nil || resp == nil || !g.fellBack {
		return
	}
	if resp.Headers == nil {
		resp.Headers = make(http.Header)
	}
	resp.Headers.Set(robotsFallbackHeader, g.reason)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Request:       req,
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "handshake timeout")
}

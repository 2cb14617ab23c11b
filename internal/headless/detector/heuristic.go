// Package detector decides when a static fetch must be re-rendered in a browser.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

// Heuristic promotes pages whose static HTML carries too little visible text
// to be worth extracting, or that are obviously client-rendered shells.
type Heuristic struct {
	MinTextChars int
}

// NewHeuristic creates a new detector.
func NewHeuristic(minTextChars int) *Heuristic {
	if minTextChars <= 0 {
		minTextChars = 200
	}
	return &Heuristic{MinTextChars: minTextChars}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

var noscriptHints = []string{
	"enable javascript",
	"requires javascript",
	"javascript is disabled",
}

// ShouldPromote decides whether a headless fetch is required.
func (h *Heuristic) ShouldPromote(resp extract.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	for _, hint := range noscriptHints {
		if strings.Contains(strings.ToLower(doc.Find("noscript").Text()), hint) {
			return true
		}
	}
	scripts := doc.Find("script")
	scriptChars := 0
	scripts.Each(func(_ int, s *goquery.Selection) {
		scriptChars += len(s.Text())
	})
	doc.Find("script, style, noscript, template").Remove()
	visible := len(strings.Join(strings.Fields(doc.Find("body").Text()), " "))

	if visible >= h.MinTextChars {
		return false
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return scripts.Length() > 0 && scriptChars >= visible
}

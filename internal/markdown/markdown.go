// Package markdown renders fetched HTML as compact markdown for model prompts.
// Headings keep their level so course catalog sections stay recognisable, and
// horizontal rules become "---" record separators.
package markdown

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

var (
	blankRuns = regexp.MustCompile(`\n{3,}`)
	dropTags  = "script, style, noscript, template, svg, iframe, form, nav, header, footer"
)

// Convert renders body as markdown. Relative links are resolved against pageURL.
func Convert(body []byte, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	base, _ := url.Parse(pageURL)
	doc.Find(dropTags).Remove()
	flatten(doc.Selection)

	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	return tidy(newConverter(base).Convert(root)), nil
}

func newConverter(base *url.URL) *md.Converter {
	domain := ""
	if base != nil {
		domain = base.Host
	}
	return md.NewConverter(domain, true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "---",
		BulletListMarker: "-",
		EmDelimiter:      "_",
		StrongDelimiter:  "**",
		GetAbsoluteURL: func(_ *goquery.Selection, rawURL, _ string) string {
			if base == nil {
				return rawURL
			}
			ref, err := url.Parse(strings.TrimSpace(rawURL))
			if err != nil {
				return rawURL
			}
			return base.ResolveReference(ref).String()
		},
	})
}

// flatten replaces in-page and script links with their text and images with
// their alt text; neither carries anything a prompt can use.
func flatten(doc *goquery.Selection) {
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href := strings.ToLower(strings.TrimSpace(a.AttrOr("href", "")))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			a.ReplaceWithSelection(a.Contents())
		}
	})
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		img.ReplaceWithHtml(stdhtml.EscapeString(img.AttrOr("alt", "")))
	})
}

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
		if strings.TrimSpace(lines[i]) == "" {
			lines[i] = ""
		}
	}
	out := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out)
}

package fetcher

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

// ApplySchema runs a CSS listing schema over an HTML document. Elements for
// which every field is empty are skipped. No match yields an empty slice.
func ApplySchema(body []byte, schema extract.ListingSchema) ([]extract.ListingItem, error) {
	if strings.TrimSpace(schema.BaseSelector) == "" {
		return nil, fmt.Errorf("listing schema %q: base selector is required", schema.Name)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	items := make([]extract.ListingItem, 0)
	doc.Find(schema.BaseSelector).Each(func(_ int, sel *goquery.Selection) {
		item := make(extract.ListingItem, len(schema.Fields))
		for _, field := range schema.Fields {
			if v := fieldValue(sel, field); v != "" {
				item[field.Name] = v
			}
		}
		if len(item) > 0 {
			items = append(items, item)
		}
	})
	return items, nil
}

func fieldValue(sel *goquery.Selection, field extract.ListingField) string {
	target := sel.Find(field.Selector).First()
	if target.Length() == 0 && sel.Is(field.Selector) {
		target = sel
	}
	if target.Length() == 0 {
		return ""
	}
	switch field.Type {
	case "attribute":
		v, _ := target.Attr(field.Attribute)
		return strings.TrimSpace(v)
	case "html":
		h, err := target.Html()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(h)
	default:
		return strings.Join(strings.Fields(target.Text()), " ")
	}
}

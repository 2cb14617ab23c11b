package structured

import (
	"fmt"
	"regexp"
	"strings"
)

// Chunker splits a delimited catalog page into record-sized chunks.
type Chunker struct {
	anchor  string
	pattern *regexp.Regexp
}

// NewChunker compiles the block pattern. Chunking starts at the first anchor.
func NewChunker(anchor, pattern string) (*Chunker, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile chunk pattern: %w", err)
	}
	return &Chunker{anchor: anchor, pattern: re}, nil
}

// Split returns every block matching the pattern from the first anchor
// onwards, trimmed. The anchor's own blurb is not a record: a block that
// opens with the anchor and runs into a later heading is cut back to that
// heading, and leading anchor blocks are dropped when record blocks follow.
// A page made only of anchor blocks keeps them. Without the anchor or without
// any block Split returns the whole document as a single chunk. Blank input
// yields no chunks.
func (c *Chunker) Split(doc string) []string {
	if strings.TrimSpace(doc) == "" {
		return nil
	}
	whole := []string{strings.TrimSpace(doc)}
	if c.anchor == "" {
		return whole
	}
	idx := strings.Index(doc, c.anchor)
	if idx < 0 {
		return whole
	}
	matches := c.pattern.FindAllString(doc[idx:], -1)
	chunks := make([]string, 0, len(matches))
	for _, m := range matches {
		if m = c.trimAnchorBlurb(strings.TrimSpace(m)); m != "" {
			chunks = append(chunks, m)
		}
	}
	lead := 0
	for lead < len(chunks) && strings.HasPrefix(chunks[lead], c.anchor) {
		lead++
	}
	if lead < len(chunks) {
		chunks = chunks[lead:]
	}
	if len(chunks) == 0 {
		return whole
	}
	return chunks
}

// trimAnchorBlurb cuts an anchor block that swallowed the next record back
// to that record's heading.
func (c *Chunker) trimAnchorBlurb(block string) string {
	if !strings.HasPrefix(block, c.anchor) {
		return block
	}
	if next := strings.Index(block[len(c.anchor):], "\n#"); next >= 0 {
		return strings.TrimSpace(block[len(c.anchor)+next:])
	}
	return block
}

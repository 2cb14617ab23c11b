// Package structured turns page text into validated records by asking a
// language model for JSON and checking the reply against a record schema.
package structured

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

const systemPrompt = "You extract structured data from university web pages. " +
	"Reply with a single JSON object and nothing else. Do not invent values that are not on the page."

// maxContentBytes bounds the page text sent per request.
const maxContentBytes = 60000

// Extractor wraps a model with prompt construction and reply parsing.
type Extractor struct {
	model     extract.Model
	maxTokens int
	logger    *zap.Logger
}

// NewExtractor builds an Extractor. A nil model is a capability error.
func NewExtractor(model extract.Model, maxTokens int, logger *zap.Logger) (*Extractor, error) {
	if model == nil {
		return nil, fmt.Errorf("structured extractor: %w", extract.ErrCapabilityUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{model: model, maxTokens: maxTokens, logger: logger.Named("structured")}, nil
}

// Extract maps request.Content onto one record of the schema. Malformed or
// incomplete replies yield *extract.SchemaValidationError.
func Extract[T any](ctx context.Context, e *Extractor, schema Schema[T], request extract.ExtractionRequest) (T, error) {
	var zero T
	if strings.TrimSpace(request.Content) == "" {
		return zero, fmt.Errorf("%s: %w", request.SourceURL, extract.ErrEmptyContent)
	}
	reply, err := e.model.Complete(ctx, extract.ModelRequest{
		System:    systemPrompt,
		Prompt:    buildPrompt(schema, request),
		MaxTokens: e.maxTokens,
	})
	if err != nil {
		return zero, fmt.Errorf("model completion for %s: %w", request.SourceURL, err)
	}
	obj, err := decodeObject(reply)
	if err != nil {
		e.logger.Debug("unparseable model reply",
			zap.String("schema", schema.Name),
			zap.String("url", request.SourceURL),
			zap.Int("reply_len", len(reply)),
		)
		return zero, &extract.SchemaValidationError{Schema: schema.Name, Reason: err.Error()}
	}
	return schema.Build(obj, request.SourceURL)
}

func buildPrompt[T any](schema Schema[T], request extract.ExtractionRequest) string {
	content := truncateUTF8(request.Content, maxContentBytes)
	var b strings.Builder
	b.WriteString(request.Instruction)
	b.WriteString("\n\nReturn a JSON object with this shape:\n")
	b.WriteString(schema.Describe())
	if request.SourceURL != "" {
		fmt.Fprintf(&b, "\n\nThe page URL is %s.", request.SourceURL)
	}
	b.WriteString("\n\nPage content:\n<page>\n")
	b.WriteString(content)
	b.WriteString("\n</page>")
	return b.String()
}

// decodeObject pulls the first JSON object out of a model reply. Code fences,
// surrounding prose and single-element arrays are tolerated.
func decodeObject(reply string) (map[string]any, error) {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return nil, fmt.Errorf("empty reply")
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, fmt.Errorf("reply contains no JSON")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text[start:])))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	switch val := v.(type) {
	case map[string]any:
		return val, nil
	case []any:
		if len(val) == 0 {
			return nil, fmt.Errorf("reply is an empty array")
		}
		obj, ok := val[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("reply array holds %T, want object", val[0])
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("reply is %T, want object", v)
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

package normalize

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

// ModelClassifier asks the language model to pick a taxonomy entry.
type ModelClassifier struct {
	model     extract.Model
	maxTokens int
}

// NewModelClassifier builds a ModelClassifier. A nil model is a capability error.
func NewModelClassifier(model extract.Model, maxTokens int) (*ModelClassifier, error) {
	if model == nil {
		return nil, fmt.Errorf("interest classifier: %w", extract.ErrCapabilityUnavailable)
	}
	if maxTokens <= 0 || maxTokens > 64 {
		maxTokens = 64
	}
	return &ModelClassifier{model: model, maxTokens: maxTokens}, nil
}

// Classify returns the model's choice, unquoted and trimmed. "none" means no fit.
func (c *ModelClassifier) Classify(ctx context.Context, raw string, canonicals []string) (string, error) {
	var b strings.Builder
	b.WriteString("Pick the research area that best matches the interest below.\n")
	b.WriteString("Answer with exactly one name from the list, or none if nothing fits.\n\nAreas:\n")
	for _, name := range canonicals {
		b.WriteString("- ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nInterest: %s\n", raw)

	reply, err := c.model.Complete(ctx, extract.ModelRequest{
		System:    "You classify research interests into a fixed list of areas. Reply with the area name only.",
		Prompt:    b.String(),
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("classify %q: %w", raw, err)
	}
	answer := strings.Trim(strings.TrimSpace(reply), "\"'`.")
	if strings.EqualFold(answer, "none") {
		return "", nil
	}
	return answer, nil
}

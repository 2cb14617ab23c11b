// Package normalize maps free-text research interests onto a controlled
// vocabulary. Lookup runs first (exact or alias, keyword, fuzzy); an optional
// classifier handles what lookup cannot; everything else is kept as
// Uncategorized so no raw interest is dropped.
package normalize

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/batch"
	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/metrics"
)

// Match methods recorded on each edge.
const (
	MethodExact         = "exact"
	MethodKeyword       = "keyword"
	MethodFuzzy         = "fuzzy"
	MethodClassifier    = "classifier"
	MethodUncategorized = "uncategorized"
)

// DefaultFuzzyThreshold is the minimum token Jaccard similarity for a fuzzy match.
const DefaultFuzzyThreshold = 0.6

// Classifier picks a canonical interest for a raw phrase. It returns "" when
// none fits.
type Classifier interface {
	Classify(ctx context.Context, raw string, canonicals []string) (string, error)
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithClassifier enables the classification fallback, run through engine.
func WithClassifier(c Classifier, engine *batch.Engine) Option {
	return func(n *Normalizer) {
		n.classifier = c
		n.engine = engine
	}
}

// WithThreshold overrides the fuzzy match threshold.
func WithThreshold(threshold float64) Option {
	return func(n *Normalizer) {
		if threshold > 0 && threshold <= 1 {
			n.threshold = threshold
		}
	}
}

// Normalizer turns professor records into interest edges.
type Normalizer struct {
	taxonomy   *Taxonomy
	threshold  float64
	classifier Classifier
	engine     *batch.Engine
	logger     *zap.Logger
}

// New builds a Normalizer over taxonomy.
func New(taxonomy *Taxonomy, logger *zap.Logger, opts ...Option) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Normalizer{taxonomy: taxonomy, threshold: DefaultFuzzyThreshold, logger: logger.Named("normalize")}
	for _, opt := range opts {
		opt(n)
	}
	if n.classifier != nil && n.engine == nil {
		n.engine = batch.New("classify", batch.DefaultMaxConcurrency, n.logger)
	}
	return n
}

// Canonicalize resolves raw through the lookup stages only.
func (n *Normalizer) Canonicalize(raw string) (string, string) {
	if name, ok := n.taxonomy.Lookup(raw); ok {
		return name, MethodExact
	}
	if name, ok := n.taxonomy.Keyword(raw); ok {
		return name, MethodKeyword
	}
	if name, ok := n.taxonomy.Fuzzy(raw, n.threshold); ok {
		return name, MethodFuzzy
	}
	return extract.UncategorizedInterest, MethodUncategorized
}

// Normalize flattens every record's interests into edges, one per distinct
// (canonical, raw, professor) triple, in record order. Records without
// interests contribute nothing. Classifier failures degrade to Uncategorized.
func (n *Normalizer) Normalize(ctx context.Context, records []extract.ProfessorRecord) ([]extract.InterestEdge, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	var edges []extract.InterestEdge
	var unmatched []string
	seenUnmatched := make(map[string]bool)
	for _, rec := range records {
		for _, raw := range rec.ResearchInterest {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			canonical, method := n.Canonicalize(raw)
			if method == MethodUncategorized && !seenUnmatched[raw] {
				seenUnmatched[raw] = true
				unmatched = append(unmatched, raw)
			}
			edges = append(edges, extract.InterestEdge{
				CanonicalInterest: canonical,
				RawInterest:       raw,
				ProfessorName:     rec.Name,
				Method:            method,
			})
		}
	}

	if classified := n.classify(ctx, unmatched); len(classified) > 0 {
		for i := range edges {
			if name, ok := classified[edges[i].RawInterest]; ok && edges[i].Method == MethodUncategorized {
				edges[i].CanonicalInterest = name
				edges[i].Method = MethodClassifier
			}
		}
	}

	edges = dedupe(edges)
	for _, e := range edges {
		metrics.ObserveInterestMatch(e.Method)
	}
	return edges, nil
}

func (n *Normalizer) classify(ctx context.Context, raws []string) map[string]string {
	if n.classifier == nil || len(raws) == 0 {
		return nil
	}
	canonicals := n.taxonomy.Canonicals()
	report, err := batch.Run(ctx, n.engine, raws, func(s string) string { return s },
		func(ctx context.Context, raw string) (string, error) {
			answer, err := n.classifier.Classify(ctx, raw, canonicals)
			if err != nil {
				return "", err
			}
			// Only taxonomy members are accepted.
			name, ok := n.taxonomy.Lookup(answer)
			if !ok || name == extract.UncategorizedInterest {
				return "", nil
			}
			return name, nil
		})
	if err != nil {
		n.logger.Warn("interest classification incomplete", zap.Int("unmatched", len(raws)), zap.Error(err))
	}
	out := make(map[string]string)
	for _, o := range report.Outcomes {
		if o.Kind == batch.KindSuccess && o.Value != "" {
			out[o.Key] = o.Value
		}
	}
	return out
}

func dedupe(edges []extract.InterestEdge) []extract.InterestEdge {
	type key struct{ canonical, raw, professor string }
	seen := make(map[key]bool, len(edges))
	out := edges[:0]
	for _, e := range edges {
		k := key{e.CanonicalInterest, e.RawInterest, e.ProfessorName}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

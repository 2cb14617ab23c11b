package normalize

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

// Entry is one canonical interest with the phrasings that map to it.
type Entry struct {
	Canonical string   `json:"canonical" mapstructure:"canonical"`
	Aliases   []string `json:"aliases" mapstructure:"aliases"`
}

// DefaultTaxonomy is the controlled vocabulary used when none is configured.
func DefaultTaxonomy() []Entry {
	return []Entry{
		{Canonical: "Artificial Intelligence", Aliases: []string{"AI", "intelligent systems", "knowledge representation", "automated reasoning", "multi-agent systems"}},
		{Canonical: "Machine Learning", Aliases: []string{"ML", "deep learning", "neural networks", "reinforcement learning", "statistical learning", "learning theory"}},
		{Canonical: "Computer Vision", Aliases: []string{"CV", "image processing", "image analysis", "visual recognition", "object detection"}},
		{Canonical: "Natural Language Processing", Aliases: []string{"NLP", "computational linguistics", "language models", "text mining", "speech processing"}},
		{Canonical: "Robotics", Aliases: []string{"robot", "robots", "motion planning", "robot learning", "manipulation"}},
		{Canonical: "Autonomous Vehicles", Aliases: []string{"self-driving cars", "autonomous driving", "unmanned aerial vehicles", "drones", "UAV"}},
		{Canonical: "Human-Computer Interaction", Aliases: []string{"HCI", "user experience", "UX", "user interfaces", "accessibility", "usability"}},
		{Canonical: "Security & Privacy", Aliases: []string{"security", "cybersecurity", "privacy", "cryptography", "network security", "software security"}},
		{Canonical: "Software Engineering", Aliases: []string{"SE", "software testing", "program analysis", "programming languages", "software maintenance", "formal methods"}},
		{Canonical: "Systems", Aliases: []string{"operating systems", "distributed systems", "computer architecture", "parallel computing", "high performance computing", "cloud computing"}},
		{Canonical: "Networking", Aliases: []string{"computer networks", "wireless networks", "networked systems", "internet measurement", "sensor networks"}},
		{Canonical: "Data Science", Aliases: []string{"data mining", "databases", "big data", "data management", "information retrieval", "data analytics"}},
		{Canonical: "Computing Education", Aliases: []string{"computer science education", "CS education", "CS1", "broadening participation"}},
		{Canonical: "Graphics & Visualization", Aliases: []string{"computer graphics", "visualization", "data visualization", "virtual reality", "augmented reality", "VR", "AR"}},
		{Canonical: "Theory & Algorithms", Aliases: []string{"algorithms", "theory of computation", "complexity theory", "combinatorics", "graph theory", "discrete mathematics"}},
		{Canonical: "Embedded Systems & IoT", Aliases: []string{"embedded systems", "internet of things", "IoT", "cyber-physical systems", "hardware"}},
		{Canonical: "Computational Biology", Aliases: []string{"bioinformatics", "computational genomics", "systems biology", "medical informatics"}},
		{Canonical: "Applied Mathematics", Aliases: []string{"numerical analysis", "optimization", "differential equations", "mathematical modeling", "scientific computing"}},
		{Canonical: "Statistics", Aliases: []string{"probability", "statistical inference", "bayesian statistics", "biostatistics"}},
		{Canonical: "Pure Mathematics", Aliases: []string{"algebra", "topology", "number theory", "real analysis", "geometry", "mathematical logic"}},
	}
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "for": true,
	"in": true, "on": true, "to": true, "with": true, "its": true, "applications": true,
}

// Taxonomy is a validated, folded view of a controlled vocabulary.
type Taxonomy struct {
	canonicals []string
	byKey      map[string]string

	keywords []string // padded folded phrases, aligned with owner
	owner    []string
	matcher  *ahocorasick.Matcher

	phrases []phrase
}

type phrase struct {
	canonical string
	tokens    map[string]bool
}

// NewTaxonomy folds and indexes entries. Canonical names win over aliases
// when two phrasings fold to the same key.
func NewTaxonomy(entries []Entry) (*Taxonomy, error) {
	if len(entries) == 0 {
		return nil, errors.New("taxonomy is empty")
	}
	t := &Taxonomy{byKey: make(map[string]string)}
	for _, e := range entries {
		name := strings.TrimSpace(e.Canonical)
		if name == "" {
			return nil, errors.New("taxonomy entry has no canonical name")
		}
		key := Fold(name)
		if prev, ok := t.byKey[key]; ok {
			return nil, fmt.Errorf("taxonomy: %q duplicates %q", name, prev)
		}
		t.byKey[key] = name
		t.canonicals = append(t.canonicals, name)
	}
	t.byKey[Fold(extract.UncategorizedInterest)] = extract.UncategorizedInterest

	for _, e := range entries {
		name := strings.TrimSpace(e.Canonical)
		t.addPhrase(name, name)
		for _, alias := range e.Aliases {
			key := Fold(alias)
			if key == "" {
				continue
			}
			if _, taken := t.byKey[key]; !taken {
				t.byKey[key] = name
			}
			t.addPhrase(name, alias)
		}
	}
	t.matcher = ahocorasick.NewStringMatcher(t.keywords)
	return t, nil
}

func (t *Taxonomy) addPhrase(canonical, text string) {
	key := Fold(text)
	if key == "" {
		return
	}
	t.keywords = append(t.keywords, " "+key+" ")
	t.owner = append(t.owner, canonical)
	if toks := tokenSet(key); len(toks) > 0 {
		t.phrases = append(t.phrases, phrase{canonical: canonical, tokens: toks})
	}
}

// Canonicals returns the canonical names in configured order.
func (t *Taxonomy) Canonicals() []string { return slices.Clone(t.canonicals) }

// Lookup resolves an exact or alias match.
func (t *Taxonomy) Lookup(raw string) (string, bool) {
	name, ok := t.byKey[Fold(raw)]
	return name, ok
}

// Keyword returns the canonical owning the longest taxonomy phrase found as
// whole words inside raw.
func (t *Taxonomy) Keyword(raw string) (string, bool) {
	key := Fold(raw)
	if key == "" || t.matcher == nil {
		return "", false
	}
	best := -1
	for _, hit := range t.matcher.Match([]byte(" " + key + " ")) {
		if hit >= len(t.keywords) {
			continue
		}
		if best < 0 || len(t.keywords[hit]) > len(t.keywords[best]) ||
			(len(t.keywords[hit]) == len(t.keywords[best]) && hit < best) {
			best = hit
		}
	}
	if best < 0 {
		return "", false
	}
	return t.owner[best], true
}

// Fuzzy returns the canonical whose phrase has the highest token Jaccard
// similarity with raw, if it reaches threshold.
func (t *Taxonomy) Fuzzy(raw string, threshold float64) (string, bool) {
	toks := tokenSet(Fold(raw))
	if len(toks) == 0 {
		return "", false
	}
	var (
		best  string
		score float64
	)
	for _, p := range t.phrases {
		if s := jaccard(toks, p.tokens); s > score {
			best, score = p.canonical, s
		}
	}
	if score < threshold || best == "" {
		return "", false
	}
	return best, true
}

// Fold reduces s to a comparison key: accents stripped, case folded,
// punctuation turned into single spaces.
func Fold(s string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)
	return strings.Join(strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

func tokenSet(key string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(key) {
		if !stopwords[tok] {
			out[tok] = true
		}
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

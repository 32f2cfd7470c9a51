package ambiguity

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

type matcher struct {
	term    string
	pattern *regexp.Regexp
	build   func() Ambiguity
}

type categoryMatchers struct {
	category Category
	matchers []matcher
}

type phraseMatcher struct {
	pattern *regexp.Regexp
	value   string
}

// Detector matches vague terms and resolves clarification replies. It holds
// only compiled, read-only tables and is safe for concurrent use.
type Detector struct {
	categories   []categoryMatchers
	vocabulary   []phraseMatcher
	descriptions []phraseMatcher
	negation     *regexp.Regexp
	negative     string
	options      map[string]*regexp.Regexp
}

// NewDetector compiles cfg into a Detector.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Detector{
		negative: cfg.NegativeOperation,
		options:  make(map[string]*regexp.Regexp),
	}

	var operation, size, glass, grilles []matcher
	for _, t := range cfg.Operation {
		if t.Prompt == "" {
			t.Prompt = operationPrompt(t.Term, t.Options)
		}
		m, err := newMatcher(t.Term, func() Ambiguity {
			return OperationAmbiguity{
				Term:       t.Term,
				Confidence: t.Confidence,
				Options:    append([]string(nil), t.Options...),
				Prompt:     t.Prompt,
			}
		})
		if err != nil {
			return nil, err
		}
		operation = append(operation, m)
		for _, opt := range t.Options {
			if err := d.addOption(opt); err != nil {
				return nil, err
			}
		}
	}
	for _, t := range cfg.Size {
		if t.Prompt == "" {
			t.Prompt = sizePrompt(t.Term, t.Suggestion)
		}
		m, err := newMatcher(t.Term, func() Ambiguity {
			return SizeAmbiguity{Term: t.Term, Confidence: t.Confidence, Suggestion: t.Suggestion, Prompt: t.Prompt}
		})
		if err != nil {
			return nil, err
		}
		size = append(size, m)
	}
	glass, err := defaultMatchers(cfg.Glass, func(nd NamedDefault) Ambiguity { return GlassAmbiguity{nd} })
	if err != nil {
		return nil, err
	}
	grilles, err = defaultMatchers(cfg.Grilles, func(nd NamedDefault) Ambiguity { return GrilleAmbiguity{nd} })
	if err != nil {
		return nil, err
	}

	d.categories = []categoryMatchers{
		{category: CategoryOperation, matchers: operation},
		{category: CategorySize, matchers: size},
		{category: CategoryGlass, matchers: glass},
		{category: CategoryGrilles, matchers: grilles},
	}

	if d.vocabulary, err = phraseMatchers(cfg.OperationVocabulary); err != nil {
		return nil, err
	}
	if d.descriptions, err = phraseMatchers(cfg.OperationDescriptions); err != nil {
		return nil, err
	}
	if len(cfg.NegationPhrases) > 0 {
		d.negation = phrasePattern(cfg.NegationPhrases...)
	}
	return d, nil
}

// NewDefaultDetector compiles DefaultConfig. The built-in tables always compile.
func NewDefaultDetector() *Detector {
	d, err := NewDetector(DefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("ambiguity: built-in vocabulary is invalid: %v", err))
	}
	return d
}

func newMatcher(term string, build func() Ambiguity) (matcher, error) {
	pattern, err := wordPattern(term)
	if err != nil {
		return matcher{}, fmt.Errorf("failed to compile term %q: %w", term, err)
	}
	return matcher{term: strings.ToLower(term), pattern: pattern, build: build}, nil
}

func defaultMatchers(terms []DefaultTerm, wrap func(NamedDefault) Ambiguity) ([]matcher, error) {
	out := make([]matcher, 0, len(terms))
	for _, t := range terms {
		if t.Prompt == "" {
			t.Prompt = defaultPrompt(t.Term, t.DefaultName)
		}
		m, err := newMatcher(t.Term, func() Ambiguity {
			return wrap(NamedDefault{
				Term:        t.Term,
				Confidence:  t.Confidence,
				DefaultName: t.DefaultName,
				Fields:      specification.Specification(t.Fields).Clone(),
				Prompt:      t.Prompt,
			})
		})
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// phraseMatchers compiles mappings longest phrase first, so "double hung"
// is tried before "hung".
func phraseMatchers(mappings []Mapping) ([]phraseMatcher, error) {
	sorted := append([]Mapping(nil), mappings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Phrase) > len(sorted[j].Phrase)
	})
	out := make([]phraseMatcher, 0, len(sorted))
	for _, m := range sorted {
		pattern, err := wordPattern(m.Phrase)
		if err != nil {
			return nil, fmt.Errorf("failed to compile phrase %q: %w", m.Phrase, err)
		}
		out = append(out, phraseMatcher{pattern: pattern, value: m.Value})
	}
	return out, nil
}

func (d *Detector) addOption(option string) error {
	if _, ok := d.options[option]; ok {
		return nil
	}
	pattern, err := wordPattern(option)
	if err != nil {
		return fmt.Errorf("failed to compile option %q: %w", option, err)
	}
	d.options[option] = pattern
	return nil
}

// Detect returns the ambiguities in message, most confident first. A category
// is skipped when any of its target fields is already present in currentSpec.
func (d *Detector) Detect(message string, currentSpec specification.Specification) []Ambiguity {
	message = normalize(message)
	if strings.TrimSpace(message) == "" {
		return nil
	}

	var found []Ambiguity
	for _, cat := range d.categories {
		if anyPresent(currentSpec, cat.category.Targets()) {
			continue
		}
		seen := make(map[string]bool)
		for _, m := range cat.matchers {
			if seen[m.term] || !m.pattern.MatchString(message) {
				continue
			}
			seen[m.term] = true
			found = append(found, m.build())
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Score() > found[j].Score()
	})
	return found
}

func anyPresent(spec specification.Specification, fields []string) bool {
	for _, f := range fields {
		if spec.IsPresent(f) {
			return true
		}
	}
	return false
}

func operationPrompt(term string, options []string) string {
	described := make([]string, 0, len(options))
	for _, opt := range options {
		described = append(described, describeOperation(opt))
	}
	return fmt.Sprintf("When you say %q, how should the window open? Options: %s.", term, strings.Join(described, ", "))
}

func sizePrompt(term, suggestion string) string {
	w, h, _ := ParseSize(suggestion)
	return fmt.Sprintf("%q sizes vary by manufacturer. A common one is %s. Is that your size, or do you have exact measurements (width x height in inches)?",
		capitalize(term), FormatSize(w, h))
}

func defaultPrompt(term, defaultName string) string {
	return fmt.Sprintf("By %q we usually mean %s. Would that work for you?", term, defaultName)
}

func describeOperation(op string) string {
	switch op {
	case specification.OperationHung:
		return "single or double hung (slides up)"
	case specification.OperationSlider:
		return "slider (slides sideways)"
	case specification.OperationCasement:
		return "casement (cranks out)"
	case specification.OperationAwning:
		return "awning (tilts out from the bottom)"
	case specification.OperationFixed:
		return "fixed (doesn't open)"
	default:
		return op
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

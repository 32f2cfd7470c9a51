package ambiguity

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// OperationTerm is a vague word that leaves the operation style open.
type OperationTerm struct {
	Term       string   `yaml:"term"`
	Confidence float64  `yaml:"confidence"`
	Options    []string `yaml:"options"`
	Prompt     string   `yaml:"prompt,omitempty"`
}

// SizeTerm is a vague size word with the size it most likely means.
type SizeTerm struct {
	Term       string  `yaml:"term"`
	Confidence float64 `yaml:"confidence"`
	Suggestion string  `yaml:"suggestion"`
	Prompt     string  `yaml:"prompt,omitempty"`
}

// DefaultTerm is a vague phrase that maps onto a named default bundle.
type DefaultTerm struct {
	Term        string         `yaml:"term"`
	Confidence  float64        `yaml:"confidence"`
	DefaultName string         `yaml:"default_name"`
	Fields      map[string]any `yaml:"fields"`
	Prompt      string         `yaml:"prompt,omitempty"`
}

// Mapping maps a phrase found in a reply onto an operation style.
type Mapping struct {
	Phrase string `yaml:"phrase"`
	Value  string `yaml:"value"`
}

// Config is the full vocabulary the detector and resolver work from.
// It is plain data: build one, hand it to NewDetector, don't mutate it after.
type Config struct {
	Operation []OperationTerm `yaml:"operation"`
	Size      []SizeTerm      `yaml:"size"`
	Glass     []DefaultTerm   `yaml:"glass"`
	Grilles   []DefaultTerm   `yaml:"grilles"`

	// OperationVocabulary holds canonical names and synonyms for each style.
	OperationVocabulary []Mapping `yaml:"operation_vocabulary"`
	// OperationDescriptions maps descriptive phrases ("cranks") to a style.
	OperationDescriptions []Mapping `yaml:"operation_descriptions"`
	// NegationPhrases resolve an operation question to NegativeOperation.
	NegationPhrases   []string `yaml:"negation_phrases"`
	NegativeOperation string   `yaml:"negative_operation"`
}

// DefaultConfig returns the built-in vocabulary. Each call returns fresh data.
func DefaultConfig() Config {
	allOperations := []string{"hung", "slider", "casement", "awning", "fixed"}
	operableOperations := []string{"hung", "slider", "casement", "awning"}
	doublePaneLowE := map[string]any{
		specification.FieldPaneCount: 2,
		specification.FieldLowE:      true,
	}
	triplePaneArgon := map[string]any{
		specification.FieldPaneCount: 3,
		specification.FieldLowE:      true,
		specification.FieldArgon:     true,
	}
	colonial := map[string]any{
		specification.FieldGrilles: true,
	}

	return Config{
		Operation: []OperationTerm{
			{Term: "standard", Confidence: 0.6, Options: allOperations},
			{Term: "regular", Confidence: 0.6, Options: allOperations},
			{Term: "normal", Confidence: 0.6, Options: allOperations},
			{Term: "opens", Confidence: 0.7, Options: operableOperations},
			{Term: "operable", Confidence: 0.7, Options: operableOperations},
			{Term: "one that opens", Confidence: 0.75, Options: operableOperations},
		},
		Size: []SizeTerm{
			{Term: "standard", Confidence: 0.8, Suggestion: "36x48"},
			{Term: "typical", Confidence: 0.75, Suggestion: "36x48"},
			{Term: "medium", Confidence: 0.7, Suggestion: "36x48"},
			{Term: "regular size", Confidence: 0.75, Suggestion: "36x48"},
			{Term: "small", Confidence: 0.7, Suggestion: "24x36"},
			{Term: "large", Confidence: 0.7, Suggestion: "48x60"},
			{Term: "big", Confidence: 0.65, Suggestion: "48x60"},
		},
		Glass: []DefaultTerm{
			{Term: "energy efficient", Confidence: 0.8, DefaultName: "double pane with Low-E", Fields: doublePaneLowE},
			{Term: "good glass", Confidence: 0.7, DefaultName: "double pane with Low-E", Fields: doublePaneLowE},
			{Term: "insulated", Confidence: 0.65, DefaultName: "double pane with Low-E", Fields: doublePaneLowE},
			{Term: "premium glass", Confidence: 0.75, DefaultName: "triple pane with Low-E and argon", Fields: triplePaneArgon},
			{Term: "best glass", Confidence: 0.75, DefaultName: "triple pane with Low-E and argon", Fields: triplePaneArgon},
		},
		Grilles: []DefaultTerm{
			{Term: "grids", Confidence: 0.6, DefaultName: "colonial grilles", Fields: colonial},
			{Term: "grid", Confidence: 0.6, DefaultName: "colonial grilles", Fields: colonial},
			{Term: "dividers", Confidence: 0.55, DefaultName: "colonial grilles", Fields: colonial},
			{Term: "muntins", Confidence: 0.55, DefaultName: "colonial grilles", Fields: colonial},
			{Term: "colonial", Confidence: 0.5, DefaultName: "colonial grilles", Fields: colonial},
		},
		OperationVocabulary: []Mapping{
			{Phrase: "double hung", Value: "hung"},
			{Phrase: "single hung", Value: "hung"},
			{Phrase: "double-hung", Value: "hung"},
			{Phrase: "single-hung", Value: "hung"},
			{Phrase: "hung", Value: "hung"},
			{Phrase: "sliding", Value: "slider"},
			{Phrase: "slider", Value: "slider"},
			{Phrase: "glider", Value: "slider"},
			{Phrase: "casement", Value: "casement"},
			{Phrase: "awning", Value: "awning"},
			{Phrase: "fixed", Value: "fixed"},
			{Phrase: "picture", Value: "fixed"},
		},
		OperationDescriptions: []Mapping{
			{Phrase: "cranks", Value: "casement"},
			{Phrase: "crank", Value: "casement"},
			{Phrase: "swings out", Value: "casement"},
			{Phrase: "opens like a door", Value: "casement"},
			{Phrase: "tilts out", Value: "awning"},
			{Phrase: "tilt out", Value: "awning"},
			{Phrase: "hinged at the top", Value: "awning"},
			{Phrase: "slides sideways", Value: "slider"},
			{Phrase: "side to side", Value: "slider"},
			{Phrase: "slides up", Value: "hung"},
			{Phrase: "up and down", Value: "hung"},
		},
		NegationPhrases: []string{
			"doesn't open", "does not open", "doesnt open", "don't need it to open",
			"won't open", "not open", "no opening", "stationary",
		},
		NegativeOperation: "fixed",
	}
}

// LoadConfig reads a YAML vocabulary. Sections present in the document
// replace the built-in ones; absent sections keep their defaults.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to decode vocabulary: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every table entry.
func (c Config) Validate() error {
	check := func(section, term string, confidence float64) error {
		if strings.TrimSpace(term) == "" {
			return fmt.Errorf("%s: empty term", section)
		}
		if confidence < 0 || confidence > 1 {
			return fmt.Errorf("%s: term %q has confidence %v outside [0, 1]", section, term, confidence)
		}
		return nil
	}

	for _, t := range c.Operation {
		if err := check("operation", t.Term, t.Confidence); err != nil {
			return err
		}
		if len(t.Options) == 0 {
			return fmt.Errorf("operation: term %q has no options", t.Term)
		}
	}
	for _, t := range c.Size {
		if err := check("size", t.Term, t.Confidence); err != nil {
			return err
		}
		if _, _, ok := ParseSize(t.Suggestion); !ok {
			return fmt.Errorf("size: term %q has unreadable suggestion %q", t.Term, t.Suggestion)
		}
	}
	for section, terms := range map[string][]DefaultTerm{"glass": c.Glass, "grilles": c.Grilles} {
		for _, t := range terms {
			if err := check(section, t.Term, t.Confidence); err != nil {
				return err
			}
			if t.DefaultName == "" || len(t.Fields) == 0 {
				return fmt.Errorf("%s: term %q has no default bundle", section, t.Term)
			}
		}
	}
	for _, m := range append(append([]Mapping{}, c.OperationVocabulary...), c.OperationDescriptions...) {
		if strings.TrimSpace(m.Phrase) == "" || m.Value == "" {
			return fmt.Errorf("operation vocabulary: incomplete mapping %q -> %q", m.Phrase, m.Value)
		}
	}
	return nil
}

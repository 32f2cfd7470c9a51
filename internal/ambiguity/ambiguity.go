// Package ambiguity detects vague window vocabulary in free-form messages and
// resolves a user's reply to a clarification back into concrete fields.
package ambiguity

import (
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// Category names the kind of vague term that was matched.
type Category string

const (
	CategoryOperation Category = "operation"
	CategorySize      Category = "size"
	CategoryGlass     Category = "glass"
	CategoryGrilles   Category = "grilles"
)

// Categories lists every category in clarification priority order.
var Categories = []Category{CategoryOperation, CategorySize, CategoryGlass, CategoryGrilles}

var validCategories = map[Category]bool{
	CategoryOperation: true,
	CategorySize:      true,
	CategoryGlass:     true,
	CategoryGrilles:   true,
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	return validCategories[c]
}

// Rank is the category's position in the clarification priority order.
// Unknown categories rank last.
func (c Category) Rank() int {
	for i, cat := range Categories {
		if cat == c {
			return i
		}
	}
	return len(Categories)
}

// Targets returns the specification fields a category settles.
func (c Category) Targets() []string {
	switch c {
	case CategoryOperation:
		return []string{specification.FieldOperation}
	case CategorySize:
		return []string{specification.FieldWidth, specification.FieldHeight}
	case CategoryGlass:
		return []string{specification.FieldPaneCount, specification.FieldLowE, specification.FieldArgon}
	case CategoryGrilles:
		return []string{specification.FieldGrilles}
	default:
		return nil
	}
}

// Ambiguity is a detected vague term. The concrete variants are
// OperationAmbiguity, SizeAmbiguity, GlassAmbiguity and GrilleAmbiguity.
type Ambiguity interface {
	Category() Category
	MatchedTerm() string
	Score() float64
	ClarifyPrompt() string
	// Valid reports whether the variant carries everything its resolver needs.
	Valid() bool
	sealed()
}

// OperationAmbiguity offers a small set of operation styles.
type OperationAmbiguity struct {
	Term       string   `json:"term"`
	Confidence float64  `json:"confidence"`
	Options    []string `json:"options"`
	Prompt     string   `json:"prompt"`
}

func (a OperationAmbiguity) Category() Category    { return CategoryOperation }
func (a OperationAmbiguity) MatchedTerm() string   { return a.Term }
func (a OperationAmbiguity) Score() float64        { return a.Confidence }
func (a OperationAmbiguity) ClarifyPrompt() string { return a.Prompt }
func (a OperationAmbiguity) Valid() bool           { return a.Term != "" && len(a.Options) > 0 }
func (OperationAmbiguity) sealed()                 {}

// SizeAmbiguity suggests one concrete size, written "WxH" in inches.
type SizeAmbiguity struct {
	Term       string  `json:"term"`
	Confidence float64 `json:"confidence"`
	Suggestion string  `json:"suggestion"`
	Prompt     string  `json:"prompt"`
}

func (a SizeAmbiguity) Category() Category    { return CategorySize }
func (a SizeAmbiguity) MatchedTerm() string   { return a.Term }
func (a SizeAmbiguity) Score() float64        { return a.Confidence }
func (a SizeAmbiguity) ClarifyPrompt() string { return a.Prompt }
func (a SizeAmbiguity) Valid() bool {
	if a.Term == "" {
		return false
	}
	_, _, ok := ParseSize(a.Suggestion)
	return ok
}
func (SizeAmbiguity) sealed() {}

// NamedDefault is a preset that expands into several concrete fields.
type NamedDefault struct {
	Term        string                      `json:"term"`
	Confidence  float64                     `json:"confidence"`
	DefaultName string                      `json:"default_name"`
	Fields      specification.Specification `json:"fields"`
	Prompt      string                      `json:"prompt"`
}

func (d NamedDefault) MatchedTerm() string   { return d.Term }
func (d NamedDefault) Score() float64        { return d.Confidence }
func (d NamedDefault) ClarifyPrompt() string { return d.Prompt }
func (d NamedDefault) Valid() bool {
	return d.Term != "" && d.DefaultName != "" && len(d.Fields) > 0
}

// GlassAmbiguity is a vague glass-quality phrase.
type GlassAmbiguity struct {
	NamedDefault
}

func (GlassAmbiguity) Category() Category { return CategoryGlass }
func (GlassAmbiguity) sealed()            {}

// GrilleAmbiguity is a vague mention of decorative grids.
type GrilleAmbiguity struct {
	NamedDefault
}

func (GrilleAmbiguity) Category() Category { return CategoryGrilles }
func (GrilleAmbiguity) sealed()            {}

// Bundle returns the named default carried by a, if it has one.
func Bundle(a Ambiguity) (NamedDefault, bool) {
	switch v := a.(type) {
	case GlassAmbiguity:
		return v.NamedDefault, true
	case GrilleAmbiguity:
		return v.NamedDefault, true
	default:
		return NamedDefault{}, false
	}
}

// MostConfident returns the first entry of an already sorted list, or nil.
func MostConfident(list []Ambiguity) Ambiguity {
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

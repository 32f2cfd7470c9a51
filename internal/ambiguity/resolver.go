package ambiguity

import (
	"regexp"
	"strings"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// Resolution is what a reply to a clarification settled.
type Resolution struct {
	// Fields to merge into the specification. Empty for partial resolutions.
	Fields specification.Specification
	// SingleDimension is set when a size reply carried one number only and
	// the other dimension still has to be asked for.
	SingleDimension float64
	// NeedsAlternative is set when the user rejected a named default.
	NeedsAlternative bool
}

// Complete reports whether the resolution carries concrete fields.
func (r Resolution) Complete() bool {
	return len(r.Fields) > 0 && r.SingleDimension == 0 && !r.NeedsAlternative
}

// Resolve interprets response as an answer to a. It returns false when the
// reply settles nothing; malformed ambiguities never resolve.
func (d *Detector) Resolve(a Ambiguity, response string) (Resolution, bool) {
	if a == nil || !a.Valid() {
		return Resolution{}, false
	}
	response = normalize(response)
	if strings.TrimSpace(response) == "" {
		return Resolution{}, false
	}

	switch v := a.(type) {
	case SizeAmbiguity:
		return resolveSize(v, response)
	case OperationAmbiguity:
		return d.resolveOperation(v, response)
	case GlassAmbiguity:
		return resolveNamedDefault(v.NamedDefault, response)
	case GrilleAmbiguity:
		return resolveNamedDefault(v.NamedDefault, response)
	default:
		return Resolution{}, false
	}
}

// resolveSize prefers numbers the user typed over the suggestion: agreement
// only counts when the reply carries no numbers at all.
func resolveSize(a SizeAmbiguity, response string) (Resolution, bool) {
	if w, h, ok := ParseSize(response); ok {
		return sizeResolution(w, h), true
	}

	numbers := ExtractNumbers(response)
	switch {
	case len(numbers) == 2 && numbers[0] > 0 && numbers[1] > 0:
		w, h := numbers[0], numbers[1]
		if heightFirst(response) {
			w, h = h, w
		}
		return sizeResolution(w, h), true
	case len(numbers) == 1 && numbers[0] > 0:
		return Resolution{SingleDimension: numbers[0]}, true
	case len(numbers) == 0 && IsAgreement(response):
		w, h, _ := ParseSize(a.Suggestion)
		return sizeResolution(w, h), true
	}
	return Resolution{}, false
}

var (
	widthWord  = regexp.MustCompile(`(?i)\b(?:wide|width|across)\b`)
	heightWord = regexp.MustCompile(`(?i)\b(?:tall|high|height)\b`)
)

// heightFirst reports whether a two-number reply names the height before
// the width, as in "60 tall, 30 wide".
func heightFirst(text string) bool {
	h := heightWord.FindStringIndex(text)
	if h == nil {
		return false
	}
	w := widthWord.FindStringIndex(text)
	return w == nil || h[0] < w[0]
}

func sizeResolution(width, height float64) Resolution {
	return Resolution{Fields: specification.Specification{
		specification.FieldWidth:  specification.NumberValue(width),
		specification.FieldHeight: specification.NumberValue(height),
	}}
}

func (d *Detector) resolveOperation(a OperationAmbiguity, response string) (Resolution, bool) {
	if d.negation != nil && d.negation.MatchString(response) {
		return operationResolution(d.negative), true
	}
	for _, opt := range a.Options {
		if pattern, ok := d.options[opt]; ok && pattern.MatchString(response) {
			return operationResolution(opt), true
		}
	}
	if op, ok := firstMatch(d.vocabulary, response); ok {
		return operationResolution(op), true
	}
	if op, ok := firstMatch(d.descriptions, response); ok {
		return operationResolution(op), true
	}
	return Resolution{}, false
}

func operationResolution(op string) Resolution {
	return Resolution{Fields: specification.Specification{specification.FieldOperation: op}}
}

func firstMatch(matchers []phraseMatcher, text string) (string, bool) {
	for _, m := range matchers {
		if m.pattern.MatchString(text) {
			return m.value, true
		}
	}
	return "", false
}

func resolveNamedDefault(nd NamedDefault, response string) (Resolution, bool) {
	switch {
	case IsUncertain(response):
		return Resolution{}, false
	case IsRejection(response):
		return Resolution{NeedsAlternative: true}, true
	case IsAgreement(response):
		return Resolution{Fields: nd.Fields.Clone()}, true
	default:
		return Resolution{}, false
	}
}

var (
	triplePattern = phrasePattern("triple", "three", "3 pane", "3 panes", "triple pane", "triple-pane")
	doublePattern = phrasePattern("double", "two", "dual", "2 pane", "2 panes", "double pane", "double-pane")
	lowEPattern   = phrasePattern("low-e", "low e", "lowe", "low emissivity", "coated", "coating")
	argonPattern  = phrasePattern("argon", "gas filled", "gas-filled")
	noGrilles     = phrasePattern("no grids", "no grid", "no grilles", "without", "none", "plain", "clear")
	withGrilles   = phrasePattern("grids", "grid", "grilles", "grille", "divided", "dividers", "colonial", "muntins")
)

// Extract is a best-effort reading of a reply that Resolve couldn't place:
// two numbers for a size, any known operation keyword, pane and coating words
// for glass, yes/no grid words for grilles.
func (d *Detector) Extract(a Ambiguity, response string) (specification.Specification, bool) {
	if a == nil {
		return nil, false
	}
	response = normalize(response)

	switch a.Category() {
	case CategorySize:
		numbers := ExtractNumbers(response)
		if len(numbers) < 2 || numbers[0] <= 0 || numbers[1] <= 0 {
			return nil, false
		}
		w, h := numbers[0], numbers[1]
		if heightFirst(response) {
			w, h = h, w
		}
		return sizeResolution(w, h).Fields, true
	case CategoryOperation:
		if d.negation != nil && d.negation.MatchString(response) {
			return operationResolution(d.negative).Fields, true
		}
		if op, ok := firstMatch(d.vocabulary, response); ok {
			return operationResolution(op).Fields, true
		}
		if op, ok := firstMatch(d.descriptions, response); ok {
			return operationResolution(op).Fields, true
		}
		return nil, false
	case CategoryGlass:
		fields := specification.Specification{}
		switch {
		case triplePattern.MatchString(response):
			fields[specification.FieldPaneCount] = 3
		case doublePattern.MatchString(response):
			fields[specification.FieldPaneCount] = 2
		}
		if lowEPattern.MatchString(response) {
			fields[specification.FieldLowE] = !negated(response, lowEPattern)
		}
		if argonPattern.MatchString(response) {
			fields[specification.FieldArgon] = !negated(response, argonPattern)
		}
		return fields, len(fields) > 0
	case CategoryGrilles:
		switch {
		case noGrilles.MatchString(response):
			return specification.Specification{specification.FieldGrilles: false}, true
		case withGrilles.MatchString(response):
			return specification.Specification{specification.FieldGrilles: true}, true
		}
		return nil, false
	default:
		return nil, false
	}
}

var negationWord = regexp.MustCompile(`(?i)\b(?:no|without|skip|not)\s+(?:the\s+)?$`)

// negated reports whether the first match of pattern is directly preceded by
// a negating word, as in "no argon".
func negated(text string, pattern *regexp.Regexp) bool {
	loc := pattern.FindStringIndex(text)
	if loc == nil {
		return false
	}
	return negationWord.MatchString(text[:loc[0]])
}

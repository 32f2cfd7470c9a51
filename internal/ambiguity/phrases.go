package ambiguity

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	agreementPattern = phrasePattern(
		"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "correct", "right", "exactly",
		"perfect", "sounds good", "that works", "go ahead", "fine", "good", "please do",
	)
	rejectionPattern = phrasePattern(
		"no", "nope", "nah", "not that", "not this", "not it", "not really", "not quite",
		"no thanks", "no thank you", "don't want", "dont want", "do not want", "don't like",
		"dont like", "wrong", "something else", "something different", "a different one",
		"rather not",
	)
	// reassurancePattern covers phrases that contain a rejection word but agree.
	reassurancePattern = phrasePattern(
		"no problem", "not a problem", "no worries", "not bad", "no doubt",
	)
	uncertainPattern = phrasePattern(
		"not sure", "unsure", "no idea", "don't know", "dont know", "do not know", "dunno",
		"maybe", "no clue", "whatever you think", "you decide", "either",
	)
	helpPattern = phrasePattern(
		"help", "explain", "what is", "what's", "whats", "what does", "what do you mean",
		"difference", "meaning", "confused", "huh",
	)
	skipPattern = phrasePattern(
		"skip", "skip it", "never mind", "nevermind", "doesn't matter", "does not matter",
		"don't care", "dont care", "no preference", "later", "move on", "next question",
	)

	numberPattern   = regexp.MustCompile(`\d+(?:\.\d+)?`)
	sizePairPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:"|''|in(?:ches)?\.?)?\s*(?:x|×|by|\*)\s*(\d+(?:\.\d+)?)`)
)

// phrasePattern compiles phrases into one case-insensitive, whole-word
// alternation. Interior spaces match any run of whitespace.
func phrasePattern(phrases ...string) *regexp.Regexp {
	parts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		parts = append(parts, phraseExpr(p))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(parts, "|") + `)\b`)
}

func phraseExpr(phrase string) string {
	words := strings.Fields(phrase)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`)
}

// wordPattern matches a single term on word boundaries.
func wordPattern(term string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\b` + phraseExpr(term) + `\b`)
}

// normalize folds typographic apostrophes so "doesn’t" matches "doesn't".
func normalize(text string) string {
	return strings.NewReplacer("’", "'", "‘", "'").Replace(text)
}

// IsAgreement reports whether text accepts a suggestion. Uncertain or
// rejecting replies never count as agreement.
func IsAgreement(text string) bool {
	text = normalize(text)
	return agreementPattern.MatchString(text) && !rejects(text) && !uncertainPattern.MatchString(text)
}

// IsRejection reports whether text turns a suggestion down. Uncertain or
// indifferent replies ("don't know", "don't care") are not rejections.
func IsRejection(text string) bool {
	text = normalize(text)
	return rejects(text) && !uncertainPattern.MatchString(text) && !skipPattern.MatchString(text)
}

// IsUncertain reports whether the user doesn't know the answer.
func IsUncertain(text string) bool {
	return uncertainPattern.MatchString(normalize(text))
}

func rejects(text string) bool {
	return rejectionPattern.MatchString(reassurancePattern.ReplaceAllString(text, " "))
}

// IsHelpRequest reports whether the user asks for an explanation.
func IsHelpRequest(text string) bool {
	return helpPattern.MatchString(normalize(text)) || strings.TrimSpace(text) == "?"
}

// IsSkip reports whether the user wants to move past the question.
func IsSkip(text string) bool {
	return skipPattern.MatchString(normalize(text))
}

// ExtractNumbers returns every number in text in order of appearance.
func ExtractNumbers(text string) []float64 {
	matches := numberPattern.FindAllString(text, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

// ParseSize reads an explicit "W x H" or "W by H" pair from text.
func ParseSize(text string) (width, height float64, ok bool) {
	m := sizePairPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	w, errW := strconv.ParseFloat(m[1], 64)
	h, errH := strconv.ParseFloat(m[2], 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// FormatSize renders a size as `36" x 48"`.
func FormatSize(width, height float64) string {
	return FormatNumber(width) + `" x ` + FormatNumber(height) + `"`
}

// FormatNumber prints f without trailing zeros.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

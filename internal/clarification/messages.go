package clarification

import (
	"fmt"
	"strings"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/ambiguity"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

var helpTexts = map[ambiguity.Category]string{
	ambiguity.CategoryOperation: "Here's how the styles differ. Single and double hung windows slide up and down. " +
		"Sliders move sideways. Casements crank outward like a door, and awnings tilt out from the bottom. " +
		"Fixed (picture) windows don't open at all.",
	ambiguity.CategorySize: "Measure the opening in inches, inside the frame. " +
		`For example, 36 x 48 means 36" wide and 48" tall.`,
	ambiguity.CategoryGlass: "Double pane glass with a Low-E coating is our energy-efficient standard. " +
		"Triple pane with argon gas adds insulation for colder climates.",
	ambiguity.CategoryGrilles: "Grilles (also called grids or muntins) are decorative bars that divide the glass " +
		"into smaller panes for a colonial look.",
}

func helpText(a ambiguity.Ambiguity) string {
	if text, ok := helpTexts[a.Category()]; ok {
		return text
	}
	return "Let me explain."
}

// simplifiedPrompt is the shorter re-ask used after an unreadable reply.
func simplifiedPrompt(a ambiguity.Ambiguity) string {
	switch v := a.(type) {
	case ambiguity.OperationAmbiguity:
		return fmt.Sprintf("Which style would you like: %s?", strings.Join(v.Options, ", "))
	case ambiguity.SizeAmbiguity:
		w, h, _ := ambiguity.ParseSize(v.Suggestion)
		return fmt.Sprintf("Is %s right? Or reply with width x height in inches, like 30 x 60.", ambiguity.FormatSize(w, h))
	case ambiguity.GlassAmbiguity:
		return fmt.Sprintf("Should I use %s glass? (yes or no)", v.DefaultName)
	case ambiguity.GrilleAmbiguity:
		return fmt.Sprintf("Should I add %s? (yes or no)", v.DefaultName)
	default:
		return a.ClarifyPrompt()
	}
}

// confirmation acknowledges the fields a reply settled.
func confirmation(a ambiguity.Ambiguity, fields specification.Specification) string {
	switch a.Category() {
	case ambiguity.CategorySize:
		w, okW := fields.Number(specification.FieldWidth)
		h, okH := fields.Number(specification.FieldHeight)
		if okW && okH {
			return fmt.Sprintf("Great, I've noted a size of %s.", ambiguity.FormatSize(w, h))
		}
	case ambiguity.CategoryOperation:
		if op, ok := fields.String(specification.FieldOperation); ok {
			return fmt.Sprintf("Great, a %s window.", op)
		}
	case ambiguity.CategoryGlass:
		if nd, ok := ambiguity.Bundle(a); ok && nd.Fields != nil && sameFields(nd.Fields, fields) {
			return fmt.Sprintf("Perfect, I'll use %s glass.", nd.DefaultName)
		}
		return "Got it, I've updated the glass options."
	case ambiguity.CategoryGrilles:
		if with, ok := fields.Bool(specification.FieldGrilles); ok && !with {
			return "Got it, no grilles."
		}
		if nd, ok := ambiguity.Bundle(a); ok && nd.DefaultName != "" {
			return fmt.Sprintf("Got it, I'll include %s.", nd.DefaultName)
		}
		return "Got it, I'll include grilles."
	}
	return "Got it, thanks."
}

func sameFields(bundle, fields specification.Specification) bool {
	for k, v := range bundle {
		if fields[k] != v {
			return false
		}
	}
	return true
}

// alternativeQuestion follows up on a rejected named default.
func alternativeQuestion(a ambiguity.Ambiguity) string {
	switch a.Category() {
	case ambiguity.CategoryGlass:
		return "No problem. Would you prefer double or triple pane glass, and should it have a Low-E coating?"
	case ambiguity.CategoryGrilles:
		return "No problem. Would you like a different grille pattern, or no grilles at all?"
	default:
		return "No problem. What would you prefer instead?"
	}
}

package conversation

import (
	"fmt"
	"strings"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/ambiguity"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

const (
	errorMessage    = "Sorry, something went wrong on our side. Please send that again in a moment."
	greetingMessage = "Hi! I can help you get a quote for a custom window."
	readyMessage    = "I have everything I need. I'll prepare your quote now."
)

// welcomeBack scales the greeting with how far the conversation got.
func welcomeBack(completion int) string {
	switch {
	case completion >= 70:
		return "Welcome back! We're almost done with your window."
	case completion >= 30:
		return "Welcome back! We're about halfway through your window details."
	default:
		return "Welcome back! Let's pick up where we left off."
	}
}

func expiredMessage(defaulted, supplied []string) string {
	var b strings.Builder
	b.WriteString("Welcome back! It's been a while, so I filled in our standard choices")
	if len(defaulted) > 0 {
		b.WriteString(" for the ")
		b.WriteString(joinAnd(defaulted))
	}
	b.WriteString(".")
	if len(supplied) > 0 {
		b.WriteString(" I kept the ")
		b.WriteString(joinAnd(supplied))
		b.WriteString(" you gave me.")
	}
	return b.String()
}

func offerMessage(described []string) string {
	if len(described) == 0 {
		return "I have enough to quote your window. Shall I go ahead, or would you like to change anything?"
	}
	return fmt.Sprintf("I have enough to quote your window. I'll assume %s unless you'd like something different. Shall I go ahead with the quote?",
		joinAnd(described))
}

// describe renders one field value for the defaults offer, e.g.
// "Low-E coating", "no argon fill" or "frame color white".
func describe(f specification.FieldDefinition, value any) string {
	if f.Type == specification.TypeBoolean {
		if on, ok := specification.ToBool(value); ok && !on {
			return "no " + f.Label
		}
		return f.Label
	}
	if n, ok := specification.ToFloat(value); ok {
		return f.Label + " " + ambiguity.FormatNumber(n)
	}
	return fmt.Sprintf("%s %v", f.Label, value)
}

func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

// joinMessage joins non-empty parts with a space.
func joinMessage(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

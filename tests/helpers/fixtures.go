package helpers

import (
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// CompleteSpecification has every field set to a valid value.
func CompleteSpecification() specification.Specification {
	return specification.Specification{
		specification.FieldWidth:      36,
		specification.FieldHeight:     48,
		specification.FieldOperation:  specification.OperationCasement,
		specification.FieldWindowType: "standard",
		specification.FieldPaneCount:  2,
		specification.FieldLowE:       true,
		specification.FieldArgon:      false,
		specification.FieldGrilles:    false,
		specification.FieldScreen:     true,
		specification.FieldColor:      "white",
		specification.FieldQuantity:   1,
	}
}

// CriticalSpecification has only the fields a quote cannot go without.
func CriticalSpecification() specification.Specification {
	return specification.Specification{
		specification.FieldWidth:     30,
		specification.FieldHeight:    40,
		specification.FieldOperation: specification.OperationSlider,
	}
}

// Turn is one scripted user message.
type Turn struct {
	Message   string
	Extracted specification.Specification
	// Want is the expected outcome type.
	Want string
}

// StandardWindowScript walks a vague request through clarification to a
// quote offer.
func StandardWindowScript() []Turn {
	return []Turn{
		{Message: "I want a standard window", Extracted: specification.Specification{"quantity": 2}, Want: "NEEDS_CLARIFICATION"},
		{Message: "casement please", Want: "COLLECT_INFORMATION"},
		{Message: "a standard size one", Want: "NEEDS_CLARIFICATION"},
		{Message: "yes that's right", Want: "OFFER_QUOTE_WITH_DEFAULTS"},
	}
}

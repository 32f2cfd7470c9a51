package conversation

import (
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/ambiguity"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// OutcomeType is the terminal state of a turn.
type OutcomeType string

const (
	OutcomeCollectInformation     OutcomeType = "COLLECT_INFORMATION"
	OutcomeOfferQuoteWithDefaults OutcomeType = "OFFER_QUOTE_WITH_DEFAULTS"
	OutcomeGenerateQuote          OutcomeType = "GENERATE_QUOTE"
	OutcomeNeedsClarification     OutcomeType = "NEEDS_CLARIFICATION"
	OutcomeError                  OutcomeType = "ERROR"
)

// Outcome is what a turn hands back to the messaging layer.
type Outcome struct {
	Type          OutcomeType                 `json:"type"`
	Message       string                      `json:"message"`
	RequiresInput bool                        `json:"requires_input"`
	Specs         specification.Specification `json:"specs,omitempty"`
	NextField     string                      `json:"next_field,omitempty"`
	Ambiguity     ambiguity.Ambiguity         `json:"ambiguity,omitempty"`
	// AmbiguityCategory names the category of Ambiguity, since the variants
	// don't carry it in their JSON form.
	AmbiguityCategory ambiguity.Category `json:"ambiguity_category,omitempty"`
	DefaultedFields   []string           `json:"defaulted_fields,omitempty"`
	SuppliedFields    []string           `json:"supplied_fields,omitempty"`
	Warnings          []string           `json:"warnings,omitempty"`
	Completion        int                `json:"completion"`
}

// turnState names the steps a turn passes through; they show up as span
// events and debug logs.
type turnState string

const (
	stateCheckPending      turnState = "CHECK_PENDING_CLARIFICATION"
	stateProcessResponse   turnState = "PROCESS_CLARIFICATION_RESPONSE"
	stateDetectAmbiguity   turnState = "DETECT_NEW_AMBIGUITY"
	stateEmitClarification turnState = "EMIT_CLARIFICATION"
	stateMergeAndValidate  turnState = "MERGE_AND_VALIDATE"
	stateDetermineNextStep turnState = "DETERMINE_NEXT_STEP"
)

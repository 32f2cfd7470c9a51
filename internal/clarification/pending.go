package clarification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/ambiguity"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// PendingClarification is the single outstanding question of a conversation.
type PendingClarification struct {
	ID        uuid.UUID
	Ambiguity ambiguity.Ambiguity
	CreatedAt time.Time
	// DeferredFields were extracted on the turn that raised the question and
	// are merged once it closes.
	DeferredFields specification.Specification
	// PartialFields holds half an answer, such as one dimension of a size.
	PartialFields specification.Specification
	// Attempts counts unresolved replies so far.
	Attempts int
}

type pendingEnvelope struct {
	ID             uuid.UUID                   `json:"id"`
	CreatedAt      time.Time                   `json:"created_at"`
	Category       ambiguity.Category          `json:"category"`
	Ambiguity      json.RawMessage             `json:"ambiguity"`
	DeferredFields specification.Specification `json:"deferred_fields,omitempty"`
	PartialFields  specification.Specification `json:"partial_fields,omitempty"`
	Attempts       int                         `json:"attempts,omitempty"`
}

// MarshalJSON writes the ambiguity variant under its category tag.
func (p PendingClarification) MarshalJSON() ([]byte, error) {
	if p.Ambiguity == nil {
		return nil, fmt.Errorf("pending clarification %s has no ambiguity", p.ID)
	}
	raw, err := json.Marshal(p.Ambiguity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ambiguity: %w", err)
	}
	return json.Marshal(pendingEnvelope{
		ID:             p.ID,
		CreatedAt:      p.CreatedAt,
		Category:       p.Ambiguity.Category(),
		Ambiguity:      raw,
		DeferredFields: p.DeferredFields,
		PartialFields:  p.PartialFields,
		Attempts:       p.Attempts,
	})
}

// UnmarshalJSON restores the ambiguity variant named by the category tag.
func (p *PendingClarification) UnmarshalJSON(data []byte) error {
	var env pendingEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to unmarshal pending clarification: %w", err)
	}

	var a ambiguity.Ambiguity
	switch env.Category {
	case ambiguity.CategoryOperation:
		var v ambiguity.OperationAmbiguity
		if err := json.Unmarshal(env.Ambiguity, &v); err != nil {
			return fmt.Errorf("failed to unmarshal operation ambiguity: %w", err)
		}
		a = v
	case ambiguity.CategorySize:
		var v ambiguity.SizeAmbiguity
		if err := json.Unmarshal(env.Ambiguity, &v); err != nil {
			return fmt.Errorf("failed to unmarshal size ambiguity: %w", err)
		}
		a = v
	case ambiguity.CategoryGlass:
		var v ambiguity.GlassAmbiguity
		if err := json.Unmarshal(env.Ambiguity, &v); err != nil {
			return fmt.Errorf("failed to unmarshal glass ambiguity: %w", err)
		}
		v.Fields = v.Fields.Normalized()
		a = v
	case ambiguity.CategoryGrilles:
		var v ambiguity.GrilleAmbiguity
		if err := json.Unmarshal(env.Ambiguity, &v); err != nil {
			return fmt.Errorf("failed to unmarshal grille ambiguity: %w", err)
		}
		v.Fields = v.Fields.Normalized()
		a = v
	default:
		return fmt.Errorf("unknown ambiguity category %q", env.Category)
	}

	*p = PendingClarification{
		ID:             env.ID,
		Ambiguity:      a,
		CreatedAt:      env.CreatedAt,
		DeferredFields: nilIfEmpty(env.DeferredFields.Normalized()),
		PartialFields:  nilIfEmpty(env.PartialFields.Normalized()),
		Attempts:       env.Attempts,
	}
	return nil
}

func nilIfEmpty(s specification.Specification) specification.Specification {
	if len(s) == 0 {
		return nil
	}
	return s
}

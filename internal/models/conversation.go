package models

import (
	"time"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// MessageRequest is one inbound user message relayed by a messaging bridge
type MessageRequest struct {
	Message string `json:"message" binding:"required"`
	// ExtractedFields are values an upstream parser already pulled out of Message.
	ExtractedFields specification.Specification `json:"extracted_fields,omitempty" swaggertype:"object"`
}

// FieldIssueResponse describes one missing or invalid field
type FieldIssueResponse struct {
	Field    string `json:"field"`
	Label    string `json:"label"`
	Priority int    `json:"priority"`
	Kind     string `json:"kind"`
	Value    any    `json:"value,omitempty"`
}

// SpecificationResponse is the stored specification with its validation summary
type SpecificationResponse struct {
	UserID               string                      `json:"user_id"`
	Specification        specification.Specification `json:"specification" swaggertype:"object"`
	Missing              []FieldIssueResponse        `json:"missing"`
	Invalid              []FieldIssueResponse        `json:"invalid"`
	Warnings             []string                    `json:"warnings"`
	IsValid              bool                        `json:"is_valid"`
	CanGenerateQuote     bool                        `json:"can_generate_quote"`
	CompletionPercentage int                         `json:"completion_percentage"`
}

// NewSpecificationResponse builds the API view of a validated specification
func NewSpecificationResponse(userID string, spec specification.Specification, result specification.ValidationResult) SpecificationResponse {
	return SpecificationResponse{
		UserID:               userID,
		Specification:        spec,
		Missing:              issues(result.Missing),
		Invalid:              issues(result.Invalid),
		Warnings:             result.Warnings,
		IsValid:              result.IsValid,
		CanGenerateQuote:     result.CanGenerateQuote,
		CompletionPercentage: result.CompletionPercentage,
	}
}

func issues(list []specification.FieldIssue) []FieldIssueResponse {
	out := make([]FieldIssueResponse, 0, len(list))
	for _, issue := range list {
		out = append(out, FieldIssueResponse{
			Field:    issue.Name,
			Label:    issue.Field.Label,
			Priority: issue.Priority(),
			Kind:     string(issue.Kind),
			Value:    issue.Value,
		})
	}
	return out
}

// HealthResponse is returned by the health and readiness probes
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

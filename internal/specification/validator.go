package specification

import (
	"fmt"
	"math"
	"sort"
)

// IssueKind says why a field needs attention.
type IssueKind string

const (
	IssueMissing IssueKind = "missing"
	IssueInvalid IssueKind = "invalid"
)

// FieldIssue is a field that is either absent or holds a value its validator rejects.
type FieldIssue struct {
	Field FieldDefinition `json:"-"`
	Name  string          `json:"name"`
	Kind  IssueKind       `json:"kind"`
	Value any             `json:"value,omitempty"`
}

// Priority is a shortcut for Field.Priority.
func (i FieldIssue) Priority() int {
	return i.Field.Priority
}

// ValidationResult is recomputed from the specification on every turn.
type ValidationResult struct {
	Missing              []FieldIssue `json:"missing"`
	Invalid              []FieldIssue `json:"invalid"`
	Warnings             []string     `json:"warnings"`
	IsValid              bool         `json:"is_valid"`
	CanGenerateQuote     bool         `json:"can_generate_quote"`
	CompletionPercentage int          `json:"completion_percentage"`
}

// MissingNames lists the labels of missing fields in priority order.
func (r ValidationResult) MissingNames() []string {
	names := make([]string, 0, len(r.Missing))
	for _, m := range r.Missing {
		names = append(names, m.Field.Label)
	}
	return names
}

// DerivedDefault computes a default for Field from other fields of the spec.
// Compute returns false when the rule doesn't apply.
type DerivedDefault struct {
	Field   string
	Compute func(spec Specification) (any, bool)
}

// ConsistencyCheck returns a warning when spec is logically inconsistent.
type ConsistencyCheck func(spec Specification) (string, bool)

// Validator validates specifications against an immutable field table.
type Validator struct {
	fields  []FieldDefinition
	derived []DerivedDefault
	checks  []ConsistencyCheck
}

// Option configures a Validator.
type Option func(*Validator)

// WithDerivedDefaults adds defaults computed from other fields.
func WithDerivedDefaults(rules ...DerivedDefault) Option {
	return func(v *Validator) {
		v.derived = append(v.derived, rules...)
	}
}

// WithConsistencyChecks adds cross-field warning checks.
func WithConsistencyChecks(checks ...ConsistencyCheck) Option {
	return func(v *Validator) {
		v.checks = append(v.checks, checks...)
	}
}

// NewValidator builds a validator over a copy of fields.
func NewValidator(fields []FieldDefinition, opts ...Option) *Validator {
	table := make([]FieldDefinition, len(fields))
	copy(table, fields)
	v := &Validator{fields: table}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// NewWindowValidator returns the validator for the window field table.
func NewWindowValidator() *Validator {
	return NewValidator(DefaultFields(),
		WithDerivedDefaults(WindowDerivedDefaults()...),
		WithConsistencyChecks(WindowConsistencyChecks()...),
	)
}

// Fields returns a copy of the field table.
func (v *Validator) Fields() []FieldDefinition {
	out := make([]FieldDefinition, len(v.fields))
	copy(out, v.fields)
	return out
}

// Field looks up a definition by name.
func (v *Validator) Field(name string) (FieldDefinition, bool) {
	for _, f := range v.fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// Validate classifies every defined field as missing, invalid or complete.
// It never fails, whatever the input map holds.
func (v *Validator) Validate(spec Specification) ValidationResult {
	result := ValidationResult{
		Missing:  []FieldIssue{},
		Invalid:  []FieldIssue{},
		Warnings: []string{},
	}

	valid := 0
	for _, f := range v.fields {
		if !spec.IsPresent(f.Name) {
			result.Missing = append(result.Missing, FieldIssue{Field: f, Name: f.Name, Kind: IssueMissing})
			continue
		}
		raw := spec[f.Name]
		if f.Validator != nil && !f.Validator(raw) {
			result.Invalid = append(result.Invalid, FieldIssue{Field: f, Name: f.Name, Kind: IssueInvalid, Value: raw})
			continue
		}
		valid++
	}

	// Declaration order breaks ties, so the sort must be stable.
	sort.SliceStable(result.Missing, func(i, j int) bool {
		return result.Missing[i].Priority() < result.Missing[j].Priority()
	})
	sort.SliceStable(result.Invalid, func(i, j int) bool {
		return result.Invalid[i].Priority() < result.Invalid[j].Priority()
	})

	for _, check := range v.checks {
		if warning, ok := check(spec); ok {
			result.Warnings = append(result.Warnings, warning)
		}
	}

	result.IsValid = len(result.Missing) == 0 && len(result.Invalid) == 0
	result.CanGenerateQuote = len(result.Invalid) == 0 && !hasCriticalGap(result.Missing)
	if len(v.fields) > 0 {
		result.CompletionPercentage = int(math.Round(float64(valid) / float64(len(v.fields)) * 100))
	}
	return result
}

func hasCriticalGap(missing []FieldIssue) bool {
	for _, m := range missing {
		if m.Priority() == PriorityCritical {
			return true
		}
	}
	return false
}

// NextField picks the single field to address next. Invalid fields come
// before missing ones; within each group the lowest priority number wins.
// It returns false when the specification is complete.
func NextField(result ValidationResult) (FieldIssue, bool) {
	if len(result.Invalid) > 0 {
		return lowestPriority(result.Invalid), true
	}
	if len(result.Missing) > 0 {
		return lowestPriority(result.Missing), true
	}
	return FieldIssue{}, false
}

// lowestPriority doesn't trust the caller to have sorted the list.
func lowestPriority(issues []FieldIssue) FieldIssue {
	best := issues[0]
	for _, issue := range issues[1:] {
		if issue.Priority() < best.Priority() {
			best = issue
		}
	}
	return best
}

// ApplyDefaults returns a new specification with static and derived defaults
// filled into absent fields. Present values, including false and 0, are kept.
func (v *Validator) ApplyDefaults(spec Specification) Specification {
	out := spec.Clone()
	for _, f := range v.fields {
		if out.IsPresent(f.Name) || !f.HasDefault() {
			continue
		}
		out[f.Name] = f.Default
	}
	// Derived rules read the caller's spec, not the static defaults, so a
	// field the caller left unset keeps its static default.
	for _, rule := range v.derived {
		if spec.IsPresent(rule.Field) {
			continue
		}
		if value, ok := rule.Compute(spec); ok {
			out[rule.Field] = value
		}
	}
	return out
}

// DefaultedFields lists the keys present in after but absent in before,
// in field-table order.
func (v *Validator) DefaultedFields(before, after Specification) []string {
	var names []string
	for _, f := range v.fields {
		if !before.IsPresent(f.Name) && after.IsPresent(f.Name) {
			names = append(names, f.Name)
		}
	}
	return names
}

// WindowDerivedDefaults holds defaults that depend on other window fields.
func WindowDerivedDefaults() []DerivedDefault {
	return []DerivedDefault{
		{
			Field: FieldArgon,
			Compute: func(spec Specification) (any, bool) {
				panes, ok := spec.Number(FieldPaneCount)
				if !ok {
					return nil, false
				}
				return panes >= 3, true
			},
		},
		{
			Field: FieldScreen,
			Compute: func(spec Specification) (any, bool) {
				op, ok := spec.String(FieldOperation)
				if !ok {
					return nil, false
				}
				return op != OperationFixed, true
			},
		},
	}
}

// WindowConsistencyChecks holds the non-blocking cross-field checks.
func WindowConsistencyChecks() []ConsistencyCheck {
	return []ConsistencyCheck{
		func(spec Specification) (string, bool) {
			argon, ok := spec.Bool(FieldArgon)
			if !ok || !argon {
				return "", false
			}
			lowE, ok := spec.Bool(FieldLowE)
			if ok && !lowE {
				return "Argon fill is usually paired with a Low-E coating.", true
			}
			return "", false
		},
		func(spec Specification) (string, bool) {
			screen, ok := spec.Bool(FieldScreen)
			if !ok || !screen {
				return "", false
			}
			op, ok := spec.String(FieldOperation)
			if ok && op == OperationFixed {
				return "Fixed windows don't open, so a screen has nothing to cover.", true
			}
			return "", false
		},
		func(spec Specification) (string, bool) {
			w, okW := spec.Number(FieldWidth)
			h, okH := spec.Number(FieldHeight)
			if !okW || !okH || w <= 0 || h <= 0 {
				return "", false
			}
			ratio := w / h
			if ratio > 4 || ratio < 0.25 {
				return fmt.Sprintf("A %.0f\" x %.0f\" window has unusual proportions; please double-check the size.", w, h), true
			}
			return "", false
		},
		// Single panes are already invalid; the warning names the conflict.
		func(spec Specification) (string, bool) {
			argon, ok := spec.Bool(FieldArgon)
			if !ok || !argon {
				return "", false
			}
			panes, ok := spec.Number(FieldPaneCount)
			if ok && panes < 2 {
				return "Argon fill sits between panes, so it needs at least two.", true
			}
			return "", false
		},
	}
}

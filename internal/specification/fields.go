package specification

import (
	"math"
	"strings"
)

// Priority tiers. Lower numbers are more urgent.
const (
	PriorityCritical   = 1
	PriorityImportant  = 2
	PriorityEfficiency = 3
	PriorityOptional   = 4
)

// Field names.
const (
	FieldWidth      = "width"
	FieldHeight     = "height"
	FieldOperation  = "operation"
	FieldWindowType = "window_type"
	FieldPaneCount  = "pane_count"
	FieldLowE       = "has_low_e"
	FieldArgon      = "has_argon"
	FieldGrilles    = "has_grilles"
	FieldScreen     = "has_screen"
	FieldColor      = "frame_color"
	FieldQuantity   = "quantity"
)

// Operation styles.
const (
	OperationHung     = "hung"
	OperationSlider   = "slider"
	OperationCasement = "casement"
	OperationAwning   = "awning"
	OperationFixed    = "fixed"
)

// ValueType describes the raw shape a field accepts.
type ValueType string

const (
	TypeNumber  ValueType = "number"
	TypeInteger ValueType = "integer"
	TypeEnum    ValueType = "enum"
	TypeBoolean ValueType = "boolean"
)

// FieldDefinition is one row of the static requirements table.
type FieldDefinition struct {
	Name     string
	Label    string
	Priority int
	Type     ValueType
	// Options lists the accepted values of an enum field.
	Options   []string
	Validator func(v any) bool
	// Default is nil when the field has no static default.
	Default any
}

// HasDefault reports whether the field carries a static default.
func (f FieldDefinition) HasDefault() bool {
	return f.Default != nil
}

// Operations lists the accepted operation styles in display order.
var Operations = []string{OperationHung, OperationSlider, OperationCasement, OperationAwning, OperationFixed}

// DefaultFields returns the window field table in declaration order.
// Each call returns a fresh slice so callers can't mutate a shared table.
func DefaultFields() []FieldDefinition {
	return []FieldDefinition{
		{
			Name: FieldWidth, Label: "width", Priority: PriorityCritical, Type: TypeNumber,
			Validator: numberBetween(12, 120),
		},
		{
			Name: FieldHeight, Label: "height", Priority: PriorityCritical, Type: TypeNumber,
			Validator: numberBetween(12, 120),
		},
		{
			Name: FieldOperation, Label: "operation style", Priority: PriorityCritical, Type: TypeEnum,
			Options:   Operations,
			Validator: oneOf(Operations...),
		},
		{
			Name: FieldWindowType, Label: "window type", Priority: PriorityImportant, Type: TypeEnum,
			Options:   []string{"standard", "bay", "shaped"},
			Validator: oneOf("standard", "bay", "shaped"),
			Default:   "standard",
		},
		{
			Name: FieldPaneCount, Label: "glass panes", Priority: PriorityImportant, Type: TypeInteger,
			Validator: integerIn(2, 3),
			Default:   2,
		},
		{
			Name: FieldLowE, Label: "Low-E coating", Priority: PriorityEfficiency, Type: TypeBoolean,
			Validator: isBool,
			Default:   true,
		},
		{
			Name: FieldArgon, Label: "argon fill", Priority: PriorityEfficiency, Type: TypeBoolean,
			Validator: isBool,
			Default:   false,
		},
		{
			Name: FieldGrilles, Label: "grilles", Priority: PriorityOptional, Type: TypeBoolean,
			Validator: isBool,
			Default:   false,
		},
		{
			Name: FieldScreen, Label: "screen", Priority: PriorityOptional, Type: TypeBoolean,
			Validator: isBool,
			Default:   true,
		},
		{
			Name: FieldColor, Label: "frame color", Priority: PriorityOptional, Type: TypeEnum,
			Options:   []string{"white", "almond", "bronze", "black"},
			Validator: oneOf("white", "almond", "bronze", "black"),
			Default:   "white",
		},
		{
			Name: FieldQuantity, Label: "quantity", Priority: PriorityOptional, Type: TypeInteger,
			Validator: integerRange(1, 100),
			Default:   1,
		},
	}
}

func numberBetween(min, max float64) func(any) bool {
	return func(v any) bool {
		f, ok := ToFloat(v)
		return ok && f >= min && f <= max
	}
}

func integerRange(min, max int) func(any) bool {
	return func(v any) bool {
		f, ok := ToFloat(v)
		if !ok || f != math.Trunc(f) {
			return false
		}
		return int(f) >= min && int(f) <= max
	}
}

func integerIn(allowed ...int) func(any) bool {
	return func(v any) bool {
		f, ok := ToFloat(v)
		if !ok || f != math.Trunc(f) {
			return false
		}
		for _, a := range allowed {
			if int(f) == a {
				return true
			}
		}
		return false
	}
}

func oneOf(options ...string) func(any) bool {
	return func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		s = strings.ToLower(strings.TrimSpace(s))
		for _, o := range options {
			if s == o {
				return true
			}
		}
		return false
	}
}

func isBool(v any) bool {
	_, ok := ToBool(v)
	return ok
}

// Package questions renders the next question and the progress line from
// embedded text templates.
package questions

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

//go:embed templates/*
var templatesFS embed.FS

// Actions passed to GenerateQuestion.
const (
	ActionAsk     = "ask"
	ActionCorrect = "correct"
)

// maxListedMissing caps how many missing fields the progress line names.
const maxListedMissing = 3

// Generator renders questions. Safe for concurrent use.
type Generator struct {
	tmpl *template.Template
}

type questionData struct {
	Field  specification.FieldDefinition
	Spec   specification.Specification
	Action string
	Value  any
}

type progressData struct {
	Percent int
	Missing []string
}

// NewGenerator parses the embedded templates.
func NewGenerator() (*Generator, error) {
	funcMap := template.FuncMap{
		"options": func(items []string) string { return joinWith(items, "or") },
		"join":    func(items []string) string { return joinWith(items, "and") },
		"value":   formatValue,
		"known": func(spec specification.Specification, name string) any {
			if !spec.IsPresent(name) {
				return nil
			}
			return spec[name]
		},
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Generator{tmpl: tmpl}, nil
}

// GenerateQuestion renders the question for field. action is ActionAsk for a
// missing field or ActionCorrect for an invalid one.
func (g *Generator) GenerateQuestion(field specification.FieldDefinition, spec specification.Specification, action string) (string, error) {
	name := field.Name
	if g.tmpl.Lookup(name) == nil {
		name = "generic"
	}
	data := questionData{Field: field, Spec: spec, Action: action}
	if spec.IsPresent(field.Name) {
		data.Value = spec[field.Name]
	}
	return g.render(name, data)
}

// GenerateProgressMessage renders e.g. "27% complete. Still needed: width, height and operation style."
func (g *Generator) GenerateProgressMessage(percent int, missing []string) (string, error) {
	if len(missing) > maxListedMissing {
		missing = missing[:maxListedMissing]
	}
	return g.render("progress", progressData{Percent: percent, Missing: missing})
}

func (g *Generator) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := g.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	out := strings.TrimSpace(buf.String())
	if out == "" {
		return "", fmt.Errorf("render %s: empty output", name)
	}
	return out, nil
}

// joinWith writes "a, b or c" for conj "or".
func joinWith(items []string, conj string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " " + conj + " " + items[len(items)-1]
	}
}

func formatValue(v any) string {
	if f, ok := specification.ToFloat(v); ok {
		if _, isString := v.(string); !isString {
			return fmt.Sprint(specification.NumberValue(f))
		}
	}
	return fmt.Sprintf("%q", fmt.Sprint(v))
}

// Package normalize reconciles the field names and value types produced by the
// different upstream sources (question files, remote LLM judges, modality
// analyzers) into one canonical schema.
//
// Resolution order for every canonical field: the canonical key when present,
// otherwise the first alias present, otherwise a zero value of the field kind.
package normalize

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Kind is the value type a canonical field defaults to when absent.
type Kind int

const (
	KindText Kind = iota
	KindNumber
)

// Field is one canonical field and the aliases accepted for it, in priority order.
type Field struct {
	Canonical string
	Aliases   []string
	Kind      Kind
}

// Schema is a named set of canonical fields.
type Schema struct {
	Name   string
	Fields []Field
}

var (
	// DomainSchema is the shape of a domain-answer evaluation.
	DomainSchema = Schema{
		Name: "domain_evaluation",
		Fields: []Field{
			{Canonical: "similarity_score", Aliases: []string{"score"}, Kind: KindNumber},
			{Canonical: "feedback", Aliases: []string{"comment"}, Kind: KindText},
		},
	}

	// FeedbackSchema is the shape of a generated feedback report.
	FeedbackSchema = Schema{
		Name: "feedback",
		Fields: []Field{
			{Canonical: "final_score", Aliases: []string{"score"}, Kind: KindNumber},
			{Canonical: "qualitative_rating", Aliases: []string{"rating"}, Kind: KindText},
			{Canonical: "feedback", Aliases: []string{"comment"}, Kind: KindText},
		},
	}

	// QuestionSchema is the shape of a question bank entry.
	QuestionSchema = Schema{
		Name: "question",
		Fields: []Field{
			{Canonical: "id", Kind: KindText},
			{Canonical: "text", Aliases: []string{"question"}, Kind: KindText},
			{Canonical: "ideal_answer", Aliases: []string{"answer"}, Kind: KindText},
		},
	}
)

// Resolved is the outcome of alias resolution.
type Resolved struct {
	Values map[string]any
	// Present records which canonical fields were found under any accepted key.
	Present map[string]bool
}

// Has reports whether the canonical field was supplied by the source.
func (r Resolved) Has(field string) bool {
	return r.Present[field]
}

// Resolve applies the alias table to m. Keys outside the schema are copied through.
func (s Schema) Resolve(m map[string]any) Resolved {
	out := Resolved{
		Values:  make(map[string]any, len(m)+len(s.Fields)),
		Present: make(map[string]bool, len(s.Fields)),
	}
	for k, v := range m {
		out.Values[k] = v
	}

	for _, f := range s.Fields {
		if v, ok := lookup(m, f.Canonical); ok {
			out.Values[f.Canonical] = v
			out.Present[f.Canonical] = true
			continue
		}

		found := false
		for _, alias := range f.Aliases {
			if v, ok := lookup(m, alias); ok {
				out.Values[f.Canonical] = v
				out.Present[f.Canonical] = true
				found = true
				break
			}
		}
		if found {
			continue
		}

		switch f.Kind {
		case KindNumber:
			out.Values[f.Canonical] = 0.0
		default:
			out.Values[f.Canonical] = ""
		}
	}

	return out
}

// Decode resolves m and decodes the canonical values into out, which must be a
// pointer to a struct tagged with `mapstructure`. Numeric strings are accepted
// for number fields; anything else that is not numeric is an error.
func (s Schema) Decode(m map[string]any, out any) (Resolved, error) {
	resolved := s.Resolve(m)

	canonical := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		v := resolved.Values[f.Canonical]
		if f.Kind == KindNumber {
			n := Float(v)
			if !IsFinite(n) {
				return resolved, fmt.Errorf("%s: field %q is not numeric: %v", s.Name, f.Canonical, v)
			}
			v = n
		}
		canonical[f.Canonical] = v
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return resolved, fmt.Errorf("%s: build decoder: %w", s.Name, err)
	}
	if err := decoder.Decode(canonical); err != nil {
		return resolved, fmt.Errorf("%s: decode: %w", s.Name, err)
	}

	return resolved, nil
}

func lookup(m map[string]any, key string) (any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return nil, false
	}
	return v, true
}

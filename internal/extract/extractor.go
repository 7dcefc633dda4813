// Package extract finds vital signs, medications and conditions in free-text clinical notes.
//
// Extraction is plain pattern and substring matching. There is no negation handling:
// "no diabetes" still reports diabetes.
package extract

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"medagent/config"
)

// Category groups extracted fields.
type Category string

const (
	CategoryVitalSign  Category = "vital_sign"
	CategoryMedication Category = "medication"
	CategoryCondition  Category = "condition"
)

// Field is one recognized term or measurement.
type Field struct {
	Category Category `json:"category"`
	// Kind is set for vital signs only.
	Kind  VitalKind `json:"kind,omitempty"`
	Value string    `json:"value"`
	// SourceSpan is the matched text as it appears in the document.
	SourceSpan string `json:"source_span,omitempty"`
	// Offset is the byte offset of SourceSpan in the document.
	Offset int `json:"offset"`
}

// Fields is the result of one extraction. The slices are never nil.
type Fields struct {
	VitalSigns  []Field `json:"vital_signs"`
	Medications []Field `json:"medications"`
	Conditions  []Field `json:"conditions"`
}

// Total returns the number of fields across all categories.
func (f Fields) Total() int {
	return len(f.VitalSigns) + len(f.Medications) + len(f.Conditions)
}

// Values returns the values of fields in order.
func Values(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Value
	}
	return out
}

// HasKind reports whether fields contains a vital sign of the given kind.
func HasKind(fields []Field, kind VitalKind) bool {
	return slices.ContainsFunc(fields, func(f Field) bool { return f.Kind == kind })
}

type vocabularyTerm struct {
	term    string
	pattern *regexp.Regexp
}

// Extractor matches documents against fixed vital sign patterns and configurable
// medication and condition vocabularies. It holds no mutable state and is safe for
// concurrent use.
type Extractor struct {
	vitals      []vitalPattern
	medications []vocabularyTerm
	conditions  []vocabularyTerm
}

// New creates an Extractor from the configured vocabularies. Terms are matched
// case-insensitively; blank and repeated terms are ignored.
func New(cfg config.ExtractionConfig) *Extractor {
	return &Extractor{
		vitals:      defaultVitalPatterns(),
		medications: buildVocabulary(cfg.Medications),
		conditions:  buildVocabulary(cfg.Conditions),
	}
}

func buildVocabulary(terms []string) []vocabularyTerm {
	seen := make(map[string]struct{}, len(terms))
	out := make([]vocabularyTerm, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, vocabularyTerm{term: t, pattern: vocabularyPattern(t)})
	}
	return out
}

// MedicationTerms returns the medication vocabulary.
func (e *Extractor) MedicationTerms() []string { return terms(e.medications) }

// ConditionTerms returns the condition vocabulary.
func (e *Extractor) ConditionTerms() []string { return terms(e.conditions) }

func terms(v []vocabularyTerm) []string {
	out := make([]string, len(v))
	for i, t := range v {
		out[i] = t.term
	}
	return out
}

// Extract scans text and returns the fields found, each category ordered by first
// occurrence and free of repeated values. It never fails.
func (e *Extractor) Extract(text string) Fields {
	return Fields{
		VitalSigns:  e.extractVitals(text),
		Medications: matchVocabulary(text, e.medications, CategoryMedication),
		Conditions:  matchVocabulary(text, e.conditions, CategoryCondition),
	}
}

func (e *Extractor) extractVitals(text string) []Field {
	var found []Field
	for _, p := range e.vitals {
		for _, loc := range p.Pattern.FindAllStringSubmatchIndex(text, -1) {
			groups := submatches(text, loc)
			value, ok := p.value(groups)
			if !ok {
				continue
			}
			found = append(found, Field{
				Category:   CategoryVitalSign,
				Kind:       p.Kind,
				Value:      value,
				SourceSpan: text[loc[0]:spanEnd(p.Pattern, loc)],
				Offset:     loc[0],
			})
		}
	}

	sortByOffset(found)

	type key struct {
		kind  VitalKind
		value string
	}
	seen := make(map[key]struct{}, len(found))
	out := make([]Field, 0, len(found))
	for _, f := range found {
		k := key{f.Kind, strings.ToLower(f.Value)}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}

func matchVocabulary(text string, vocab []vocabularyTerm, category Category) []Field {
	out := make([]Field, 0)
	for _, t := range vocab {
		loc := t.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		out = append(out, Field{
			Category:   category,
			Value:      t.term,
			SourceSpan: text[loc[0]:loc[1]],
			Offset:     loc[0],
		})
	}
	sortByOffset(out)
	return out
}

// sortByOffset orders fields by position; fields at the same position keep their
// pattern order.
func sortByOffset(fields []Field) {
	slices.SortStableFunc(fields, func(a, b Field) int { return cmp.Compare(a.Offset, b.Offset) })
}

// spanEnd returns where the reported span of a match ends: at the start of its
// "tail" group when the pattern has one, otherwise at the end of the match.
func spanEnd(re *regexp.Regexp, loc []int) int {
	if i := re.SubexpIndex("tail"); i > 0 && loc[2*i] >= 0 {
		return loc[2*i]
	}
	return loc[1]
}

func submatches(text string, loc []int) []string {
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if start := loc[2*i]; start >= 0 {
			groups[i] = text[start:loc[2*i+1]]
		}
	}
	return groups
}

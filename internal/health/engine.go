// Package health matches observed crop symptoms against the rule table and
// ranks candidate diagnoses.
package health

import (
	"math"
	"sort"
	"strings"

	"krishi/internal/knowledge"
	"krishi/internal/lexicon"
	"krishi/internal/types"
)

// KnowledgeBase is the subset of the reference tables the engine reads.
type KnowledgeBase interface {
	HealthRules() []knowledge.HealthRule
	GeneralAdvice() types.Bilingual
	SymptomLexicon() []knowledge.SymptomTerm
}

// Candidate is one qualifying diagnosis.
type Candidate struct {
	RuleID      string          `json:"rule_id"`
	Disease     types.Bilingual `json:"disease"`
	Confidence  float64         `json:"confidence"`
	Specificity int             `json:"specificity"`
	Matched     []string        `json:"matched_symptoms"`
	Advice      types.Bilingual `json:"advice"`
}

// Diagnosis is the ranked result. Insufficient is set when no rule
// qualified; Advice then carries general crop care guidance.
type Diagnosis struct {
	Symptoms     []string        `json:"symptoms"`
	Candidates   []Candidate     `json:"candidates"`
	Insufficient bool            `json:"insufficient_signal"`
	Advice       types.Bilingual `json:"advice"`
}

// Top returns the highest ranked candidate, if any.
func (d *Diagnosis) Top() (Candidate, bool) {
	if len(d.Candidates) == 0 {
		return Candidate{}, false
	}
	return d.Candidates[0], true
}

// Engine evaluates the immutable rule table loaded at construction.
type Engine struct {
	rules   []knowledge.HealthRule
	general types.Bilingual
	lexicon []knowledge.SymptomTerm
}

// NewEngine snapshots the rules of kb.
func NewEngine(kb KnowledgeBase) *Engine {
	return &Engine{
		rules:   kb.HealthRules(),
		general: kb.GeneralAdvice(),
		lexicon: kb.SymptomLexicon(),
	}
}

// Diagnose ranks every rule whose required symptoms are all observed, by
// specificity and then declaration order. At most one candidate is returned
// per disease.
func (e *Engine) Diagnose(symptoms []string) *Diagnosis {
	observed := make(map[string]bool, len(symptoms))
	for _, s := range symptoms {
		if s = strings.TrimSpace(strings.ToLower(s)); s != "" {
			observed[s] = true
		}
	}

	var qualifying []knowledge.HealthRule
	for _, r := range e.rules {
		if containsAll(observed, r.Required) {
			qualifying = append(qualifying, r)
		}
	}
	sort.SliceStable(qualifying, func(i, j int) bool {
		if qualifying[i].Specificity() != qualifying[j].Specificity() {
			return qualifying[i].Specificity() > qualifying[j].Specificity()
		}
		return qualifying[i].Order < qualifying[j].Order
	})

	d := &Diagnosis{Symptoms: sortedSet(observed), Candidates: []Candidate{}}
	seen := make(map[string]bool)
	for _, r := range qualifying {
		if seen[r.Disease.EN] {
			continue
		}
		seen[r.Disease.EN] = true
		d.Candidates = append(d.Candidates, candidateFor(r, observed))
	}

	if len(d.Candidates) == 0 {
		d.Insufficient = true
		d.Advice = e.general
		return d
	}
	d.Advice = d.Candidates[0].Advice
	return d
}

// InferSymptoms maps free text to symptom tags using the keyword lexicon.
// Tags are returned sorted.
func (e *Engine) InferSymptoms(text string) []string {
	tokens := lexicon.Tokens(text)
	var tags []string
	for _, term := range e.lexicon {
		for _, p := range term.Patterns {
			if p.Matches(tokens) {
				tags = append(tags, term.Tag)
				break
			}
		}
	}
	sort.Strings(tags)
	return tags
}

func candidateFor(r knowledge.HealthRule, observed map[string]bool) Candidate {
	matched := append([]string{}, r.Required...)
	for _, tag := range r.Contributing {
		if observed[tag] {
			matched = append(matched, tag)
		}
	}
	total := len(r.Required) + len(r.Contributing)
	return Candidate{
		RuleID:      r.ID,
		Disease:     r.Disease,
		Confidence:  math.Round(float64(len(matched))/float64(total)*100) / 100,
		Specificity: r.Specificity(),
		Matched:     matched,
		Advice:      r.Advice,
	}
}

func containsAll(set map[string]bool, tags []string) bool {
	for _, t := range tags {
		if !set[t] {
			return false
		}
	}
	return true
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

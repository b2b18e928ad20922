// Package merge synthesizes writing guidelines from principles and
// examples, refining the merged document until four weighted validators
// agree it is usable.
package merge

import (
	"fmt"
	"strings"

	"github.com/teranos/refinery/decide"
)

// Validator names, stable across logs and metadata headers.
const (
	ValidatorPrincipleCoverage   = "principle_coverage"
	ValidatorExampleUtilization  = "example_utilization"
	ValidatorSectionCompleteness = "section_completeness"
	ValidatorActionability       = "actionability"
)

// Validator weights. Coverage carries the most weight: guidelines that
// drop principles are worse than guidelines that cite fewer examples.
var weights = map[string]float64{
	ValidatorPrincipleCoverage:   0.30,
	ValidatorExampleUtilization:  0.25,
	ValidatorSectionCompleteness: 0.25,
	ValidatorActionability:       0.20,
}

// passThreshold is the per-validator score below which a validator is
// considered failing and contributes its issues to the refinement call.
const passThreshold = 0.7

// ValidationResult is one validator's verdict.
type ValidationResult struct {
	Name   string   `json:"name" yaml:"name"`
	Score  float64  `json:"score" yaml:"score"`
	Passed bool     `json:"passed" yaml:"passed"`
	Issues []string `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// Validate runs all four validators against the merged candidate.
// Validators are pure text analysis; no delegated calls.
func Validate(candidate string, in Input) []ValidationResult {
	return []ValidationResult{
		validatePrincipleCoverage(candidate, in.Principles),
		validateExampleUtilization(candidate, in.Examples),
		validateSectionCompleteness(candidate, in.RequiredSections),
		validateActionability(candidate),
	}
}

// Confidence combines validator scores into the weighted confidence.
func Confidence(results []ValidationResult) float64 {
	var confidence float64
	for _, r := range results {
		confidence += weights[r.Name] * r.Score
	}
	return decide.Clamp(confidence)
}

// FailingIssues collects the issues of every failing validator, prefixed
// with the validator name, for the refinement call.
func FailingIssues(results []ValidationResult) []string {
	var issues []string
	for _, r := range results {
		if r.Passed {
			continue
		}
		for _, issue := range r.Issues {
			issues = append(issues, r.Name+": "+issue)
		}
	}
	return issues
}

func result(name string, score float64, issues []string) ValidationResult {
	score = decide.Clamp(score)
	return ValidationResult{
		Name:   name,
		Score:  score,
		Passed: score >= passThreshold,
		Issues: issues,
	}
}

// validatePrincipleCoverage checks that each input principle's key terms
// appear in the merged text. A principle counts as covered when at least
// half of its keywords are present.
func validatePrincipleCoverage(candidate string, principles []string) ValidationResult {
	if len(principles) == 0 {
		return result(ValidatorPrincipleCoverage, 1, nil)
	}
	lower := strings.ToLower(candidate)
	covered := 0
	var issues []string
	for _, p := range principles {
		kws := keywords(p)
		if len(kws) == 0 {
			covered++
			continue
		}
		hits := 0
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if float64(hits) >= float64(len(kws))*0.5 {
			covered++
		} else {
			issues = append(issues, fmt.Sprintf("principle not covered: %s", truncate(p, 80)))
		}
	}
	return result(ValidatorPrincipleCoverage, float64(covered)/float64(len(principles)), issues)
}

// validateExampleUtilization checks that the merged text draws on the
// provided examples. The bar is lower than coverage: an example counts as
// utilized when a third of its keywords appear.
func validateExampleUtilization(candidate string, examples []string) ValidationResult {
	if len(examples) == 0 {
		return result(ValidatorExampleUtilization, 1, nil)
	}
	lower := strings.ToLower(candidate)
	used := 0
	var issues []string
	for i, ex := range examples {
		kws := keywords(ex)
		if len(kws) == 0 {
			used++
			continue
		}
		hits := 0
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if float64(hits) >= float64(len(kws))/3.0 {
			used++
		} else {
			issues = append(issues, fmt.Sprintf("example %d unused: %s", i+1, truncate(ex, 80)))
		}
	}
	return result(ValidatorExampleUtilization, float64(used)/float64(len(examples)), issues)
}

// validateSectionCompleteness checks that every required section appears
// as a heading.
func validateSectionCompleteness(candidate string, sections []string) ValidationResult {
	if len(sections) == 0 {
		return result(ValidatorSectionCompleteness, 1, nil)
	}
	var headings []string
	for _, line := range strings.Split(candidate, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			headings = append(headings, strings.ToLower(strings.TrimLeft(trimmed, "# ")))
		}
	}
	present := 0
	var issues []string
	for _, s := range sections {
		found := false
		for _, h := range headings {
			if strings.Contains(h, strings.ToLower(s)) {
				found = true
				break
			}
		}
		if found {
			present++
		} else {
			issues = append(issues, fmt.Sprintf("missing section: %s", s))
		}
	}
	return result(ValidatorSectionCompleteness, float64(present)/float64(len(sections)), issues)
}

// actionVerbs mark a guideline bullet as actionable.
var actionVerbs = []string{
	"use", "avoid", "prefer", "keep", "write", "start", "state", "show",
	"quantify", "lead", "cut", "replace", "match", "tailor", "highlight",
	"include", "omit", "limit", "open", "close", "never", "always",
	"should", "must", "don't", "do not",
}

// validateActionability scores the fraction of guideline bullets that
// tell the writer to do something, rather than describe something.
func validateActionability(candidate string) ValidationResult {
	var bullets []string
	for _, line := range strings.Split(candidate, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			bullets = append(bullets, strings.ToLower(trimmed[2:]))
		}
	}
	if len(bullets) == 0 {
		return result(ValidatorActionability, 0, []string{"no guideline bullets found"})
	}
	actionable := 0
	var issues []string
	for _, b := range bullets {
		found := false
		for _, v := range actionVerbs {
			if strings.HasPrefix(b, v+" ") || strings.Contains(b, " "+v+" ") {
				found = true
				break
			}
		}
		if found {
			actionable++
		} else {
			issues = append(issues, fmt.Sprintf("not actionable: %s", truncate(b, 60)))
		}
	}
	return result(ValidatorActionability, float64(actionable)/float64(len(bullets)), issues)
}

// keywords extracts lowercase terms longer than three characters.
func keywords(s string) []string {
	var kws []string
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(w) > 3 {
			kws = append(kws, w)
		}
	}
	return kws
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

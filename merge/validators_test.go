package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario: validator scores [0.9, 0.6, 0.8, 0.7] with weights
// [0.30, 0.25, 0.25, 0.20] combine to 0.755, which triggers refinement
// under a 0.85 threshold.
func TestConfidenceWeighting(t *testing.T) {
	results := []ValidationResult{
		{Name: ValidatorPrincipleCoverage, Score: 0.9, Passed: true},
		{Name: ValidatorExampleUtilization, Score: 0.6},
		{Name: ValidatorSectionCompleteness, Score: 0.8, Passed: true},
		{Name: ValidatorActionability, Score: 0.7, Passed: true},
	}

	confidence := Confidence(results)
	assert.InDelta(t, 0.755, confidence, 1e-9)
	assert.Less(t, confidence, 0.85, "refinement should trigger at a 0.85 threshold")
}

func TestFailingIssuesCollectsOnlyFailures(t *testing.T) {
	results := []ValidationResult{
		{Name: ValidatorPrincipleCoverage, Score: 0.9, Passed: true, Issues: []string{"ignored"}},
		{Name: ValidatorExampleUtilization, Score: 0.5, Passed: false, Issues: []string{"example 1 unused"}},
		{Name: ValidatorActionability, Score: 0.4, Passed: false, Issues: []string{"no guideline bullets found"}},
	}

	issues := FailingIssues(results)
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], ValidatorExampleUtilization)
	assert.Contains(t, issues[1], ValidatorActionability)
}

func TestPrincipleCoverage(t *testing.T) {
	in := Input{Principles: []string{
		"Quantify achievements with concrete numbers",
		"Mirror vocabulary from the target description",
	}}

	full := "Always quantify achievements using concrete numbers, and mirror the vocabulary of the target description."
	r := validatePrincipleCoverage(full, in.Principles)
	assert.Equal(t, 1.0, r.Score)
	assert.True(t, r.Passed)
	assert.Empty(t, r.Issues)

	partial := "Always quantify achievements using concrete numbers."
	r = validatePrincipleCoverage(partial, in.Principles)
	assert.Equal(t, 0.5, r.Score)
	assert.False(t, r.Passed)
	require.Len(t, r.Issues, 1)
	assert.Contains(t, r.Issues[0], "Mirror vocabulary")
}

func TestPrincipleCoverageEmptyInput(t *testing.T) {
	r := validatePrincipleCoverage("anything", nil)
	assert.Equal(t, 1.0, r.Score)
	assert.True(t, r.Passed)
}

func TestSectionCompleteness(t *testing.T) {
	candidate := "# Guidelines\n\n## Structure\ntext\n\n## Tone\ntext\n"
	r := validateSectionCompleteness(candidate, []string{"Structure", "Tone", "Examples"})
	assert.InDelta(t, 2.0/3.0, r.Score, 1e-9)
	assert.False(t, r.Passed)
	require.Len(t, r.Issues, 1)
	assert.Contains(t, r.Issues[0], "Examples")
}

func TestActionability(t *testing.T) {
	actionable := "- Use concrete numbers\n- Avoid filler phrases\n- Keep bullets short\n"
	r := validateActionability(actionable)
	assert.Equal(t, 1.0, r.Score)
	assert.True(t, r.Passed)

	descriptive := "- The document has several sections\n- There is an introduction\n"
	r = validateActionability(descriptive)
	assert.Equal(t, 0.0, r.Score)
	assert.False(t, r.Passed)

	noBullets := "Just prose, no bullets at all."
	r = validateActionability(noBullets)
	assert.Equal(t, 0.0, r.Score)
	require.Len(t, r.Issues, 1)
	assert.Contains(t, r.Issues[0], "no guideline bullets")
}

func TestExampleUtilization(t *testing.T) {
	examples := []string{"Led migration of billing platform reducing costs thirty percent"}

	uses := "Good guidelines reference work like leading the migration of a billing platform and reducing costs."
	r := validateExampleUtilization(uses, examples)
	assert.Equal(t, 1.0, r.Score)

	ignores := "Nothing relevant here."
	r = validateExampleUtilization(ignores, examples)
	assert.Equal(t, 0.0, r.Score)
	require.Len(t, r.Issues, 1)
}

package decide

import (
	"encoding/json"

	"github.com/teranos/refinery/errors"
)

// Evaluation is the structured result of a quality-evaluation call.
// Scores are always clamped into [0,1] before any decision function sees
// them; ParseEvaluation is the only way raw backend output becomes an
// Evaluation.
type Evaluation struct {
	Score             float64           `json:"score"`
	HasCriticalIssues bool              `json:"has_critical_issues"`
	HasFalseFacts     bool              `json:"has_false_facts"`
	IssueCount        int               `json:"issue_count"`
	Notes             string            `json:"notes"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// MatchResult is the structured result of matching source material against
// one target spec.
type MatchResult struct {
	SubjectID       string   `json:"subject_id"`
	MatchScore      float64  `json:"match_score"`
	RelevanceScore  float64  `json:"relevance_score"`
	MatchedKeywords []string `json:"matched_keywords"`
	MissingItems    []string `json:"missing_items"`
	Recommendation  string   `json:"recommendation"`
}

// Clamp constrains v to [0,1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ParseEvaluation decodes raw backend output into an Evaluation, filling
// defaults for missing fields and clamping the score. Unparseable payloads
// are a unit failure, not a crash.
func ParseEvaluation(raw json.RawMessage) (Evaluation, error) {
	var e Evaluation
	if err := json.Unmarshal(raw, &e); err != nil {
		return Evaluation{}, errors.Wrap(err, "parse evaluation")
	}
	e.Score = Clamp(e.Score)
	if e.IssueCount < 0 {
		e.IssueCount = 0
	}
	return e, nil
}

// ParseMatchResult decodes raw backend output into a MatchResult, clamping
// both scores into [0,1].
func ParseMatchResult(raw json.RawMessage) (MatchResult, error) {
	var m MatchResult
	if err := json.Unmarshal(raw, &m); err != nil {
		return MatchResult{}, errors.Wrap(err, "parse match result")
	}
	m.MatchScore = Clamp(m.MatchScore)
	m.RelevanceScore = Clamp(m.RelevanceScore)
	return m, nil
}

// Package decide holds the pure decision functions consulted by every
// refinement loop. Nothing here carries state or performs I/O: each
// function computes a predicate or selection from its arguments and logs
// the inputs and outcome so a run's branching is auditable after the fact.
package decide

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/teranos/refinery/logger"
)

// Policy bundles the decision functions with a logger. Construct one per
// run so decisions land in the run's log stream.
type Policy struct {
	logger *zap.SugaredLogger
}

// NewPolicy creates a Policy. logger may be nil for silent operation.
func NewPolicy(log *zap.SugaredLogger) *Policy {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Policy{logger: log}
}

// IsScoreGoodEnough reports score >= threshold.
func (p *Policy) IsScoreGoodEnough(score, threshold float64) bool {
	ok := score >= threshold
	p.logger.Debugw("Decision: score good enough",
		logger.FieldScore, score,
		logger.FieldThreshold, threshold,
		logger.FieldResult, ok,
	)
	return ok
}

// DidScoreDecrease reports current < previous.
func (p *Policy) DidScoreDecrease(current, previous float64) bool {
	decreased := current < previous
	p.logger.Debugw("Decision: score decreased",
		"current", current,
		"previous", previous,
		logger.FieldResult, decreased,
	)
	return decreased
}

// HasCriticalIssues reports whether the evaluation flagged critical issues.
func (p *Policy) HasCriticalIssues(e Evaluation) bool {
	p.logger.Debugw("Decision: critical issues",
		"issue_count", e.IssueCount,
		logger.FieldResult, e.HasCriticalIssues,
	)
	return e.HasCriticalIssues
}

// HasFalseFacts reports whether the evaluation flagged factual inaccuracies.
func (p *Policy) HasFalseFacts(e Evaluation) bool {
	p.logger.Debugw("Decision: false facts",
		logger.FieldResult, e.HasFalseFacts,
	)
	return e.HasFalseFacts
}

// ShouldRank reports whether a candidate set needs ranking at all. A
// singleton set is selected automatically without a ranking call.
func (p *Policy) ShouldRank(count int) bool {
	rank := count > 1
	p.logger.Debugw("Decision: should rank",
		"candidates", count,
		logger.FieldResult, rank,
	)
	return rank
}

// SelectTopN stable-sorts matches by MatchScore descending and returns the
// first n (or all if fewer exist). Ties preserve original relative order.
// The input slice is not modified.
func (p *Policy) SelectTopN(matches []MatchResult, n int) []MatchResult {
	sorted := make([]MatchResult, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MatchScore > sorted[j].MatchScore
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	if n < 0 {
		n = 0
	}
	selected := sorted[:n]

	ids := make([]string, len(selected))
	for i, m := range selected {
		ids[i] = m.SubjectID
	}
	p.logger.Debugw("Decision: select top n",
		"candidates", len(matches),
		"n", n,
		"selected", ids,
	)
	return selected
}

// EvaluateChangeImpact accepts a proposed edit if it is low-risk and
// non-harmful, or independently if it is a clear quality win:
//
//	(impact < 0.3 AND qualityDelta >= 0) OR qualityDelta > 0.1
func (p *Policy) EvaluateChangeImpact(impactScore, qualityDelta float64) bool {
	accept := (impactScore < 0.3 && qualityDelta >= 0) || qualityDelta > 0.1
	p.logger.Debugw("Decision: change impact",
		"impact_score", impactScore,
		"quality_delta", qualityDelta,
		logger.FieldResult, accept,
	)
	return accept
}

// LengthScore scores how close actual is to target:
// max(0, 1 − |actual−target|/target). target <= 0 yields 0.
func (p *Policy) LengthScore(actual, target int) float64 {
	if target <= 0 {
		return 0
	}
	score := 1 - math.Abs(float64(actual-target))/float64(target)
	if score < 0 {
		score = 0
	}
	p.logger.Debugw("Decision: length score",
		"actual", actual,
		"target", target,
		logger.FieldScore, score,
	)
	return score
}

// ShouldContinue reports whether a loop should run another iteration, with
// a human-readable reason for the audit log.
func (p *Policy) ShouldContinue(iteration, maxIterations int, score, threshold float64) (bool, string) {
	var cont bool
	var reason string
	switch {
	case score >= threshold:
		cont, reason = false, "quality threshold met"
	case iteration >= maxIterations:
		cont, reason = false, "iteration ceiling reached"
	default:
		cont, reason = true, "below threshold with iterations remaining"
	}
	p.logger.Debugw("Decision: should continue",
		logger.FieldIteration, iteration,
		"max_iterations", maxIterations,
		logger.FieldScore, score,
		logger.FieldThreshold, threshold,
		logger.FieldResult, cont,
		"reason", reason,
	)
	return cont, reason
}

// IsLengthAcceptable reports whether actual is within tolerance of target,
// tolerance given as a fraction (0.1 = ±10%).
func (p *Policy) IsLengthAcceptable(actual, target int, tolerance float64) bool {
	if target <= 0 {
		return false
	}
	deviation := math.Abs(float64(actual-target)) / float64(target)
	ok := deviation <= tolerance
	p.logger.Debugw("Decision: length acceptable",
		"actual", actual,
		"target", target,
		"tolerance", tolerance,
		logger.FieldResult, ok,
	)
	return ok
}

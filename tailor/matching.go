package tailor

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/refinery/decide"
	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/gen"
	"github.com/teranos/refinery/logger"
	"github.com/teranos/refinery/pool"
	"github.com/teranos/refinery/run"
	"github.com/teranos/refinery/unit"
)

// MatchOutput is what the matching stage publishes for downstream stages.
type MatchOutput struct {
	// Selected holds the top-ranked matches, best first.
	Selected []decide.MatchResult `json:"selected"`
	// All holds every successful match result in target order.
	All []decide.MatchResult `json:"all"`
	// Failed lists target IDs whose match unit failed.
	Failed []string `json:"failed,omitempty"`
}

// MatchingStage scores the source material against every target spec in
// parallel and selects the top N. A singleton target set skips ranking
// entirely and is selected with a degenerate rationale.
type MatchingStage struct {
	Source  string
	Targets []TargetSpec
	TopN    int

	Client gen.Client
	Pool   *pool.Pool
	Policy *decide.Policy
	Sink   unit.ArtifactSink
	Logger *zap.SugaredLogger
}

// Stage implements orchestra.Stage.
func (s *MatchingStage) Stage() run.Stage {
	return run.StageMatching
}

// Execute implements orchestra.Stage.
func (s *MatchingStage) Execute(ctx context.Context, rc *run.Context) (any, error) {
	if len(s.Targets) == 0 {
		return nil, errors.Wrap(errors.ErrValidationFailed, "no target specs to match")
	}

	if !s.Policy.ShouldRank(len(s.Targets)) {
		// Singleton: no ranking call, automatic selection.
		only := decide.MatchResult{
			SubjectID:      s.Targets[0].ID,
			MatchScore:     1.0,
			RelevanceScore: 1.0,
			Recommendation: "sole candidate, selected automatically",
		}
		s.Logger.Infow("Single target, ranking skipped",
			"target", only.SubjectID,
		)
		return &MatchOutput{Selected: []decide.MatchResult{only}, All: []decide.MatchResult{only}}, nil
	}

	matcher := NewMatchUnit(s.Client, s.Source)
	results, err := pool.ExecuteFactory(ctx, s.Pool,
		func(TargetSpec) pool.Task[TargetSpec, decide.MatchResult] {
			return unit.NewRunner(matcher, string(run.StageMatching), s.Sink, s.Logger)
		}, s.Targets)
	if err != nil {
		return nil, err
	}

	out := &MatchOutput{}
	for i, r := range results {
		if r.Err != nil {
			s.Logger.Warnw("Target match failed",
				"target", s.Targets[i].ID,
				logger.FieldError, r.Err,
			)
			out.Failed = append(out.Failed, s.Targets[i].ID)
			continue
		}
		m := r.Output
		if m.SubjectID == "" {
			m.SubjectID = s.Targets[i].ID
		}
		out.All = append(out.All, m)
	}
	if len(out.All) == 0 {
		return nil, errors.Newf("all %d target matches failed", len(s.Targets))
	}

	out.Selected = s.Policy.SelectTopN(out.All, s.TopN)
	return out, nil
}

// SelectedTargets resolves the selected match results back to their specs,
// preserving rank order.
func SelectedTargets(out *MatchOutput, targets []TargetSpec) []TargetSpec {
	byID := make(map[string]TargetSpec, len(targets))
	for _, t := range targets {
		byID[t.ID] = t
	}
	selected := make([]TargetSpec, 0, len(out.Selected))
	for _, m := range out.Selected {
		if t, ok := byID[m.SubjectID]; ok {
			selected = append(selected, t)
		}
	}
	return selected
}

package tailor

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/refinery/decide"
	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/gen"
	"github.com/teranos/refinery/logger"
	"github.com/teranos/refinery/orchestra"
	"github.com/teranos/refinery/pool"
	"github.com/teranos/refinery/refine"
	"github.com/teranos/refinery/run"
	"github.com/teranos/refinery/store"
	"github.com/teranos/refinery/unit"
)

// DocTypeResume and DocTypeCoverLetter are the two supported document
// types. Cover letters additionally pass through the machine-style
// detection loop before refinement.
const (
	DocTypeResume      = "resume"
	DocTypeCoverLetter = "cover_letter"
)

// WritingReport summarizes one document's trip through the writing stage.
type WritingReport struct {
	TargetID        string        `json:"target_id"`
	DocType         string        `json:"doc_type"`
	Status          refine.Status `json:"status"`
	Iterations      int           `json:"iterations"`
	FinalScore      float64       `json:"final_score"`
	BestScore       float64       `json:"best_score"`
	FactCheckStatus string        `json:"fact_check_status"`
	HumanizePasses  int           `json:"humanize_passes,omitempty"`
}

// WritingOutput is what the writing stage publishes.
type WritingOutput struct {
	Documents []Document      `json:"documents"`
	Reports   []WritingReport `json:"reports"`
}

// WritingStage drafts one document per selected target, verifies its
// claims, optionally humanizes it, and refines it to the quality
// threshold. Drafting fans out through the pool; the loops that follow run
// sequentially because they mutate the version store.
type WritingStage struct {
	Targets    []TargetSpec
	Source     string
	Guidelines string
	DocType    string

	MaxIterations      int
	QualityThreshold   float64
	DetectionThreshold float64

	Client   gen.Client
	Pool     *pool.Pool
	Policy   *decide.Policy
	Versions *store.VersionStore
	Sink     unit.ArtifactSink
	Logger   *zap.SugaredLogger
}

// Stage implements orchestra.Stage.
func (s *WritingStage) Stage() run.Stage {
	return run.StageWritingPolishing
}

// Execute implements orchestra.Stage.
func (s *WritingStage) Execute(ctx context.Context, rc *run.Context) (any, error) {
	matchOut, ok := rc.ContextData[orchestra.OutputKey(run.StageMatching)].(*MatchOutput)
	if !ok {
		return nil, errors.New("matching output missing from run context")
	}
	selected := SelectedTargets(matchOut, s.Targets)
	if len(selected) == 0 {
		return nil, errors.New("no selected targets to write for")
	}

	// Fan the first drafts out through the pool.
	drafter := NewDraftUnit(s.Client)
	inputs := make([]DraftInput, len(selected))
	for i, t := range selected {
		inputs[i] = DraftInput{Target: t, Source: s.Source, Guidelines: s.Guidelines, DocType: s.DocType}
	}
	results, err := pool.ExecuteFactory(ctx, s.Pool,
		func(DraftInput) pool.Task[DraftInput, string] {
			return unit.NewRunner(drafter, string(run.StageWritingPolishing), s.Sink, s.Logger)
		}, inputs)
	if err != nil {
		return nil, err
	}

	out := &WritingOutput{}
	for i, r := range results {
		target := selected[i]
		if r.Err != nil {
			return nil, errors.Wrapf(r.Err, "draft for %s", target.ID)
		}

		doc, report, err := s.refineDraft(ctx, target, r.Output)
		if err != nil {
			return nil, errors.Wrapf(err, "refine draft for %s", target.ID)
		}
		out.Documents = append(out.Documents, *doc)
		out.Reports = append(out.Reports, *report)
	}
	return out, nil
}

// refineDraft takes one first draft through claim verification, optional
// humanizing, and the scored refinement loop.
func (s *WritingStage) refineDraft(ctx context.Context, target TargetSpec, draft string) (*Document, *WritingReport, error) {
	docID := target.ID + "/" + s.DocType
	report := &WritingReport{TargetID: target.ID, DocType: s.DocType}

	checked, factStatus, err := s.verifyClaims(ctx, docID, draft)
	if err != nil {
		return nil, nil, err
	}
	report.FactCheckStatus = string(factStatus)

	candidate := checked
	if s.DocType == DocTypeCoverLetter {
		humanized, passes, err := s.humanize(ctx, docID, candidate)
		if err != nil {
			return nil, nil, err
		}
		candidate = humanized
		report.HumanizePasses = passes
	}

	evaluator := unit.NewRunner(NewEvaluateUnit(s.Client, target), string(run.StageWritingPolishing), nil, s.Logger)
	fixer := unit.NewRunner(NewFixUnit(s.Client), string(run.StageWritingPolishing), nil, s.Logger)
	improver := unit.NewRunner(NewImproveUnit(s.Client), string(run.StageWritingPolishing), nil, s.Logger)

	loop := &refine.Loop{
		DocumentID:    docID,
		MaxIterations: s.MaxIterations,
		Threshold:     s.QualityThreshold,
		Evaluate: func(ctx context.Context, candidate string) (decide.Evaluation, error) {
			return evaluator.Run(ctx, candidate)
		},
		Fix: func(ctx context.Context, candidate string, e decide.Evaluation) (string, error) {
			return fixer.Run(ctx, revision{Candidate: candidate, Notes: e.Notes})
		},
		Improve: func(ctx context.Context, candidate string, e decide.Evaluation) (string, error) {
			return improver.Run(ctx, revision{Candidate: candidate, Notes: e.Notes})
		},
		Policy:   s.Policy,
		Versions: s.Versions,
		Logger:   s.Logger,
	}

	res, err := loop.Run(ctx, candidate)
	if err != nil {
		return nil, nil, err
	}
	report.Status = res.Status
	report.Iterations = res.Iterations
	report.FinalScore = res.FinalScore
	report.BestScore = res.BestScore

	return &Document{TargetID: target.ID, DocType: s.DocType, Content: res.Candidate}, report, nil
}

// verifyClaims runs the fact-check predicate loop against the source
// material.
func (s *WritingStage) verifyClaims(ctx context.Context, docID, draft string) (string, refine.PredicateStatus, error) {
	checker := unit.NewRunner(NewFactCheckUnit(s.Client, s.Source), "fact_checking", nil, s.Logger)
	reviser := unit.NewRunner(NewCorrectClaimsUnit(s.Client, s.Source), "fact_checking", nil, s.Logger)

	loop := &refine.PredicateLoop{
		DocumentID:    docID,
		MaxIterations: s.MaxIterations,
		Check: func(ctx context.Context, candidate string) ([]string, error) {
			fc, err := checker.Run(ctx, candidate)
			if err != nil {
				return nil, err
			}
			if !s.Policy.HasFalseFacts(decide.Evaluation{HasFalseFacts: fc.HasFalseFacts}) {
				return nil, nil
			}
			return fc.FalseFacts, nil
		},
		Revise: func(ctx context.Context, candidate string, issues []string) (string, error) {
			return reviser.Run(ctx, revision{Candidate: candidate, Issues: issues})
		},
		Versions: s.Versions,
		Logger:   s.Logger,
	}

	res, err := loop.Run(ctx, draft)
	if err != nil {
		return "", "", err
	}
	return res.Candidate, res.Status, nil
}

// humanize loops detect → rewrite until the detector's human-likeness
// confidence clears the detection threshold, bounded by the iteration
// ceiling. Failing to clear the threshold is not fatal: the best attempt
// proceeds, flagged in the report.
func (s *WritingStage) humanize(ctx context.Context, docID, draft string) (string, int, error) {
	detector := unit.NewRunner(NewDetectUnit(s.Client), "detection", nil, s.Logger)
	humanizer := unit.NewRunner(NewHumanizeUnit(s.Client), "detection", nil, s.Logger)

	candidate := draft
	passes := 0
	for i := 0; i < s.MaxIterations; i++ {
		det, err := detector.Run(ctx, candidate)
		if err != nil {
			return "", 0, err
		}
		if s.Policy.IsScoreGoodEnough(det.HumanLikeness, s.DetectionThreshold) {
			return candidate, passes, nil
		}
		s.Logger.Infow("Machine-style tells detected, humanizing",
			logger.FieldDocument, docID,
			logger.FieldScore, det.HumanLikeness,
			logger.FieldThreshold, s.DetectionThreshold,
			"tells", len(det.Tells),
		)
		rewritten, err := humanizer.Run(ctx, revision{Candidate: candidate, Issues: det.Tells})
		if err != nil {
			return "", 0, err
		}
		candidate = rewritten
		passes++
		if _, err := s.Versions.Store(ctx, docID, candidate, nil, "humanize pass"); err != nil {
			return "", 0, err
		}
	}
	s.Logger.Warnw("Detection threshold not cleared within iteration ceiling",
		logger.FieldDocument, docID,
		"passes", passes,
	)
	return candidate, passes, nil
}

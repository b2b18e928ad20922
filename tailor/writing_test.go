package tailor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/refinery/decide"
	"github.com/teranos/refinery/gen"
	"github.com/teranos/refinery/orchestra"
	"github.com/teranos/refinery/refine"
	"github.com/teranos/refinery/run"
)

// writingBackend scripts the writing stage's delegated calls.
type writingBackend struct {
	evalScores []float64
	evalCalls  int

	factIssuesOnce bool
	factCalls      int

	humanLikeness []float64
	detectCalls   int
}

func (b *writingBackend) client() gen.Client {
	return gen.Func(func(ctx context.Context, req gen.Request) (*gen.Response, error) {
		switch req.Task {
		case "draft_document":
			return gen.Text("first draft"), nil
		case "verify_claims":
			b.factCalls++
			if b.factIssuesOnce && b.factCalls == 1 {
				return gen.Object(FactCheck{HasFalseFacts: true, FalseFacts: []string{"invented degree"}})
			}
			return gen.Object(FactCheck{})
		case "correct_claims":
			var candidate string
			_ = decodePayloadString(req, "candidate", &candidate)
			return gen.Text(candidate + "+factfix"), nil
		case "evaluate_quality":
			score := b.evalScores[b.evalCalls]
			b.evalCalls++
			return gen.Object(decide.Evaluation{Score: score})
		case "polish_document":
			var candidate string
			_ = decodePayloadString(req, "candidate", &candidate)
			return gen.Text(candidate + "+polish"), nil
		case "repair_critical_issues":
			var candidate string
			_ = decodePayloadString(req, "candidate", &candidate)
			return gen.Text(candidate + "+repair"), nil
		case "detect_machine_style":
			score := b.humanLikeness[b.detectCalls]
			b.detectCalls++
			return gen.Object(Detection{HumanLikeness: score, Tells: []string{"delve"}})
		case "humanize_draft":
			var candidate string
			_ = decodePayloadString(req, "candidate", &candidate)
			return gen.Text(candidate + "+human"), nil
		}
		return nil, assertErr
	})
}

func decodePayloadString(req gen.Request, key string, out *string) error {
	if v, ok := req.Payload[key].(string); ok {
		*out = v
	}
	return nil
}

func newWritingStage(t *testing.T, b *writingBackend, docType string) *WritingStage {
	t.Helper()
	return &WritingStage{
		Targets:            []TargetSpec{{ID: "t1", Content: "target spec"}},
		Source:             "source material",
		DocType:            docType,
		MaxIterations:      4,
		QualityThreshold:   0.8,
		DetectionThreshold: 0.99,
		Client:             b.client(),
		Pool:               newTestPool(t, 0),
		Policy:             decide.NewPolicy(nil),
		Versions:           newTestVersions(t),
		Logger:             nopLogger(),
	}
}

func matchContext() *run.Context {
	return &run.Context{ContextData: map[string]any{
		orchestra.OutputKey(run.StageMatching): &MatchOutput{
			Selected: []decide.MatchResult{{SubjectID: "t1", MatchScore: 0.9}},
		},
	}}
}

func TestWritingStageDraftsAndConverges(t *testing.T) {
	b := &writingBackend{evalScores: []float64{0.5, 0.9}}
	stage := newWritingStage(t, b, DocTypeResume)

	out, err := stage.Execute(context.Background(), matchContext())
	require.NoError(t, err)

	wo := out.(*WritingOutput)
	require.Len(t, wo.Documents, 1)
	require.Len(t, wo.Reports, 1)

	report := wo.Reports[0]
	assert.Equal(t, refine.StatusConverged, report.Status)
	assert.Equal(t, 2, report.Iterations)
	assert.Equal(t, 0.9, report.FinalScore)
	assert.Equal(t, string(refine.PredicateSuccess), report.FactCheckStatus)
	assert.Equal(t, 0, report.HumanizePasses, "resumes skip the detection loop")

	assert.Equal(t, "first draft+polish", wo.Documents[0].Content)
}

func TestWritingStageCorrectsFalseClaims(t *testing.T) {
	b := &writingBackend{
		evalScores:     []float64{0.85},
		factIssuesOnce: true,
	}
	stage := newWritingStage(t, b, DocTypeResume)

	out, err := stage.Execute(context.Background(), matchContext())
	require.NoError(t, err)

	wo := out.(*WritingOutput)
	assert.Equal(t, "first draft+factfix", wo.Documents[0].Content)
	assert.Equal(t, 2, b.factCalls, "flagged draft gets rechecked after correction")
}

func TestWritingStageHumanizesCoverLetters(t *testing.T) {
	b := &writingBackend{
		evalScores:    []float64{0.9},
		humanLikeness: []float64{0.5, 0.995},
	}
	stage := newWritingStage(t, b, DocTypeCoverLetter)

	out, err := stage.Execute(context.Background(), matchContext())
	require.NoError(t, err)

	wo := out.(*WritingOutput)
	report := wo.Reports[0]
	assert.Equal(t, 1, report.HumanizePasses)
	assert.Equal(t, 2, b.detectCalls, "loop exits the first time the threshold clears")
	assert.Equal(t, "first draft+human", wo.Documents[0].Content)
}

func TestWritingStageRequiresMatchingOutput(t *testing.T) {
	b := &writingBackend{evalScores: []float64{0.9}}
	stage := newWritingStage(t, b, DocTypeResume)

	_, err := stage.Execute(context.Background(), &run.Context{ContextData: map[string]any{}})
	require.Error(t, err)
}

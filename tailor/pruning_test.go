package tailor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/refinery/decide"
	"github.com/teranos/refinery/gen"
	"github.com/teranos/refinery/orchestra"
	"github.com/teranos/refinery/run"
)

func TestRankOptionsDiscardsNonShrinkingAndRisky(t *testing.T) {
	policy := decide.NewPolicy(nil)
	options := []ChangeOption{
		{Description: "grows", Search: "ab", Replace: "abcd", QualityDelta: 0.5, ImpactScore: 0.1},
		{Description: "risky", Search: "abcdefgh", Replace: "", QualityDelta: 0.05, ImpactScore: 0.8},
		{Description: "strong", Search: "abcdefgh", Replace: "ab", QualityDelta: 0.3, ImpactScore: 0.1},
		{Description: "weak", Search: "abcdefghij", Replace: "", QualityDelta: 0.1, ImpactScore: 0.1},
	}

	ranked := RankOptions(policy, options)
	require.Len(t, ranked, 2)
	assert.Equal(t, "strong", ranked[0].Description, "highest quality-per-char first")
	assert.Equal(t, "weak", ranked[1].Description)
}

func TestRankOptionsStableForEqualEffectiveness(t *testing.T) {
	policy := decide.NewPolicy(nil)
	options := []ChangeOption{
		{Description: "first", Search: "aaaa", Replace: "", QualityDelta: 0.2, ImpactScore: 0.1},
		{Description: "second", Search: "bbbb", Replace: "", QualityDelta: 0.2, ImpactScore: 0.1},
	}
	ranked := RankOptions(policy, options)
	require.Len(t, ranked, 2)
	assert.Equal(t, "first", ranked[0].Description)
}

func TestApplyOption(t *testing.T) {
	content := "keep this, trim that, keep this"

	out, err := ApplyOption(content, ChangeOption{Search: "trim that, ", Replace: ""})
	require.NoError(t, err)
	assert.Equal(t, "keep this, keep this", out)

	// Only the first occurrence is touched.
	out, err = ApplyOption(content, ChangeOption{Search: "keep this", Replace: "kept"})
	require.NoError(t, err)
	assert.Equal(t, "kept, trim that, keep this", out)

	_, err = ApplyOption(content, ChangeOption{Search: "not present", Replace: ""})
	require.Error(t, err)

	_, err = ApplyOption(content, ChangeOption{Search: "", Replace: "x"})
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	rendered := Render("line one  \r\nline two\t\n\n\n")
	assert.Equal(t, "line one\nline two\n", rendered)
}

func TestPruningStageShrinksUntilAccepted(t *testing.T) {
	policy := decide.NewPolicy(nil)
	chunk := strings.Repeat("word ", 4) // 20 chars per removal

	client := gen.Func(func(ctx context.Context, req gen.Request) (*gen.Response, error) {
		candidate := req.Payload["candidate"].(string)
		switch req.Task {
		case "propose_rewrite_options":
			return gen.Object([]ChangeOption{})
		case "propose_removal_options":
			if !strings.Contains(candidate, chunk) {
				return gen.Object([]ChangeOption{})
			}
			return gen.Object([]ChangeOption{{
				Description:  "drop filler",
				Search:       chunk,
				Replace:      "",
				QualityDelta: 0.05,
				ImpactScore:  0.1,
			}})
		}
		return nil, assertErr
	})

	stage := &PruningStage{
		Oracle:   &AutoOracle{Target: 50, Tolerance: 0.5, Policy: policy},
		Client:   client,
		Pool:     newTestPool(t, 2),
		Policy:   policy,
		Versions: newTestVersions(t),
		Logger:   nopLogger(),
	}

	rc := &run.Context{ContextData: map[string]any{
		orchestra.OutputKey(run.StageWritingPolishing): &WritingOutput{
			Documents: []Document{{
				TargetID: "t1",
				DocType:  DocTypeResume,
				Content:  strings.Repeat("word ", 40), // 200 chars
			}},
		},
	}}

	out, err := stage.Execute(context.Background(), rc)
	require.NoError(t, err)

	po := out.(*PruningOutput)
	require.Len(t, po.Documents, 1)
	final := po.Documents[0].Content
	assert.LessOrEqual(t, len(Render(final)), 75, "must shrink into tolerance")
	assert.Greater(t, po.Passes["t1"], 0)
}

func TestPruningStageFailsWithoutViableOptions(t *testing.T) {
	policy := decide.NewPolicy(nil)
	client := gen.Func(func(ctx context.Context, req gen.Request) (*gen.Response, error) {
		return gen.Object([]ChangeOption{})
	})

	stage := &PruningStage{
		Oracle:   &AutoOracle{Target: 10, Tolerance: 0.1, Policy: policy},
		Client:   client,
		Pool:     newTestPool(t, 0),
		Policy:   policy,
		Versions: newTestVersions(t),
		Logger:   nopLogger(),
	}

	rc := &run.Context{ContextData: map[string]any{
		orchestra.OutputKey(run.StageWritingPolishing): &WritingOutput{
			Documents: []Document{{TargetID: "t1", DocType: DocTypeResume, Content: strings.Repeat("x", 200)}},
		},
	}}

	_, err := stage.Execute(context.Background(), rc)
	require.Error(t, err)
}

func TestPruningStageRespectsCancellation(t *testing.T) {
	policy := decide.NewPolicy(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stage := &PruningStage{
		Oracle: &AutoOracle{Target: 10, Tolerance: 0.1, Policy: policy},
		Client: gen.Func(func(ctx context.Context, req gen.Request) (*gen.Response, error) {
			return gen.Object([]ChangeOption{})
		}),
		Pool:     newTestPool(t, 0),
		Policy:   policy,
		Versions: newTestVersions(t),
		Logger:   nopLogger(),
	}

	rc := &run.Context{ContextData: map[string]any{
		orchestra.OutputKey(run.StageWritingPolishing): &WritingOutput{
			Documents: []Document{{TargetID: "t1", DocType: DocTypeResume, Content: "far too long either way"}},
		},
	}}

	_, err := stage.Execute(ctx, rc)
	require.Error(t, err)
}

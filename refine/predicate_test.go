package refine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicateLoopCleanOnFirstCheck(t *testing.T) {
	revisions := 0
	loop := &PredicateLoop{
		DocumentID:    "doc",
		MaxIterations: 5,
		Check: func(ctx context.Context, c string) ([]string, error) {
			return nil, nil
		},
		Revise: func(ctx context.Context, c string, issues []string) (string, error) {
			revisions++
			return c, nil
		},
		Versions: newTestVersions(t),
	}

	res, err := loop.Run(context.Background(), "draft")
	require.NoError(t, err)
	assert.Equal(t, PredicateSuccess, res.Status)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, 0, revisions)
	assert.Equal(t, "draft", res.Candidate)
}

func TestPredicateLoopRevisesUntilClean(t *testing.T) {
	checks := 0
	loop := &PredicateLoop{
		DocumentID:    "doc",
		MaxIterations: 5,
		Check: func(ctx context.Context, c string) ([]string, error) {
			checks++
			if checks <= 2 {
				return []string{"claim overstated"}, nil
			}
			return nil, nil
		},
		Revise: func(ctx context.Context, c string, issues []string) (string, error) {
			require.Equal(t, []string{"claim overstated"}, issues)
			return c + "+corrected", nil
		},
		Versions: newTestVersions(t),
	}

	res, err := loop.Run(context.Background(), "draft")
	require.NoError(t, err)
	assert.Equal(t, PredicateSuccess, res.Status)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, "draft+corrected+corrected", res.Candidate)
	assert.Empty(t, res.Issues)
}

// The final revision gets one last check so the terminal status reflects
// the candidate being returned.
func TestPredicateLoopFinalCheckAfterLastRevision(t *testing.T) {
	checks := 0
	loop := &PredicateLoop{
		DocumentID:    "doc",
		MaxIterations: 2,
		Check: func(ctx context.Context, c string) ([]string, error) {
			checks++
			if checks <= 2 {
				return []string{"still wrong"}, nil
			}
			return nil, nil // clean only on the post-loop check
		},
		Revise: func(ctx context.Context, c string, issues []string) (string, error) {
			return c + "+r", nil
		},
		Versions: newTestVersions(t),
	}

	res, err := loop.Run(context.Background(), "draft")
	require.NoError(t, err)
	assert.Equal(t, PredicateSuccess, res.Status)
	assert.Equal(t, 3, checks)
}

func TestPredicateLoopExhausted(t *testing.T) {
	loop := &PredicateLoop{
		DocumentID:    "doc",
		MaxIterations: 3,
		Check: func(ctx context.Context, c string) ([]string, error) {
			return []string{"incurable claim"}, nil
		},
		Revise: func(ctx context.Context, c string, issues []string) (string, error) {
			return c + "+r", nil
		},
		Versions: newTestVersions(t),
	}

	res, err := loop.Run(context.Background(), "draft")
	require.NoError(t, err)
	assert.Equal(t, PredicateMaxIterationsExceeded, res.Status)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, []string{"incurable claim"}, res.Issues)
	assert.Equal(t, "draft+r+r+r", res.Candidate)
}

package refine

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/logger"
	"github.com/teranos/refinery/store"
)

// PredicateStatus is the terminal status of a predicate loop.
type PredicateStatus string

const (
	// PredicateSuccess means the predicate cleared within the ceiling.
	PredicateSuccess PredicateStatus = "success"
	// PredicateMaxIterationsExceeded means flagged claims remained after
	// every allowed revision.
	PredicateMaxIterationsExceeded PredicateStatus = "max_iterations_exceeded"
)

// PredicateResult is the outcome of a predicate loop run.
type PredicateResult struct {
	Candidate  string
	Status     PredicateStatus
	Iterations int
	// Issues holds the flagged claims from the final check, empty on
	// success.
	Issues []string
}

// PredicateLoop is the two-state refinement variant: no scoring, just a
// boolean predicate over the candidate. Used for fact verification, where
// each iteration rewrites the candidate to correct flagged claims against
// a source of truth, bounded by MaxIterations.
type PredicateLoop struct {
	// DocumentID keys version storage for this loop's candidate.
	DocumentID string
	// MaxIterations bounds the number of revision passes.
	MaxIterations int

	// Check verifies the candidate, returning the flagged issues. A clean
	// candidate returns an empty slice.
	Check func(ctx context.Context, candidate string) ([]string, error)
	// Revise rewrites the candidate to address the flagged issues.
	Revise func(ctx context.Context, candidate string, issues []string) (string, error)

	Versions *store.VersionStore
	Logger   *zap.SugaredLogger
}

// Run executes the loop. It exits early the first time the predicate is
// clean; after the last allowed revision it checks once more so the
// terminal status reflects the final candidate, not the state before the
// last rewrite.
func (l *PredicateLoop) Run(ctx context.Context, candidate string) (*PredicateResult, error) {
	if l.MaxIterations < 1 {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "max iterations %d", l.MaxIterations)
	}
	log := l.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	res := &PredicateResult{Candidate: candidate}

	for res.Iterations < l.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "verification of %s", l.DocumentID)
		}
		res.Iterations++

		issues, err := l.Check(ctx, res.Candidate)
		if err != nil {
			return nil, errors.Wrapf(err, "check %s iteration %d", l.DocumentID, res.Iterations)
		}
		log.Infow("Candidate checked",
			logger.FieldDocument, l.DocumentID,
			logger.FieldIteration, res.Iterations,
			"flagged", len(issues),
		)
		if len(issues) == 0 {
			res.Status = PredicateSuccess
			return res, nil
		}

		revised, err := l.Revise(ctx, res.Candidate, issues)
		if err != nil {
			return nil, errors.Wrapf(err, "revise %s iteration %d", l.DocumentID, res.Iterations)
		}
		res.Candidate = revised
		if _, err := l.Versions.Store(ctx, l.DocumentID, revised, nil, "claim correction"); err != nil {
			return nil, errors.Wrapf(err, "store revision of %s", l.DocumentID)
		}
	}

	// The last revision was never checked inside the loop.
	issues, err := l.Check(ctx, res.Candidate)
	if err != nil {
		return nil, errors.Wrapf(err, "final check of %s", l.DocumentID)
	}
	if len(issues) == 0 {
		res.Status = PredicateSuccess
		return res, nil
	}
	res.Status = PredicateMaxIterationsExceeded
	res.Issues = issues
	log.Warnw("Flagged claims remain after revision ceiling",
		logger.FieldDocument, l.DocumentID,
		logger.FieldIteration, res.Iterations,
		"flagged", len(issues),
	)
	return res, nil
}

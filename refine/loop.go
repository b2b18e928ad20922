// Package refine implements the iterative refinement loops at the center
// of every content stage: evaluate a candidate, branch on the evaluation
// (repair, rollback, accept, polish), and repeat until converged or the
// iteration ceiling is hit.
package refine

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/refinery/decide"
	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/logger"
	"github.com/teranos/refinery/store"
)

// Status is a loop's terminal status.
type Status string

const (
	// StatusConverged means the quality threshold was met.
	StatusConverged Status = "converged"
	// StatusRegressedAndRestored means the score dropped mid-loop and the
	// best stored version was reinstated.
	StatusRegressedAndRestored Status = "regressed_and_restored"
	// StatusMaxIterationsReached means the safety ceiling was hit without
	// convergence; the best-known candidate is returned.
	StatusMaxIterationsReached Status = "max_iterations_reached"
)

// Result is the outcome of one loop run.
type Result struct {
	Candidate   string
	Status      Status
	Iterations  int
	FinalScore  float64
	BestScore   float64
	BestVersion int
	// Scores records each iteration's evaluation score, for audit.
	Scores []float64
}

// Loop is the generic refinement algorithm. Callers supply the three
// delegated operations; the loop owns iteration state, version storage,
// and branching.
type Loop struct {
	// DocumentID keys version storage for this loop's candidate.
	DocumentID string
	// MaxIterations is the hard iteration ceiling. Must be >= 1.
	MaxIterations int
	// Threshold is the accepting score.
	Threshold float64

	// Evaluate scores a candidate.
	Evaluate func(ctx context.Context, candidate string) (decide.Evaluation, error)
	// Fix performs targeted repair of critical issues.
	Fix func(ctx context.Context, candidate string, e decide.Evaluation) (string, error)
	// Improve performs a general polish pass.
	Improve func(ctx context.Context, candidate string, e decide.Evaluation) (string, error)

	Policy   *decide.Policy
	Versions *store.VersionStore
	Logger   *zap.SugaredLogger
}

// Run executes the loop starting from candidate.
//
// Branch order within an iteration is fixed: best-tracking, critical
// repair, regression rollback, convergence, polish. Critical repair does
// not update the previous score, so an iteration spent repairing is never
// itself the baseline for regression detection.
//
// When the ceiling is hit without convergence the loop returns the
// best-known stored version rather than whatever the last polish produced,
// matching the regression branch's rollback-to-best behavior.
func (l *Loop) Run(ctx context.Context, candidate string) (*Result, error) {
	if l.MaxIterations < 1 {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "max iterations %d", l.MaxIterations)
	}
	log := l.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	res := &Result{Candidate: candidate, BestScore: -1}
	previousScore := -1.0

	for res.Iterations < l.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "refinement of %s", l.DocumentID)
		}
		res.Iterations++

		eval, err := l.Evaluate(ctx, res.Candidate)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluate %s iteration %d", l.DocumentID, res.Iterations)
		}
		res.FinalScore = eval.Score
		res.Scores = append(res.Scores, eval.Score)

		log.Infow("Iteration evaluated",
			logger.FieldDocument, l.DocumentID,
			logger.FieldIteration, res.Iterations,
			logger.FieldScore, eval.Score,
			logger.FieldThreshold, l.Threshold,
			"critical_issues", eval.HasCriticalIssues,
		)

		if eval.Score > res.BestScore {
			n, err := l.Versions.Store(ctx, l.DocumentID, res.Candidate, &eval.Score, "best so far")
			if err != nil {
				return nil, errors.Wrapf(err, "store best of %s", l.DocumentID)
			}
			res.BestScore = eval.Score
			res.BestVersion = n
		}

		if l.Policy.HasCriticalIssues(eval) {
			fixed, err := l.Fix(ctx, res.Candidate, eval)
			if err != nil {
				return nil, errors.Wrapf(err, "fix %s iteration %d", l.DocumentID, res.Iterations)
			}
			res.Candidate = fixed
			if _, err := l.Versions.Store(ctx, l.DocumentID, fixed, nil, "critical repair"); err != nil {
				return nil, errors.Wrapf(err, "store repair of %s", l.DocumentID)
			}
			continue
		}

		if res.Iterations > 1 && l.Policy.DidScoreDecrease(eval.Score, previousScore) {
			restored, err := l.Versions.Load(ctx, l.DocumentID, res.BestVersion)
			if err != nil {
				return nil, errors.Wrapf(err, "restore best of %s", l.DocumentID)
			}
			res.Candidate = restored.Content
			res.Status = StatusRegressedAndRestored
			log.Warnw("Score regressed, best version restored",
				logger.FieldDocument, l.DocumentID,
				logger.FieldIteration, res.Iterations,
				logger.FieldScore, eval.Score,
				"previous_score", previousScore,
				logger.FieldVersion, res.BestVersion,
			)
			return res, nil
		}

		if l.Policy.IsScoreGoodEnough(eval.Score, l.Threshold) {
			res.Status = StatusConverged
			log.Infow("Loop converged",
				logger.FieldDocument, l.DocumentID,
				logger.FieldIteration, res.Iterations,
				logger.FieldScore, eval.Score,
			)
			return res, nil
		}

		improved, err := l.Improve(ctx, res.Candidate, eval)
		if err != nil {
			return nil, errors.Wrapf(err, "improve %s iteration %d", l.DocumentID, res.Iterations)
		}
		res.Candidate = improved
		if _, err := l.Versions.Store(ctx, l.DocumentID, improved, nil, "polish"); err != nil {
			return nil, errors.Wrapf(err, "store polish of %s", l.DocumentID)
		}
		previousScore = eval.Score
	}

	res.Status = StatusMaxIterationsReached
	if res.BestVersion > 0 {
		best, err := l.Versions.Load(ctx, l.DocumentID, res.BestVersion)
		if err != nil {
			return nil, errors.Wrapf(err, "load best of %s", l.DocumentID)
		}
		res.Candidate = best.Content
	}
	log.Warnw("Iteration ceiling reached, returning best-known candidate",
		logger.FieldDocument, l.DocumentID,
		logger.FieldIteration, res.Iterations,
		"best_score", res.BestScore,
		logger.FieldVersion, res.BestVersion,
	)
	return res, nil
}

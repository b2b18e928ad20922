// Package orchestra sequences a run's stages. Each stage advances the run
// context, executes its body, and publishes its output for the next stage;
// any stage failure marks the run failed and stops the pipeline.
package orchestra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/logger"
	"github.com/teranos/refinery/run"
	"github.com/teranos/refinery/store"
	"github.com/teranos/refinery/sym"
)

// Stage is one executable pipeline step. Implementations read their input
// from the run context (the previous stage's published output) and return
// a JSON-serializable result.
type Stage interface {
	// Stage identifies the pipeline position this step occupies.
	Stage() run.Stage
	// Execute runs the stage body against the current run state.
	Execute(ctx context.Context, rc *run.Context) (any, error)
}

// OutputKey returns the context-data key under which a stage's output is
// published for downstream stages.
func OutputKey(s run.Stage) string {
	return string(s) + "_output"
}

// Conductor drives a run through its stages in order.
type Conductor struct {
	seq    *run.Sequencer
	db     *sql.DB
	stages []Stage
	logger *zap.SugaredLogger
}

// NewConductor creates a Conductor. db may be nil when no runs table is
// maintained (tests).
func NewConductor(seq *run.Sequencer, db *sql.DB, stages []Stage, log *zap.SugaredLogger) *Conductor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Conductor{seq: seq, db: db, stages: stages, logger: log}
}

// Run executes every stage in order and marks the run completed. The first
// stage failure marks the run failed and is returned; later stages do not
// execute.
func (c *Conductor) Run(ctx context.Context) error {
	for _, s := range c.stages {
		if err := c.runStage(ctx, s); err != nil {
			return err
		}
	}
	if err := c.seq.MarkCompleted(ctx); err != nil {
		return err
	}
	c.recordStage(ctx, run.StageCompleted)
	return nil
}

// runStage is the per-stage template: advance → execute → publish output,
// with the failure path caught exactly once at the stage boundary.
func (c *Conductor) runStage(ctx context.Context, s Stage) error {
	stage := s.Stage()
	if _, err := c.seq.AdvanceStage(ctx, stage); err != nil {
		return errors.Wrapf(err, "advance to %s", stage)
	}
	c.recordStage(ctx, stage)

	start := time.Now()
	c.logger.Infow("Stage starting",
		logger.FieldRunID, c.seq.Context().RunID,
		logger.FieldStage, string(stage),
		"symbol", sym.ForStage(string(stage)),
	)

	output, err := s.Execute(ctx, c.seq.Context())
	duration := time.Since(start)

	if err != nil {
		wrapped := errors.Wrapf(err, "stage %s after %.2fs", stage, duration.Seconds())
		if failErr := c.seq.MarkFailed(ctx, wrapped); failErr != nil {
			// The checkpoint trail is now unreliable; surface both.
			return errors.Wrapf(failErr, "mark failed after %v", wrapped)
		}
		c.recordStage(ctx, run.StageFailed)
		return wrapped
	}

	if err := c.seq.AddContextData(ctx, OutputKey(stage), output); err != nil {
		return errors.Wrapf(err, "publish %s output", stage)
	}
	if err := c.seq.AddContextData(ctx, fmt.Sprintf("%s_duration_seconds", stage), duration.Seconds()); err != nil {
		return errors.Wrapf(err, "publish %s timing", stage)
	}

	c.logger.Infow("Stage complete",
		logger.FieldRunID, c.seq.Context().RunID,
		logger.FieldStage, string(stage),
		logger.FieldDuration, duration.Seconds(),
	)
	return nil
}

// recordStage mirrors the run's current stage into the runs table. Failing
// to update the table is logged but never fails the run; checkpoints are
// the authoritative trail.
func (c *Conductor) recordStage(ctx context.Context, stage run.Stage) {
	if c.db == nil {
		return
	}
	if err := store.UpdateRunStage(ctx, c.db, c.seq.Context().RunID, string(stage)); err != nil {
		c.logger.Warnw("Failed to record run stage",
			logger.FieldRunID, c.seq.Context().RunID,
			logger.FieldStage, string(stage),
			logger.FieldError, err,
		)
	}
}

package run

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/logger"
	"github.com/teranos/refinery/store"
	"github.com/teranos/refinery/sym"
)

// ErrorEntry is one failure recorded against the run.
type ErrorEntry struct {
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the mutable shared state of one run: current stage, keyed
// context values threaded between stages, the error log, and timestamps.
//
// Single-writer discipline: only the orchestrating goroutine mutates a
// Context, and only between pool invocations. Concurrently-running units
// never touch it, so it carries no locking.
type Context struct {
	RunID       string         `json:"run_id"`
	Stage       Stage          `json:"stage"`
	ContextData map[string]any `json:"context_data"`
	ErrorLog    []ErrorEntry   `json:"error_log"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
}

// Sequencer advances a run Context through the stage pipeline. Every
// mutation checkpoints the full Context snapshot; a checkpoint write
// failure is fatal to the run.
type Sequencer struct {
	rc          *Context
	checkpoints *store.CheckpointStore
	logger      *zap.SugaredLogger
}

// NewSequencer creates a Sequencer for a fresh run.
func NewSequencer(runID string, checkpoints *store.CheckpointStore, log *zap.SugaredLogger) *Sequencer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Sequencer{
		rc: &Context{
			RunID:       runID,
			Stage:       StageInitialization,
			ContextData: make(map[string]any),
			StartTime:   time.Now().UTC(),
		},
		checkpoints: checkpoints,
		logger:      log,
	}
}

// Resume rebuilds a Sequencer around a previously checkpointed Context.
func Resume(rc *Context, checkpoints *store.CheckpointStore, log *zap.SugaredLogger) *Sequencer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if rc.ContextData == nil {
		rc.ContextData = make(map[string]any)
	}
	return &Sequencer{rc: rc, checkpoints: checkpoints, logger: log}
}

// Context returns the run's current state. Callers read it freely but
// mutate only through the Sequencer.
func (s *Sequencer) Context() *Context {
	return s.rc
}

// AdvanceStage moves the run forward to next, checkpointing the full
// snapshot, and returns the checkpoint id.
func (s *Sequencer) AdvanceStage(ctx context.Context, next Stage) (string, error) {
	if err := s.rc.Stage.CanAdvanceTo(next); err != nil {
		return "", err
	}
	s.rc.Stage = next
	id, err := s.checkpoint(ctx)
	if err != nil {
		return "", err
	}
	s.logger.Infow("Stage advanced",
		logger.FieldRunID, s.rc.RunID,
		logger.FieldStage, string(next),
		"symbol", sym.ForStage(string(next)),
		"checkpoint_id", id,
	)
	return id, nil
}

// AddContextData publishes a value for later stages and checkpoints.
func (s *Sequencer) AddContextData(ctx context.Context, key string, value any) error {
	s.rc.ContextData[key] = value
	if _, err := s.checkpoint(ctx); err != nil {
		return err
	}
	s.logger.Debugw("Context data added",
		logger.FieldRunID, s.rc.RunID,
		"key", key,
	)
	return nil
}

// MarkCompleted transitions the run to its successful terminal stage.
func (s *Sequencer) MarkCompleted(ctx context.Context) error {
	if err := s.rc.Stage.CanAdvanceTo(StageCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	s.rc.Stage = StageCompleted
	s.rc.EndTime = &now
	if _, err := s.checkpoint(ctx); err != nil {
		return err
	}
	s.logger.Infow("Run completed",
		logger.FieldRunID, s.rc.RunID,
		"symbol", sym.Done,
		logger.FieldDuration, now.Sub(s.rc.StartTime).Seconds(),
	)
	return nil
}

// MarkFailed records the failure reason, transitions to the failed
// terminal stage, and checkpoints.
func (s *Sequencer) MarkFailed(ctx context.Context, reason error) error {
	now := time.Now().UTC()
	s.rc.ErrorLog = append(s.rc.ErrorLog, ErrorEntry{
		Stage:     s.rc.Stage,
		Message:   reason.Error(),
		Timestamp: now,
	})
	if s.rc.Stage.Terminal() {
		// Already terminal; keep the first terminal stage but still record
		// the error entry in the checkpoint trail.
		_, err := s.checkpoint(ctx)
		return err
	}
	s.rc.Stage = StageFailed
	s.rc.EndTime = &now
	if _, err := s.checkpoint(ctx); err != nil {
		return err
	}
	s.logger.Errorw("Run failed",
		logger.FieldRunID, s.rc.RunID,
		"symbol", sym.Fail,
		logger.FieldError, reason,
	)
	return nil
}

func (s *Sequencer) checkpoint(ctx context.Context) (string, error) {
	id, err := s.checkpoints.Save(ctx, string(s.rc.Stage), s.rc)
	if err != nil {
		return "", errors.Wrapf(err, "checkpoint run %s", s.rc.RunID)
	}
	return id, nil
}

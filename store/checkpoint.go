package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/logger"
	"github.com/teranos/refinery/sym"
)

// Checkpoint is one snapshot of orchestration state.
type Checkpoint struct {
	ID        string
	RunID     string
	Stage     string
	State     json.RawMessage
	CreatedAt time.Time
}

// CheckpointStore keeps append-only, timestamped snapshots of orchestration
// state for one run. A run that cannot checkpoint cannot be resumed or
// audited, so save failures are fatal to the run.
type CheckpointStore struct {
	db     *sql.DB
	runID  string
	logger *zap.SugaredLogger
}

// NewCheckpointStore creates a CheckpointStore scoped to runID.
func NewCheckpointStore(db *sql.DB, runID string, log *zap.SugaredLogger) *CheckpointStore {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CheckpointStore{db: db, runID: runID, logger: log}
}

// Save snapshots state under the given stage and returns the checkpoint id.
func (s *CheckpointStore) Save(ctx context.Context, stage string, state any) (string, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return "", errors.Wrapf(errors.ErrCheckpointWrite, "marshal state for %s: %v", stage, err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, run_id, stage, state) VALUES (?, ?, ?, ?)`,
		id, s.runID, stage, string(payload),
	)
	if err != nil {
		return "", errors.Wrapf(errors.ErrCheckpointWrite, "%s: %v", stage, err)
	}

	s.logger.Debugw("Checkpoint saved",
		"symbol", sym.DB,
		"checkpoint_id", id,
		logger.FieldStage, stage,
		"bytes", len(payload),
	)
	return id, nil
}

// List returns every checkpoint for the run in insertion order, oldest
// first. Useful for auditing how a run moved through its stages.
func (s *CheckpointStore) List(ctx context.Context) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stage, state, created_at FROM checkpoints
		 WHERE run_id = ?
		 ORDER BY created_at ASC, rowid ASC`,
		s.runID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "list checkpoints for %s", s.runID)
	}
	defer rows.Close()

	var checkpoints []Checkpoint
	for rows.Next() {
		cp := Checkpoint{RunID: s.runID}
		var state string
		if err := rows.Scan(&cp.ID, &cp.Stage, &state, &cp.CreatedAt); err != nil {
			return nil, errors.Wrapf(err, "scan checkpoints for %s", s.runID)
		}
		cp.State = json.RawMessage(state)
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// LoadLatest returns the most recent checkpoint for the run, or (nil, nil)
// when none exist. Ties on created_at resolve to the most recently
// inserted row.
func (s *CheckpointStore) LoadLatest(ctx context.Context) (*Checkpoint, error) {
	cp := Checkpoint{RunID: s.runID}
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, stage, state, created_at FROM checkpoints
		 WHERE run_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		s.runID,
	).Scan(&cp.ID, &cp.Stage, &state, &cp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load latest checkpoint")
	}
	cp.State = json.RawMessage(state)
	return &cp, nil
}

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/refinery/errors"
)

// RunRecord is one row in the runs table.
type RunRecord struct {
	ID        string
	Stage     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateRun registers a new run row in stage "initialization".
func CreateRun(ctx context.Context, db *sql.DB, runID string) error {
	_, err := db.ExecContext(ctx, `INSERT INTO runs (id) VALUES (?)`, runID)
	if err != nil {
		return errors.Wrapf(err, "create run %s", runID)
	}
	return nil
}

// UpdateRunStage records the run's current stage.
func UpdateRunStage(ctx context.Context, db *sql.DB, runID, stage string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE runs SET stage = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		stage, runID,
	)
	if err != nil {
		return errors.Wrapf(err, "update run %s stage", runID)
	}
	return nil
}

// ListRuns returns all runs, newest first.
func ListRuns(ctx context.Context, db *sql.DB) ([]RunRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, stage, created_at, updated_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Stage, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run row, or an error wrapping errors.ErrNotFound.
func GetRun(ctx context.Context, db *sql.DB, runID string) (*RunRecord, error) {
	var r RunRecord
	err := db.QueryRowContext(ctx,
		`SELECT id, stage, created_at, updated_at FROM runs WHERE id = ?`, runID,
	).Scan(&r.ID, &r.Stage, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get run %s", runID)
	}
	return &r, nil
}

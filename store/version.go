package store

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/logger"
	"github.com/teranos/refinery/sym"
)

// Version is one record in a document's append-only history.
type Version struct {
	RunID      string
	DocumentID string
	Number     int
	Content    string
	Score      *float64
	Note       string
	CreatedAt  time.Time
}

// VersionStore keeps append-only per-document version history for one run.
// Version numbers within a document are consecutive integers starting at 1;
// records are never mutated after creation.
//
// The store is mutated only by the single orchestrating goroutine between
// pool invocations, so it carries no locking.
type VersionStore struct {
	db     *sql.DB
	runID  string
	logger *zap.SugaredLogger
}

// NewVersionStore creates a VersionStore scoped to runID.
func NewVersionStore(db *sql.DB, runID string, log *zap.SugaredLogger) *VersionStore {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &VersionStore{db: db, runID: runID, logger: log}
}

// Store appends a new version for documentID and returns its number.
// Numbers auto-increment from the current max, starting at 1.
func (s *VersionStore) Store(ctx context.Context, documentID, content string, score *float64, note string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin version tx")
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM document_versions
		 WHERE run_id = ? AND document_id = ?`,
		s.runID, documentID,
	).Scan(&next)
	if err != nil {
		return 0, errors.Wrapf(err, "next version for %s", documentID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO document_versions (run_id, document_id, version, content, score, note)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.runID, documentID, next, content, score, note,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "store version %d of %s", next, documentID)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrapf(err, "commit version %d of %s", next, documentID)
	}

	s.logger.Debugw("Version stored",
		"symbol", sym.DB,
		logger.FieldDocument, documentID,
		logger.FieldVersion, next,
		"note", note,
	)
	return next, nil
}

// Load returns a specific version of a document. Missing versions return
// an error wrapping errors.ErrNotFound.
func (s *VersionStore) Load(ctx context.Context, documentID string, number int) (*Version, error) {
	v := Version{RunID: s.runID, DocumentID: documentID, Number: number}
	err := s.db.QueryRowContext(ctx,
		`SELECT content, score, note, created_at FROM document_versions
		 WHERE run_id = ? AND document_id = ? AND version = ?`,
		s.runID, documentID, number,
	).Scan(&v.Content, &v.Score, &v.Note, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "version %d of %s", number, documentID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load version %d of %s", number, documentID)
	}
	return &v, nil
}

// Latest returns the highest-numbered version of a document, or an error
// wrapping errors.ErrNotFound if the document has no versions.
func (s *VersionStore) Latest(ctx context.Context, documentID string) (*Version, error) {
	v := Version{RunID: s.runID, DocumentID: documentID}
	err := s.db.QueryRowContext(ctx,
		`SELECT version, content, score, note, created_at FROM document_versions
		 WHERE run_id = ? AND document_id = ?
		 ORDER BY version DESC LIMIT 1`,
		s.runID, documentID,
	).Scan(&v.Number, &v.Content, &v.Score, &v.Note, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "latest version of %s", documentID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "latest version of %s", documentID)
	}
	return &v, nil
}

// History returns all versions of a document in ascending order.
func (s *VersionStore) History(ctx context.Context, documentID string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, content, score, note, created_at FROM document_versions
		 WHERE run_id = ? AND document_id = ?
		 ORDER BY version ASC`,
		s.runID, documentID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "history of %s", documentID)
	}
	defer rows.Close()

	var history []Version
	for rows.Next() {
		v := Version{RunID: s.runID, DocumentID: documentID}
		if err := rows.Scan(&v.Number, &v.Content, &v.Score, &v.Note, &v.CreatedAt); err != nil {
			return nil, errors.Wrapf(err, "scan history of %s", documentID)
		}
		history = append(history, v)
	}
	return history, rows.Err()
}

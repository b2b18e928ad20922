package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/sym"
)

// pragmas applied to every connection. WAL lets version reads proceed while
// a refinement loop is writing; the busy timeout absorbs checkpoint bursts
// from parallel document pipelines.
var pragmas = []struct {
	stmt string
	desc string
}{
	{"PRAGMA journal_mode = WAL", "journal mode"},
	{"PRAGMA foreign_keys = ON", "foreign keys"},
	{"PRAGMA busy_timeout = 5000", "busy timeout"},
}

// Open opens the SQLite store backing versions, checkpoints, and run
// bookkeeping. A nil logger keeps it quiet.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger.Debugw("Opening store", "symbol", sym.DB, "path", path)

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open store at %s", path)
	}

	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "set %s", p.desc)
		}
	}

	logger.Infow("Store ready", "symbol", sym.DB, "path", path)
	return conn, nil
}

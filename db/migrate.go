package db

import (
	"database/sql"
	"embed"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/refinery/errors"
	"github.com/teranos/refinery/sym"
)

//go:embed sqlite/migrations/*.sql
var migrationFS embed.FS

const migrationDir = "sqlite/migrations"

// bootstrapVersion is the migration that creates schema_migrations itself,
// so its applied-check is allowed to fail.
const bootstrapVersion = "000"

// Migrate brings the store schema up to date. Filenames sort as versions;
// each migration runs in its own transaction and records itself in
// schema_migrations before committing. Already-applied versions are skipped.
func Migrate(conn *sql.DB, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	pending, err := migrationFiles()
	if err != nil {
		return err
	}

	for _, name := range pending {
		version := strings.SplitN(name, "_", 2)[0]

		var done bool
		err := conn.QueryRow(
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version,
		).Scan(&done)
		if err != nil {
			if version != bootstrapVersion {
				return errors.Wrapf(err, "no schema_migrations table before %s", name)
			}
			// Fresh store: the bootstrap migration creates the ledger.
		} else if done {
			logger.Debugw("Migration already applied", "migration", name)
			continue
		}

		if err := apply(conn, name, version); err != nil {
			return err
		}
		logger.Infow("Migration applied", "symbol", sym.DB, "migration", name)
	}

	logger.Debugw("Schema up to date", "symbol", sym.DB, "migrations", len(pending))
	return nil
}

func migrationFiles() ([]string, error) {
	entries, err := migrationFS.ReadDir(migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "read embedded migrations")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func apply(conn *sql.DB, name, version string) error {
	script, err := migrationFS.ReadFile(filepath.Join(migrationDir, name))
	if err != nil {
		return errors.Wrapf(err, "read migration %s", name)
	}

	tx, err := conn.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin %s", name)
	}
	if _, err := tx.Exec(string(script)); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "apply %s", name)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record %s in ledger", name)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", name)
}

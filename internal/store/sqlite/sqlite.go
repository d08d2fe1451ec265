// Package sqlite opens the SQLite-backed store.Driver. It favors
// modernc.org/sqlite over a cgo driver so the orchestrator stays a
// single static binary.
package sqlite

import (
	"database/sql"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"

	"github.com/ivybound/taskrunner/internal/store"
	"github.com/ivybound/taskrunner/internal/store/sqlstore"
)

// Open connects to the SQLite file at dsn and returns a ready-to-migrate
// store.Driver. Pragmas mirror single-writer WAL usage: one connection,
// foreign keys on, a generous busy timeout so the worker pool's writers
// queue instead of failing with SQLITE_BUSY.
func Open(dsn string) (store.Driver, error) {
	if dsn == "" {
		return nil, errors.New("sqlite dsn required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening sqlite db: %s", dsn)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "setting pragma: %s", pragma)
		}
	}

	// A single connection keeps WAL semantics simple: one writer at a
	// time, no cross-connection lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return sqlstore.New(db, sqlstore.SQLiteDialect{}), nil
}

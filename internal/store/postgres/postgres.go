// Package postgres opens the PostgreSQL-backed store.Driver for
// multi-instance deployments that need a shared run queue.
package postgres

import (
	"database/sql"

	"github.com/pkg/errors"

	_ "github.com/lib/pq"

	"github.com/ivybound/taskrunner/internal/store"
	"github.com/ivybound/taskrunner/internal/store/sqlstore"
)

// Open connects to the PostgreSQL database at dsn and returns a
// ready-to-migrate store.Driver.
func Open(dsn string) (store.Driver, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening postgres db")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pinging postgres")
	}

	return sqlstore.New(db, sqlstore.PostgresDialect{}), nil
}

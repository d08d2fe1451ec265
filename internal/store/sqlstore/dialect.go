// Package sqlstore is a single database/sql-based store.Driver
// implementation shared by the sqlite and postgres backends, so the
// orchestrator's SQL lives in one place instead of being duplicated
// per-dialect.
package sqlstore

import "fmt"

// Dialect captures the handful of places SQLite and PostgreSQL syntax
// diverge for this schema.
type Dialect interface {
	// Placeholder returns the driver-specific bind placeholder for the
	// n-th (1-indexed) parameter in a query.
	Placeholder(n int) string
	// AutoIncrementPK returns the column-definition fragment for an
	// auto-incrementing integer primary key.
	AutoIncrementPK() string
}

// SQLiteDialect targets modernc.org/sqlite.
type SQLiteDialect struct{}

func (SQLiteDialect) Placeholder(int) string  { return "?" }
func (SQLiteDialect) AutoIncrementPK() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

// PostgresDialect targets github.com/lib/pq.
type PostgresDialect struct{}

func (PostgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (PostgresDialect) AutoIncrementPK() string  { return "BIGSERIAL PRIMARY KEY" }

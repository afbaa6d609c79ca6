// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database; it lives inside your Go binary as a single file.
// No separate database server to install, configure, or manage. It is the default
// store; set DATABASE_URL to switch to PostgreSQL (see repository/postgres).
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C compiler
// installed and cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code; no C compiler needed, works everywhere Go works.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3/database"

	"github.com/sakif/posts-api/internal/migrations"

	// BLANK IMPORT:
	// Registers the "sqlite" driver with database/sql at init time.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/posts.db"  → file-based database (persistent)
//   - ":memory:"       → in-memory database (lost on close)
//
// PRAGMAS IN THE DSN:
// database/sql keeps a POOL of connections, and a PRAGMA run with conn.Exec only
// configures whichever connection happened to run it. Putting the pragmas in the
// DSN (_pragma=...) makes the driver apply them to every connection it opens.
func New(ctx context.Context, dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its OWN empty database,
	// so an in-memory store must stay on a single connection.
	if isMemory(dbPath) {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := migrations.Up(ctx, conn, database.DialectSQLite3); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
}

// dsn appends the connection pragmas to dbPath.
//
// journal_mode(WAL) lets readers run while a write is in progress.
// busy_timeout(5000) makes a writer wait up to 5s for the lock instead of
// failing immediately with SQLITE_BUSY.
func dsn(dbPath string) string {
	pragmas := "_pragma=busy_timeout(5000)"
	if !isMemory(dbPath) {
		pragmas += "&_pragma=journal_mode(WAL)"
	}

	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + pragmas
}

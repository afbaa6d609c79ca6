// Package migrations embeds the schema migrations for every supported
// database and applies them with goose.
//
// Each dialect has its own directory named after the goose dialect
// (sqlite3/, postgres/). Files follow goose's naming: 00001_name.sql with
// "-- +goose Up" / "-- +goose Down" sections.
//
// WHY GOOSE INSTEAD OF CREATE TABLE IF NOT EXISTS?
// goose records applied versions in its own table (goose_db_version), so a
// schema change is a new numbered file instead of hand-written
// "does this column exist yet?" checks at startup.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

//go:embed sqlite3/*.sql postgres/*.sql
var files embed.FS

// Up applies every pending migration for dialect and returns how many ran.
func Up(ctx context.Context, db *sql.DB, dialect database.Dialect) (int, error) {
	fsys, err := fs.Sub(files, string(dialect))
	if err != nil {
		return 0, fmt.Errorf("migrations: no files for dialect %s: %w", dialect, err)
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("migrations: creating provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrations: applying %s migrations: %w", dialect, err)
	}
	return len(results), nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/posts-api/internal/apperror"
	"github.com/sakif/posts-api/internal/model"
	"github.com/sakif/posts-api/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// If *DB stops satisfying repository.Store, the build fails here rather than
// wherever the server happens to pass it around.
var _ repository.Store = (*DB)(nil)

const postColumns = `id, user_id, title, body, version`

// querier is the part of *sql.DB and *sql.Tx the save path needs.
// Accepting it lets Save and SaveAll share the same insert/update code.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPost(s scanner) (model.Post, error) {
	var (
		p       model.Post
		version int64
	)
	if err := s.Scan(&p.ID, &p.UserID, &p.Title, &p.Body, &version); err != nil {
		return model.Post{}, err
	}
	p.Version = &version
	return p, nil
}

// FindAll returns every post ordered by id.
//
// defer rows.Close() returns the connection to the pool even if Scan fails
// half way through the loop.
func (db *DB) FindAll(ctx context.Context) ([]model.Post, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}
	defer rows.Close()

	posts := make([]model.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating posts: %w", err)
	}

	return posts, nil
}

// FindByID returns the post with the given id, or apperror.ErrNotFound.
func (db *DB) FindByID(ctx context.Context, id int64) (*model.Post, error) {
	p, err := scanPost(db.conn.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("post", id)
		}
		return nil, fmt.Errorf("sqlite: getting post %d: %w", id, err)
	}
	return &p, nil
}

// FindByTitle returns the post whose title matches exactly.
// ORDER BY id LIMIT 1 makes duplicate titles resolve to the oldest row.
func (db *DB) FindByTitle(ctx context.Context, title string) (*model.Post, error) {
	p, err := scanPost(db.conn.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE title = ? ORDER BY id LIMIT 1`, title))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("post", title)
		}
		return nil, fmt.Errorf("sqlite: getting post by title: %w", err)
	}
	return &p, nil
}

// Save inserts a new post or updates an existing one.
//
// New posts (Version == nil) are inserted with version 0. Existing posts are
// written with a CONDITIONAL UPDATE:
//
//	UPDATE posts SET ..., version = version + 1 WHERE id = ? AND version = ?
//
// If another request updated the row first, its version no longer matches and
// the UPDATE touches nothing. That is how optimistic locking detects lost
// updates without holding any lock between read and write.
func (db *DB) Save(ctx context.Context, post model.Post) (*model.Post, error) {
	saved, err := save(ctx, db.conn, post)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// SaveAll saves every post inside one transaction; either all of them land
// or none do.
func (db *DB) SaveAll(ctx context.Context, posts []model.Post) ([]model.Post, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	// Rollback after Commit is a no-op, so this is safe on the success path too.
	defer tx.Rollback()

	saved := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		s, err := save(ctx, tx, p)
		if err != nil {
			return nil, err
		}
		saved = append(saved, s)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing posts: %w", err)
	}
	return saved, nil
}

func save(ctx context.Context, q querier, post model.Post) (model.Post, error) {
	if post.IsNew() {
		return insert(ctx, q, post)
	}
	return update(ctx, q, post)
}

// insert writes a new row. A zero ID is passed as NULL so SQLite assigns the
// next id; a non-zero ID (seed data) is kept as-is.
func insert(ctx context.Context, q querier, post model.Post) (model.Post, error) {
	id := sql.NullInt64{Int64: post.ID, Valid: post.ID != 0}

	saved, err := scanPost(q.QueryRowContext(ctx,
		`INSERT INTO posts (id, user_id, title, body, version)
		 VALUES (?, ?, ?, ?, 0)
		 RETURNING `+postColumns,
		id, post.UserID, post.Title, post.Body,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Post{}, apperror.Conflict("post", post.ID)
		}
		return model.Post{}, fmt.Errorf("sqlite: inserting post: %w", err)
	}
	return saved, nil
}

func update(ctx context.Context, q querier, post model.Post) (model.Post, error) {
	saved, err := scanPost(q.QueryRowContext(ctx,
		`UPDATE posts
		 SET user_id = ?, title = ?, body = ?, version = version + 1
		 WHERE id = ? AND version = ?
		 RETURNING `+postColumns,
		post.UserID, post.Title, post.Body, post.ID, *post.Version,
	))
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Post{}, fmt.Errorf("sqlite: updating post %d: %w", post.ID, err)
	}

	// Nothing matched: either the row is gone or its version moved on.
	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM posts WHERE id = ?)`, post.ID,
	).Scan(&exists); err != nil {
		return model.Post{}, fmt.Errorf("sqlite: checking post %d: %w", post.ID, err)
	}
	if !exists {
		return model.Post{}, apperror.NotFound("post", post.ID)
	}
	return model.Post{}, apperror.StaleVersion("post", post.ID, *post.Version)
}

// DeleteByID removes the post if present. Deleting a missing id is not an error.
func (db *DB) DeleteByID(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting post %d: %w", id, err)
	}
	return nil
}

// Count returns the number of stored posts.
func (db *DB) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting posts: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// Connections without extended result codes only report the primary code.
		// posts has no other constraint an insert can trip.
		return true
	}
	return false
}

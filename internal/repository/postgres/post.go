package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sakif/posts-api/internal/apperror"
	"github.com/sakif/posts-api/internal/model"
	"github.com/sakif/posts-api/internal/repository"
)

var _ repository.Store = (*DB)(nil)

const postColumns = `id, user_id, title, body, version`

// uniqueViolation is the SQLSTATE PostgreSQL reports for a duplicate key.
const uniqueViolation = "23505"

// querier is implemented by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func scanPost(row pgx.Row) (model.Post, error) {
	var (
		p       model.Post
		version int64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Body, &version); err != nil {
		return model.Post{}, err
	}
	p.Version = &version
	return p, nil
}

func (db *DB) FindAll(ctx context.Context) ([]model.Post, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+postColumns+` FROM posts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing posts: %w", err)
	}
	defer rows.Close()

	posts := make([]model.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning post row: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating posts: %w", err)
	}
	return posts, nil
}

func (db *DB) FindByID(ctx context.Context, id int64) (*model.Post, error) {
	p, err := scanPost(db.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("post", id)
		}
		return nil, fmt.Errorf("postgres: getting post %d: %w", id, err)
	}
	return &p, nil
}

// FindByTitle resolves duplicate titles to the lowest id.
func (db *DB) FindByTitle(ctx context.Context, title string) (*model.Post, error) {
	p, err := scanPost(db.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM posts WHERE title = $1 ORDER BY id LIMIT 1`, title))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("post", title)
		}
		return nil, fmt.Errorf("postgres: getting post by title: %w", err)
	}
	return &p, nil
}

// Save inserts new posts and runs a version-checked update for stored ones.
// An insert that supplies its own id runs in a transaction together with the
// identity-sequence realignment.
func (db *DB) Save(ctx context.Context, post model.Post) (*model.Post, error) {
	if !post.IsNew() {
		saved, err := update(ctx, db.pool, post)
		if err != nil {
			return nil, err
		}
		return &saved, nil
	}

	if post.ID == 0 {
		saved, err := scanInsert(db.pool.QueryRow(ctx, insertSQL(post), insertArgs(post)...), post)
		if err != nil {
			return nil, err
		}
		return &saved, nil
	}

	var saved model.Post
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		var err error
		if saved, err = scanInsert(tx.QueryRow(ctx, insertSQL(post), insertArgs(post)...), post); err != nil {
			return err
		}
		return syncIDSequence(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// SaveAll writes every post in one transaction. New posts are sent to the
// server as a single pgx.Batch (one round-trip), stored posts go through the
// version-checked update one by one.
func (db *DB) SaveAll(ctx context.Context, posts []model.Post) ([]model.Post, error) {
	saved := make([]model.Post, len(posts))

	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		var (
			inserted    []int
			explicitIDs bool
		)
		for i, p := range posts {
			if !p.IsNew() {
				continue
			}
			batch.Queue(insertSQL(p), insertArgs(p)...)
			inserted = append(inserted, i)
			explicitIDs = explicitIDs || p.ID != 0
		}

		if len(inserted) > 0 {
			br := tx.SendBatch(ctx, batch)
			for _, i := range inserted {
				s, err := scanInsert(br.QueryRow(), posts[i])
				if err != nil {
					_ = br.Close()
					return err
				}
				saved[i] = s
			}
			if err := br.Close(); err != nil {
				return fmt.Errorf("postgres: closing insert batch: %w", err)
			}
		}

		for i, p := range posts {
			if p.IsNew() {
				continue
			}
			s, err := update(ctx, tx, p)
			if err != nil {
				return err
			}
			saved[i] = s
		}

		if explicitIDs {
			return syncIDSequence(ctx, tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func insertSQL(post model.Post) string {
	if post.ID == 0 {
		return `INSERT INTO posts (user_id, title, body, version)
			VALUES ($1, $2, $3, 0)
			RETURNING ` + postColumns
	}
	return `INSERT INTO posts (id, user_id, title, body, version)
		VALUES ($4, $1, $2, $3, 0)
		RETURNING ` + postColumns
}

func insertArgs(post model.Post) []any {
	args := []any{post.UserID, post.Title, post.Body}
	if post.ID != 0 {
		args = append(args, post.ID)
	}
	return args
}

func scanInsert(row pgx.Row, post model.Post) (model.Post, error) {
	saved, err := scanPost(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.Post{}, apperror.Conflict("post", post.ID)
		}
		return model.Post{}, fmt.Errorf("postgres: inserting post: %w", err)
	}
	return saved, nil
}

// syncIDSequence moves the identity sequence past the highest stored id.
// Rows inserted with explicit ids do not advance it, so without this the next
// generated id would collide with seed data.
func syncIDSequence(ctx context.Context, q querier) error {
	_, err := q.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence('posts', 'id'), COALESCE((SELECT MAX(id) FROM posts), 1))`)
	if err != nil {
		return fmt.Errorf("postgres: syncing id sequence: %w", err)
	}
	return nil
}

func update(ctx context.Context, q querier, post model.Post) (model.Post, error) {
	saved, err := scanPost(q.QueryRow(ctx,
		`UPDATE posts
		 SET user_id = $1, title = $2, body = $3, version = version + 1
		 WHERE id = $4 AND version = $5
		 RETURNING `+postColumns,
		post.UserID, post.Title, post.Body, post.ID, *post.Version,
	))
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Post{}, fmt.Errorf("postgres: updating post %d: %w", post.ID, err)
	}

	var exists bool
	if err := q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, post.ID,
	).Scan(&exists); err != nil {
		return model.Post{}, fmt.Errorf("postgres: checking post %d: %w", post.ID, err)
	}
	if !exists {
		return model.Post{}, apperror.NotFound("post", post.ID)
	}
	return model.Post{}, apperror.StaleVersion("post", post.ID, *post.Version)
}

// DeleteByID is a no-op for missing ids.
func (db *DB) DeleteByID(ctx context.Context, id int64) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: deleting post %d: %w", id, err)
	}
	return nil
}

func (db *DB) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: counting posts: %w", err)
	}
	return n, nil
}

// Package repository declares the storage contracts used by the service layer.
// Implementations live in sub-packages (sqlite, postgres).
package repository

import (
	"context"

	"github.com/sakif/posts-api/internal/model"
)

// PostRepository is the storage contract for posts.
//
// Lookups return apperror.ErrNotFound when nothing matches. Save inserts when
// post.IsNew() and otherwise runs a version-checked update, returning
// apperror.ErrConflict when the stored version has moved on.
type PostRepository interface {
	FindAll(ctx context.Context) ([]model.Post, error)
	FindByID(ctx context.Context, id int64) (*model.Post, error)
	// FindByTitle is an exact match. Duplicate titles resolve to the lowest id.
	FindByTitle(ctx context.Context, title string) (*model.Post, error)
	Save(ctx context.Context, post model.Post) (*model.Post, error)
	SaveAll(ctx context.Context, posts []model.Post) ([]model.Post, error)
	// DeleteByID is a no-op for ids that do not exist.
	DeleteByID(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
}

// Store is a PostRepository that owns a connection and must be closed.
type Store interface {
	PostRepository
	Close() error
}

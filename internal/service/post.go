// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// PostService takes a repository.PostRepository (interface), NOT a concrete
// store. The server hands it SQLite or PostgreSQL; tests hand it an in-memory
// mock (see post_test.go).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/posts-api/internal/apperror"
	"github.com/sakif/posts-api/internal/model"
	"github.com/sakif/posts-api/internal/repository"
)

// PostService handles business logic for posts.
type PostService struct {
	repo     repository.PostRepository
	validate *validator.Validate
	logger   *slog.Logger
}

// NewPostService creates a new PostService.
//
// VALIDATOR SETUP:
// validator.New() is safe for concurrent use and caches struct metadata, so we
// build one per service rather than per request. RegisterTagNameFunc makes
// FieldError.Field() report the JSON name ("title") instead of the Go name
// ("Title"), which is what API clients see.
func NewPostService(repo repository.PostRepository, logger *slog.Logger) *PostService {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &PostService{
		repo:     repo,
		validate: v,
		logger:   logger,
	}
}

// List returns every post.
func (s *PostService) List(ctx context.Context) ([]model.Post, error) {
	posts, err := s.repo.FindAll(ctx)
	if err != nil {
		s.logger.Error("failed to list posts", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	return posts, nil
}

// ListByTitle returns the post with an exactly matching title as a
// zero-or-one element slice, so the handler can answer filtered and
// unfiltered list requests with the same JSON shape.
func (s *PostService) ListByTitle(ctx context.Context, title string) ([]model.Post, error) {
	post, err := s.repo.FindByTitle(ctx, title)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return []model.Post{}, nil
		}
		s.logger.Error("failed to find post by title", slog.String("error", err.Error()))
		return nil, fmt.Errorf("finding post by title: %w", err)
	}
	return []model.Post{*post}, nil
}

// Get returns the post with the given id, or apperror.ErrNotFound.
func (s *PostService) Get(ctx context.Context, id int64) (*model.Post, error) {
	return s.repo.FindByID(ctx, id)
}

// Create validates and stores a new post.
//
// The id and version from the request are dropped: the store assigns the id
// and starts the version at 0. A client can never pick its own lock token.
func (s *PostService) Create(ctx context.Context, post model.Post) (*model.Post, error) {
	if err := s.check(post); err != nil {
		return nil, err
	}

	post.ID = 0
	post.Version = nil

	saved, err := s.repo.Save(ctx, post)
	if err != nil {
		s.logger.Error("failed to create post",
			slog.String("title", post.Title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating post: %w", err)
	}

	s.logger.Info("post created",
		slog.Int64("id", saved.ID),
		slog.Int64("userId", saved.UserID),
	)
	return saved, nil
}

// Update replaces the title and body of post id.
//
// STRATEGY: "Fetch, merge, conditional write"
//  1. Fetch the stored post; NotFound here means nothing is written.
//  2. Validate the request.
//  3. If the caller sent an expected version (If-Match), it must equal the
//     stored one, otherwise the caller edited a stale copy → Conflict.
//  4. Build the new value with existing.WithContent: id, userId and version
//     come from the STORED row, only title/body come from the request.
//  5. Save runs UPDATE ... WHERE version = <stored version>; a writer that
//     slipped in between steps 1 and 5 makes that match nothing → Conflict.
func (s *PostService) Update(ctx context.Context, id int64, req model.Post, expectedVersion *int64) (*model.Post, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.check(req); err != nil {
		return nil, err
	}

	if expectedVersion != nil && existing.Version != nil && *expectedVersion != *existing.Version {
		return nil, apperror.StaleVersion("post", id, *expectedVersion)
	}

	saved, err := s.repo.Save(ctx, existing.WithContent(req.Title, req.Body))
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Warn("concurrent update rejected", slog.Int64("id", id))
		} else if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("failed to update post",
				slog.Int64("id", id),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("updating post: %w", err)
	}

	s.logger.Info("post updated",
		slog.Int64("id", saved.ID),
		slog.Int64("version", *saved.Version),
	)
	return saved, nil
}

// Delete removes post id. Deleting a post that does not exist succeeds.
func (s *PostService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		s.logger.Error("failed to delete post",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("deleting post: %w", err)
	}

	s.logger.Info("post deleted", slog.Int64("id", id))
	return nil
}

// check runs the struct-tag rules on post and converts validator's errors into
// an apperror carrying one message per failing JSON field.
func (s *PostService) check(post model.Post) error {
	err := s.validate.Struct(post)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating post: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return apperror.Invalid(fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

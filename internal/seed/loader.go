// Package seed fills an empty store with the posts bundled into the binary.
//
// EMBEDDED ASSETS:
// //go:embed copies data/posts.json into the compiled binary, so the seed
// travels with the executable and cannot go missing at runtime the way a file
// on disk could. A broken seed is therefore a build defect, and the server
// refuses to start when Load fails.
package seed

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/sakif/posts-api/internal/model"
	"github.com/sakif/posts-api/internal/repository"
)

// DefaultPath is the location of the bundled seed inside the embedded FS.
const DefaultPath = "data/posts.json"

//go:embed data/posts.json
var bundled embed.FS

// ErrEmptySeed is returned when the seed document parses but holds no posts.
var ErrEmptySeed = errors.New("seed: document contains no posts")

// Loader runs the one-time startup seed.
type Loader struct {
	repo   repository.PostRepository
	logger *slog.Logger
	fsys   fs.FS
	path   string
}

// Option customises a Loader.
type Option func(*Loader)

// WithSource reads the seed from path inside fsys instead of the bundled file.
// Tests use it with testing/fstest.MapFS.
func WithSource(fsys fs.FS, path string) Option {
	return func(l *Loader) {
		l.fsys = fsys
		l.path = path
	}
}

// NewLoader creates a Loader that reads the bundled seed unless an Option
// says otherwise.
func NewLoader(repo repository.PostRepository, logger *slog.Logger, opts ...Option) *Loader {
	l := &Loader{
		repo:   repo,
		logger: logger,
		fsys:   bundled,
		path:   DefaultPath,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load inserts the seed posts when the store is empty and returns how many
// were inserted. A store that already holds posts is left alone.
func (l *Loader) Load(ctx context.Context) (int, error) {
	count, err := l.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed: counting posts: %w", err)
	}
	if count > 0 {
		l.logger.Debug("store already populated, skipping seed", slog.Int64("posts", count))
		return 0, nil
	}

	posts, err := l.read()
	if err != nil {
		return 0, err
	}

	l.logger.Info("loading posts into database from JSON", slog.String("path", l.path))

	saved, err := l.repo.SaveAll(ctx, posts)
	if err != nil {
		return 0, fmt.Errorf("seed: saving posts: %w", err)
	}

	l.logger.Info("seed complete", slog.Int("posts", len(saved)))
	return len(saved), nil
}

func (l *Loader) read() ([]model.Post, error) {
	data, err := fs.ReadFile(l.fsys, l.path)
	if err != nil {
		return nil, fmt.Errorf("seed: reading %s: %w", l.path, err)
	}

	var doc model.Posts
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("seed: parsing %s: %w", l.path, err)
	}
	if len(doc.Posts) == 0 {
		return nil, ErrEmptySeed
	}

	// Seed records are new rows whatever the file says about versions.
	for i := range doc.Posts {
		doc.Posts[i].Version = nil
	}
	return doc.Posts, nil
}

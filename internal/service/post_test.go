package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/sakif/posts-api/internal/apperror"
	"github.com/sakif/posts-api/internal/model"
)

// =========================================================================
// MOCK REPOSITORY
// =========================================================================
//
// mockPostRepo implements repository.PostRepository in memory. It follows the
// same rules as the real stores (inserts start at version 0, updates must
// carry the stored version and bump it), so the service is tested against
// realistic behaviour without a database.

type mockPostRepo struct {
	posts  map[int64]model.Post
	nextID int64
	saves  int // number of Save calls that reached the store

	// failSave, when set, is returned by the next Save call.
	failSave error
}

func newMockRepo() *mockPostRepo {
	return &mockPostRepo{posts: make(map[int64]model.Post)}
}

func (m *mockPostRepo) FindAll(_ context.Context) ([]model.Post, error) {
	result := make([]model.Post, 0, len(m.posts))
	for _, p := range m.posts {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockPostRepo) FindByID(_ context.Context, id int64) (*model.Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return nil, apperror.NotFound("post", id)
	}
	return &p, nil
}

func (m *mockPostRepo) FindByTitle(ctx context.Context, title string) (*model.Post, error) {
	all, _ := m.FindAll(ctx)
	for _, p := range all {
		if p.Title == title {
			return &p, nil
		}
	}
	return nil, apperror.NotFound("post", title)
}

func (m *mockPostRepo) Save(_ context.Context, post model.Post) (*model.Post, error) {
	m.saves++
	if m.failSave != nil {
		err := m.failSave
		m.failSave = nil
		return nil, err
	}

	if post.IsNew() {
		if post.ID == 0 {
			m.nextID++
			post.ID = m.nextID
		}
		post.Version = model.VersionOf(0)
		m.posts[post.ID] = post
		return &post, nil
	}

	stored, ok := m.posts[post.ID]
	if !ok {
		return nil, apperror.NotFound("post", post.ID)
	}
	if *stored.Version != *post.Version {
		return nil, apperror.StaleVersion("post", post.ID, *post.Version)
	}
	post.Version = model.VersionOf(*post.Version + 1)
	m.posts[post.ID] = post
	return &post, nil
}

func (m *mockPostRepo) SaveAll(ctx context.Context, posts []model.Post) ([]model.Post, error) {
	saved := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		s, err := m.Save(ctx, p)
		if err != nil {
			return nil, err
		}
		saved = append(saved, *s)
	}
	return saved, nil
}

func (m *mockPostRepo) DeleteByID(_ context.Context, id int64) error {
	delete(m.posts, id)
	return nil
}

func (m *mockPostRepo) Count(_ context.Context) (int64, error) {
	return int64(len(m.posts)), nil
}

// =========================================================================
// TEST HELPER
// =========================================================================

func newTestService(t *testing.T) (*PostService, *mockPostRepo) {
	t.Helper()
	repo := newMockRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPostService(repo, logger), repo
}

func mustCreate(t *testing.T, svc *PostService, userID int64, title, body string) *model.Post {
	t.Helper()
	p, err := svc.Create(context.Background(), model.Post{UserID: userID, Title: title, Body: body})
	if err != nil {
		t.Fatalf("setup: Create() error = %v", err)
	}
	return p
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreate_Success(t *testing.T) {
	svc, _ := newTestService(t)

	post, err := svc.Create(context.Background(), model.Post{
		UserID: 1,
		Title:  "Hello, World!",
		Body:   "This is my first post.",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if post.ID == 0 {
		t.Error("expected post to have an id")
	}
	if post.UserID != 1 {
		t.Errorf("UserID = %d, want 1", post.UserID)
	}

	found, err := svc.Get(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found.Title != "Hello, World!" || found.Body != "This is my first post." {
		t.Errorf("Get() = %+v, want created content", found)
	}
}

func TestCreate_IgnoresClientIDAndVersion(t *testing.T) {
	svc, _ := newTestService(t)

	post, err := svc.Create(context.Background(), model.Post{
		ID:      500,
		Title:   "t",
		Body:    "b",
		Version: model.VersionOf(41),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if post.ID == 500 {
		t.Error("Create() kept the client-supplied id")
	}
	if post.Version == nil || *post.Version != 0 {
		t.Errorf("Version = %v, want store-assigned 0", post.Version)
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name       string
		post       model.Post
		wantFields []string
	}{
		{name: "empty title", post: model.Post{Body: "b"}, wantFields: []string{"title"}},
		{name: "empty body", post: model.Post{Title: "t"}, wantFields: []string{"body"}},
		{name: "both empty", post: model.Post{}, wantFields: []string{"title", "body"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService(t)

			_, err := svc.Create(context.Background(), tt.post)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}

			var appErr *apperror.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("error %T is not an *AppError", err)
			}
			for _, f := range tt.wantFields {
				if _, ok := appErr.Fields[f]; !ok {
					t.Errorf("Fields = %v, missing %q", appErr.Fields, f)
				}
			}
			if repo.saves != 0 {
				t.Errorf("store saw %d saves, want 0", repo.saves)
			}
		})
	}
}

// =========================================================================
// GET / LIST TESTS
// =========================================================================

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), 404)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	svc, _ := newTestService(t)

	posts, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("List() returned %d posts, want 0", len(posts))
	}

	mustCreate(t, svc, 1, "a", "a")
	mustCreate(t, svc, 1, "b", "b")

	posts, err = svc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(posts) != 2 {
		t.Errorf("List() returned %d posts, want 2", len(posts))
	}
}

func TestListByTitle(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, 1, "Hello, World!", "body")

	found, err := svc.ListByTitle(context.Background(), "Hello, World!")
	if err != nil {
		t.Fatalf("ListByTitle() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("ListByTitle() returned %d posts, want 1", len(found))
	}

	missing, err := svc.ListByTitle(context.Background(), "nope")
	if err != nil {
		t.Fatalf("ListByTitle() error = %v", err)
	}
	if missing == nil || len(missing) != 0 {
		t.Errorf("ListByTitle() = %v, want empty non-nil slice", missing)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdate_ReplacesContentOnly(t *testing.T) {
	svc, _ := newTestService(t)
	created := mustCreate(t, svc, 1, "Hello, World!", "This is my first post.")

	// The request tries to move the post to another user and forge a version.
	updated, err := svc.Update(context.Background(), created.ID, model.Post{
		ID:      999,
		UserID:  77,
		Title:   "Edited",
		Body:    "Edited body",
		Version: model.VersionOf(123),
	}, nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.ID != created.ID {
		t.Errorf("ID = %d, want %d", updated.ID, created.ID)
	}
	if updated.UserID != 1 {
		t.Errorf("UserID = %d, want stored 1", updated.UserID)
	}
	if updated.Title != "Edited" || updated.Body != "Edited body" {
		t.Errorf("content = %q/%q, want Edited/Edited body", updated.Title, updated.Body)
	}
	if *updated.Version != *created.Version+1 {
		t.Errorf("Version = %d, want stored version + 1 = %d", *updated.Version, *created.Version+1)
	}
}

func TestUpdate_NotFoundWritesNothing(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.Update(context.Background(), 999, model.Post{Title: "t", Body: "b"}, nil)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if repo.saves != 0 {
		t.Errorf("store saw %d saves, want 0", repo.saves)
	}
}

func TestUpdate_NotFoundBeatsValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Update(context.Background(), 999, model.Post{}, nil)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdate_Validation(t *testing.T) {
	svc, repo := newTestService(t)
	created := mustCreate(t, svc, 1, "t", "b")
	saves := repo.saves

	_, err := svc.Update(context.Background(), created.ID, model.Post{Title: "", Body: "b"}, nil)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if repo.saves != saves {
		t.Error("invalid update reached the store")
	}
}

func TestUpdate_ExpectedVersion(t *testing.T) {
	svc, repo := newTestService(t)
	created := mustCreate(t, svc, 1, "t", "b")

	// Matching version succeeds.
	updated, err := svc.Update(context.Background(), created.ID, model.Post{Title: "t2", Body: "b2"}, model.VersionOf(0))
	if err != nil {
		t.Fatalf("Update() with current version error = %v", err)
	}

	// Version 0 is now stale.
	saves := repo.saves
	_, err = svc.Update(context.Background(), created.ID, model.Post{Title: "t3", Body: "b3"}, model.VersionOf(0))
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Update() with stale version error = %v, want ErrConflict", err)
	}
	if repo.saves != saves {
		t.Error("stale update reached the store")
	}

	stored, _ := svc.Get(context.Background(), created.ID)
	if stored.Title != updated.Title {
		t.Errorf("Title = %q, want %q", stored.Title, updated.Title)
	}
}

func TestUpdate_ConcurrentWriterConflicts(t *testing.T) {
	svc, repo := newTestService(t)
	created := mustCreate(t, svc, 1, "t", "b")

	// Simulate another request committing between our read and our write.
	repo.failSave = apperror.StaleVersion("post", created.ID, 0)

	_, err := svc.Update(context.Background(), created.ID, model.Post{Title: "x", Body: "y"}, nil)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDelete(t *testing.T) {
	svc, _ := newTestService(t)
	created := mustCreate(t, svc, 1, "to delete", "b")

	if err := svc.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := svc.Get(context.Background(), created.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("after delete: error = %v, want ErrNotFound", err)
	}
}

func TestDelete_MissingSucceeds(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.Delete(context.Background(), 12345); err != nil {
		t.Errorf("Delete() on missing id error = %v, want nil", err)
	}
}

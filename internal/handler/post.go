package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/posts-api/internal/model"
)

// maxBodyBytes caps request bodies. A post is a title and a body, so 1 MiB is
// generous.
const maxBodyBytes = 1 << 20

// PostService is what PostHandler needs from the business layer.
//
// ACCEPT INTERFACES:
// The handler declares the methods it calls instead of importing
// *service.PostService directly. *service.PostService satisfies it in
// production; post_test.go passes a hand-written fake.
type PostService interface {
	List(ctx context.Context) ([]model.Post, error)
	ListByTitle(ctx context.Context, title string) ([]model.Post, error)
	Get(ctx context.Context, id int64) (*model.Post, error)
	Create(ctx context.Context, post model.Post) (*model.Post, error)
	Update(ctx context.Context, id int64, req model.Post, expectedVersion *int64) (*model.Post, error)
	Delete(ctx context.Context, id int64) error
}

// PostHandler serves the /api/posts resource.
type PostHandler struct {
	svc    PostService
	logger *slog.Logger
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(svc PostService, logger *slog.Logger) *PostHandler {
	return &PostHandler{svc: svc, logger: logger}
}

// Routes registers the post endpoints on r. The caller decides the prefix:
//
//	r.Route("/api/posts", postHandler.Routes)
//
// GET    /             → HandleList
// GET    /{id}         → HandleGet
// POST   /             → HandleCreate
// PUT    /{id}         → HandleUpdate
// DELETE /{id}         → HandleDelete
func (h *PostHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Get("/{id}", h.HandleGet)
	r.Put("/{id}", h.HandleUpdate)
	r.Delete("/{id}", h.HandleDelete)
}

// HandleList returns every post as a JSON array.
//
// HTTP: GET /api/posts
// HTTP: GET /api/posts?title=Hello%2C%20World!
//
// With a title query parameter the array holds the post with exactly that
// title, or nothing. The response is always an array, never null.
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var (
		posts []model.Post
		err   error
	)

	if title, ok := r.URL.Query()["title"]; ok {
		posts, err = h.svc.ListByTitle(r.Context(), title[0])
	} else {
		posts, err = h.svc.List(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if posts == nil {
		posts = []model.Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

// HandleGet returns one post.
//
// HTTP: GET /api/posts/{id}
//
// The ETag header carries the post's version, so a client can send it back
// as If-Match on the next PUT.
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	post, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	setETag(w, post)
	writeJSON(w, http.StatusOK, post)
}

// HandleCreate stores a new post.
//
// HTTP: POST /api/posts
// REQUEST BODY: {"userId": 1, "title": "Hello", "body": "World"}
//
// Any id or version in the body is ignored. The response is 201 with the
// stored post and a Location header pointing at it.
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req model.Post
	if !h.decode(w, r, &req) {
		return
	}

	post, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+strconv.FormatInt(post.ID, 10))
	setETag(w, post)
	writeJSON(w, http.StatusCreated, post)
}

// HandleUpdate replaces a post's title and body.
//
// HTTP: PUT /api/posts/{id}
// REQUEST BODY: {"title": "New title", "body": "New body"}
// OPTIONAL HEADER: If-Match: "3"
//
// userId, id and version in the body are ignored; only title and body change.
//
//	404 → no post with that id (nothing is written)
//	400 → malformed JSON or a blank title/body
//	409 → the post changed since the client read it
func (h *PostHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	expected, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		writeBadRequest(w, "", "If-Match must be a quoted post version")
		return
	}

	var req model.Post
	if !h.decode(w, r, &req) {
		return
	}

	post, err := h.svc.Update(r.Context(), id, req, expected)
	if err != nil {
		writeError(w, err)
		return
	}

	setETag(w, post)
	writeJSON(w, http.StatusOK, post)
}

// HandleDelete removes a post.
//
// HTTP: DELETE /api/posts/{id}
//
// Always 204 No Content, whether or not the post existed.
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decode reads a single JSON object from the request body into dst.
// It writes a 400 and returns false when the body is not valid JSON.
func (h *PostHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("invalid post JSON", slog.String("error", err.Error()))

		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeBadRequest(w, "", "request body too large")
		case errors.Is(err, io.EOF):
			writeBadRequest(w, "", "request body is empty")
		default:
			writeBadRequest(w, "", "invalid JSON body")
		}
		return false
	}
	return true
}

// parseID reads the {id} URL parameter. Ids are positive integers; anything
// else is a 400.
func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// setETag exposes the post's version as a strong entity tag: version 3 → "3".
func setETag(w http.ResponseWriter, post *model.Post) {
	if post.Version != nil {
		w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(*post.Version, 10)))
	}
}

// parseIfMatch turns an If-Match header into an expected version.
// An absent header or "*" means "any version" and returns nil.
// A weak tag (W/"3") is accepted the same as "3".
func parseIfMatch(header string) (*int64, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return nil, nil
	}

	tag := strings.TrimPrefix(header, "W/")
	if unquoted, err := strconv.Unquote(tag); err == nil {
		tag = unquoted
	}

	v, err := strconv.ParseInt(tag, 10, 64)
	if err != nil {
		return nil, err
	}
	return model.VersionOf(v), nil
}

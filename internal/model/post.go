// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data: values that get copied when
// passed around, which is what lets Post behave like an immutable record.
package model

// Post represents a single blog-style post.
//
// The `json:"..."` tags fix the wire names (id, userId, title, body, version).
// The `validate:"..."` tags are read by go-playground/validator in the service
// layer; the handler never checks fields itself.
//
// WHY *int64 FOR VERSION?
// Version is the optimistic-lock token. A nil pointer means "this post has
// never been stored" and serialises as JSON null. Once the store has written
// the row, Version points at the row's current version (0 after insert,
// incremented by every successful update).
type Post struct {
	ID      int64  `json:"id"`
	UserID  int64  `json:"userId"`
	Title   string `json:"title" validate:"required"`
	Body    string `json:"body" validate:"required"`
	Version *int64 `json:"version"`
}

// Posts is the envelope used by the seed file: {"posts": [...]}.
type Posts struct {
	Posts []Post `json:"posts"`
}

// IsNew reports whether the post has not been persisted yet.
// Repositories insert new posts and run a version-checked update otherwise.
func (p Post) IsNew() bool {
	return p.Version == nil
}

// WithContent returns a copy of p carrying the given title and body.
//
// VALUE RECEIVER = NEW VALUE:
// p is a copy, so changing its fields never touches the caller's Post.
// ID, UserID and Version come from the receiver; this is how an update keeps
// the stored identity, owner and lock token no matter what the request sent.
func (p Post) WithContent(title, body string) Post {
	p.Title = title
	p.Body = body
	if p.Version != nil {
		v := *p.Version
		p.Version = &v
	}
	return p
}

// VersionOf returns a pointer to v. Handy for building posts in tests and
// when parsing an If-Match header.
func VersionOf(v int64) *int64 {
	return &v
}

package canonical

import (
	"context"
	"errors"
	"net/http"
)

// ErrNotFound is returned by collaborators when a lookup matched nothing.
var ErrNotFound = errors.New("canonical: not found")

// Entities looks up the content a request refers to.
// Implementations return ErrNotFound for missing entities; any other error is
// treated the same way by the resolver but logged.
type Entities interface {
	// Post returns the post with the given id.
	Post(ctx context.Context, id int64) (*Post, error)
	// Permalink returns the canonical URL of the post with the given id.
	Permalink(ctx context.Context, id int64) (string, error)
	// CategoryByPath returns the category at the given slash separated slug
	// path.
	CategoryByPath(ctx context.Context, path string) (*Term, error)
	// HasTerm reports whether the post is classified under the term.
	HasTerm(ctx context.Context, postID, termID int64, taxonomy string) (bool, error)
	// Author returns the user with the given id.
	Author(ctx context.Context, id int64) (*Author, error)
	// AuthorHasPublished reports whether the user has any published post.
	AuthorHasPublished(ctx context.Context, id int64) (bool, error)
}

// Guesser makes a best effort guess at the permalink a request that matched
// nothing was meant for.
// It returns the empty string if it has no guess.
type Guesser interface {
	Guess(ctx context.Context, req *Request, q *Query) (string, error)
}

// The GuesserFunc type is an adapter to allow the use of ordinary functions as
// guessers.
type GuesserFunc func(ctx context.Context, req *Request, q *Query) (string, error)

// Guess calls f(ctx, req, q).
func (f GuesserFunc) Guess(ctx context.Context, req *Request, q *Query) (string, error) {
	return f(ctx, req, q)
}

// PreviewVerifier reports whether nonce authorizes a preview of the post id.
type PreviewVerifier func(id int64, nonce string) bool

// Veto is consulted before a redirect is issued.
// It receives the computed redirect and the requested URL and returns the URL
// to redirect to instead, or false to cancel the redirect.
type Veto func(redirect, requested string) (string, bool)

// Classifier parses an incoming request into a Query.
type Classifier interface {
	Classify(ctx context.Context, r *http.Request) (*Query, error)
}

// noEntities is a site without content.
type noEntities struct{}

func (noEntities) Post(context.Context, int64) (*Post, error) {
	return nil, ErrNotFound
}

func (noEntities) Permalink(context.Context, int64) (string, error) {
	return "", ErrNotFound
}

func (noEntities) CategoryByPath(context.Context, string) (*Term, error) {
	return nil, ErrNotFound
}

func (noEntities) HasTerm(context.Context, int64, int64, string) (bool, error) {
	return false, nil
}

func (noEntities) Author(context.Context, int64) (*Author, error) {
	return nil, ErrNotFound
}

func (noEntities) AuthorHasPublished(context.Context, int64) (bool, error) {
	return false, nil
}

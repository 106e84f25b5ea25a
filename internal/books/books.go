// Package books supplies book metadata for posting: a catalog of titles to
// promote, enriched through the Google Books API.
package books

import (
	"context"
	"errors"
)

// ErrNoCandidate signals that every catalog entry is excluded from posting.
var ErrNoCandidate = errors.New("no unposted candidate")

// Book is the normalized metadata for one book. Immutable once fetched.
type Book struct {
	ID            string
	Title         string
	Authors       string
	Publisher     string
	PublishedYear string
	Category      string
	ISBN          string
	ImageURL      string
}

// Source yields the next book eligible for posting.
type Source interface {
	// NextUnposted returns the first book whose id is not in exclude, or
	// ErrNoCandidate when none remains.
	NextUnposted(ctx context.Context, exclude map[string]bool) (*Book, error)
}

package books

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// CatalogEntry is one book listed in the catalog file.
type CatalogEntry struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	ISBN   string `json:"isbn,omitempty"`
}

// Catalog is a Source backed by a JSON file of books to promote, enriched
// through the Google Books API when available.
type Catalog struct {
	entries []CatalogEntry
	google  *GoogleClient
}

// CatalogConfig holds configuration for the catalog source.
type CatalogConfig struct {
	Path   string
	Google *GoogleClient // optional; nil disables enrichment
}

// LoadCatalog reads the catalog file and validates its entries.
func LoadCatalog(cfg CatalogConfig) (*Catalog, error) {
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var entries []CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	for i := range entries {
		if entries[i].Title == "" {
			return nil, fmt.Errorf("catalog entry %d has no title", i)
		}
		if entries[i].ID == "" {
			entries[i].ID = deriveID(entries[i])
		}
	}

	return &Catalog{entries: entries, google: cfg.Google}, nil
}

// NextUnposted returns the first catalog book not in exclude.
func (c *Catalog) NextUnposted(ctx context.Context, exclude map[string]bool) (*Book, error) {
	for _, entry := range c.entries {
		if exclude[entry.ID] {
			continue
		}
		return c.resolve(ctx, entry), nil
	}
	return nil, ErrNoCandidate
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// resolve enriches a catalog entry through Google Books. A failed lookup is
// not fatal: the catalog fields alone are enough to post.
func (c *Catalog) resolve(ctx context.Context, entry CatalogEntry) *Book {
	fallback := &Book{
		ID:      entry.ID,
		Title:   entry.Title,
		Authors: entry.Author,
		ISBN:    entry.ISBN,
	}

	if c.google == nil {
		return fallback
	}

	book, err := c.google.Lookup(ctx, entry.Title, entry.Author)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("metadata lookup failed, using catalog fields",
				"book_id", entry.ID, "error", err)
		}
		return fallback
	}

	// The catalog id stays authoritative so history dedup keys stay stable
	book.ID = entry.ID
	if book.ISBN == "" {
		book.ISBN = entry.ISBN
	}
	return book
}

// deriveID builds a stable id for entries that don't declare one.
func deriveID(entry CatalogEntry) string {
	if entry.ISBN != "" {
		return "isbn:" + entry.ISBN
	}
	slug := strings.ToLower(strings.TrimSpace(entry.Title))
	slug = strings.Join(strings.Fields(slug), "-")
	return "title:" + slug
}

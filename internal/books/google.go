package books

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultGoogleBooksURL = "https://www.googleapis.com/books/v1"

// ErrNotFound signals that the metadata lookup matched no book.
var ErrNotFound = errors.New("book not found")

// GoogleClient queries the Google Books volumes API.
type GoogleClient struct {
	client *resty.Client
	apiKey string
}

// GoogleConfig holds configuration for the Google Books client.
type GoogleConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint, used in tests.
	BaseURL string
}

// NewGoogleClient creates a new Google Books client.
func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGoogleBooksURL
	}
	return &GoogleClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15 * time.Second),
		apiKey: cfg.APIKey,
	}
}

type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		ID         string     `json:"id"`
		VolumeInfo volumeInfo `json:"volumeInfo"`
	} `json:"items"`
}

type volumeInfo struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Publisher     string   `json:"publisher"`
	PublishedDate string   `json:"publishedDate"`
	Categories    []string `json:"categories"`
	ImageLinks    struct {
		Thumbnail string `json:"thumbnail"`
	} `json:"imageLinks"`
	IndustryIdentifiers []struct {
		Type       string `json:"type"`
		Identifier string `json:"identifier"`
	} `json:"industryIdentifiers"`
}

// Lookup searches for a book by title (and optionally author) and returns
// the most relevant match.
func (g *GoogleClient) Lookup(ctx context.Context, title, author string) (*Book, error) {
	query := fmt.Sprintf("intitle:%q", title)
	if author != "" {
		query += fmt.Sprintf(" inauthor:%q", author)
	}

	params := map[string]string{
		"q":            query,
		"langRestrict": "ja",
		"maxResults":   "5",
		"orderBy":      "relevance",
		"printType":    "BOOKS",
	}
	if g.apiKey != "" {
		params["key"] = g.apiKey
	}

	var result volumesResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&result).
		Get("/volumes")
	if err != nil {
		return nil, fmt.Errorf("query google books: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("google books returned status %d", resp.StatusCode())
	}
	if len(result.Items) == 0 {
		return nil, ErrNotFound
	}

	// Prefer an exact title match over the first relevance hit
	best := result.Items[0]
	for _, item := range result.Items {
		if strings.EqualFold(item.VolumeInfo.Title, title) {
			best = item
			break
		}
	}

	info := best.VolumeInfo
	book := &Book{
		ID:        best.ID,
		Title:     info.Title,
		Authors:   strings.Join(info.Authors, ", "),
		Publisher: info.Publisher,
		// Higher zoom gives a usable cover resolution
		ImageURL: strings.Replace(info.ImageLinks.Thumbnail, "zoom=1", "zoom=2", 1),
	}
	if len(info.PublishedDate) >= 4 {
		book.PublishedYear = info.PublishedDate[:4]
	}
	if len(info.Categories) > 0 {
		book.Category = info.Categories[0]
	}
	for _, id := range info.IndustryIdentifiers {
		if id.Type == "ISBN_13" || (id.Type == "ISBN_10" && book.ISBN == "") {
			book.ISBN = id.Identifier
		}
	}
	return book, nil
}

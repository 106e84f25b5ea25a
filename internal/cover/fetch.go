// Package cover retrieves book cover images and renders the square
// promotional canvas that gets posted.
package cover

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/ayakin/bookposter/internal/books"
)

const (
	defaultOpenBDURL = "https://api.openbd.jp"
	defaultAmazonURL = "https://www.amazon.co.jp"

	// Desktop UA; the Amazon search page serves a stripped layout otherwise.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

var thumbSuffixRe = regexp.MustCompile(`\.[^./]+\.jpg$`)

// Fetcher downloads cover images, trying OpenBD by ISBN first and falling
// back to scraping the Amazon search page.
type Fetcher struct {
	client    *resty.Client
	limiter   *rate.Limiter
	openBDURL string
	amazonURL string
}

// FetcherConfig holds configuration for the cover fetcher.
type FetcherConfig struct {
	// OpenBDURL and AmazonURL override the endpoints, used in tests.
	OpenBDURL string
	AmazonURL string
}

// NewFetcher creates a new cover fetcher. Outbound requests are paced to one
// every two seconds to stay polite with the upstream sites.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	openBDURL := cfg.OpenBDURL
	if openBDURL == "" {
		openBDURL = defaultOpenBDURL
	}
	amazonURL := cfg.AmazonURL
	if amazonURL == "" {
		amazonURL = defaultAmazonURL
	}
	return &Fetcher{
		client: resty.New().
			SetTimeout(20 * time.Second).
			SetHeader("User-Agent", userAgent),
		limiter:   rate.NewLimiter(rate.Every(2*time.Second), 1),
		openBDURL: openBDURL,
		amazonURL: amazonURL,
	}
}

// FetchCover returns the raw cover image for a book.
func (f *Fetcher) FetchCover(ctx context.Context, book *books.Book) ([]byte, error) {
	if book.ImageURL != "" {
		if data, err := f.download(ctx, book.ImageURL); err == nil {
			return data, nil
		}
	}

	if book.ISBN != "" {
		if coverURL, err := f.openBDCover(ctx, book.ISBN); err == nil && coverURL != "" {
			if data, err := f.download(ctx, coverURL); err == nil {
				return data, nil
			}
		}
	}

	return f.amazonCover(ctx, book.Title, book.Authors)
}

type openBDRecord struct {
	Summary struct {
		Cover string `json:"cover"`
	} `json:"summary"`
}

// openBDCover looks up the cover URL for an ISBN via OpenBD.
func (f *Fetcher) openBDCover(ctx context.Context, isbn string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var records []openBDRecord
	resp, err := f.client.R().
		SetContext(ctx).
		SetResult(&records).
		Get(f.openBDURL + "/v1/get/" + url.PathEscape(isbn))
	if err != nil {
		return "", fmt.Errorf("query openbd: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("openbd returned status %d", resp.StatusCode())
	}
	if len(records) == 0 {
		return "", fmt.Errorf("openbd has no record for isbn %s", isbn)
	}
	return records[0].Summary.Cover, nil
}

// amazonCover scrapes the first product image off the Amazon book search.
func (f *Fetcher) amazonCover(ctx context.Context, title, author string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := title
	if author != "" {
		query += " " + author
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"k": query, "i": "stripbooks"}).
		Get(f.amazonURL + "/s")
	if err != nil {
		return nil, fmt.Errorf("search amazon: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("amazon search returned status %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("parse amazon search page: %w", err)
	}

	src, ok := doc.Find("img.s-image").First().Attr("src")
	if !ok || src == "" {
		return nil, fmt.Errorf("no cover image found for %q", title)
	}

	// Try the high-resolution variant first, fall back to the thumbnail
	if data, err := f.download(ctx, highResURL(src)); err == nil {
		return data, nil
	}
	return f.download(ctx, src)
}

func (f *Fetcher) download(ctx context.Context, imageURL string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := f.client.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("image download returned status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// highResURL rewrites an Amazon thumbnail URL to its SL1500 variant.
func highResURL(thumbURL string) string {
	base := thumbSuffixRe.ReplaceAllString(thumbURL, "")
	if base == thumbURL {
		return thumbURL
	}
	return base + ".SL1500.jpg"
}

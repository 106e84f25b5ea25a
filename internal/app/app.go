// Package app wires the application dependencies together.
package app

import (
	"context"
	"fmt"

	"github.com/ayakin/bookposter/internal/books"
	"github.com/ayakin/bookposter/internal/config"
	"github.com/ayakin/bookposter/internal/cover"
	"github.com/ayakin/bookposter/internal/db"
	"github.com/ayakin/bookposter/internal/publisher"
)

// App is the main application container holding all dependencies.
type App struct {
	Config    *config.Config
	Store     *db.Store
	Google    *books.GoogleClient
	Renderer  cover.Renderer
	Publisher publisher.Publisher
}

// New creates an application instance with the store opened and migrated.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := db.NewStore(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &App{
		Config:   cfg,
		Store:    store,
		Google:   books.NewGoogleClient(books.GoogleConfig{APIKey: cfg.GoogleBooksAPIKey}),
		Renderer: cover.NewSquareRenderer(cover.NewFetcher(cover.FetcherConfig{})),
		Publisher: publisher.NewInstagramPublisher(publisher.InstagramConfig{
			Username: cfg.InstagramUsername,
			Password: cfg.InstagramPassword,
		}),
	}, nil
}

// Catalog loads the configured book catalog with metadata enrichment.
func (a *App) Catalog() (*books.Catalog, error) {
	catalog, err := books.LoadCatalog(books.CatalogConfig{
		Path:   a.Config.CatalogPath,
		Google: a.Google,
	})
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return catalog, nil
}

// Close releases the resources held by the application.
func (a *App) Close() error {
	return a.Store.Close()
}

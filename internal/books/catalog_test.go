package books

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCatalog(t *testing.T) {
	t.Run("derives ids", func(t *testing.T) {
		path := writeCatalog(t, `[
			{"title": "こころ", "author": "夏目漱石", "isbn": "9784101010137"},
			{"title": "Snow Country", "author": "川端康成"},
			{"id": "custom-1", "title": "砂の女"}
		]`)

		catalog, err := LoadCatalog(CatalogConfig{Path: path})
		require.NoError(t, err)
		assert.Equal(t, 3, catalog.Len())
		assert.Equal(t, "isbn:9784101010137", catalog.entries[0].ID)
		assert.Equal(t, "title:snow-country", catalog.entries[1].ID)
		assert.Equal(t, "custom-1", catalog.entries[2].ID)
	})

	t.Run("rejects entries without title", func(t *testing.T) {
		path := writeCatalog(t, `[{"author": "誰か"}]`)
		_, err := LoadCatalog(CatalogConfig{Path: path})
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCatalog(CatalogConfig{Path: "/nonexistent/catalog.json"})
		assert.Error(t, err)
	})
}

func TestCatalog_NextUnposted(t *testing.T) {
	ctx := context.Background()
	path := writeCatalog(t, `[
		{"id": "b1", "title": "こころ"},
		{"id": "b2", "title": "雪国"},
		{"id": "b3", "title": "砂の女"}
	]`)

	catalog, err := LoadCatalog(CatalogConfig{Path: path})
	require.NoError(t, err)

	t.Run("skips excluded ids", func(t *testing.T) {
		book, err := catalog.NextUnposted(ctx, map[string]bool{"b1": true})
		require.NoError(t, err)
		assert.Equal(t, "b2", book.ID)
		assert.Equal(t, "雪国", book.Title)
	})

	t.Run("all excluded means no candidate", func(t *testing.T) {
		_, err := catalog.NextUnposted(ctx, map[string]bool{"b1": true, "b2": true, "b3": true})
		assert.ErrorIs(t, err, ErrNoCandidate)
	})

	t.Run("nil exclude returns first entry", func(t *testing.T) {
		book, err := catalog.NextUnposted(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "b1", book.ID)
	})
}

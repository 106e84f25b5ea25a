package books

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleClient_Lookup(t *testing.T) {
	t.Run("returns the most relevant match", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/volumes", r.URL.Path)
			assert.Contains(t, r.URL.Query().Get("q"), "intitle:")
			assert.Equal(t, "ja", r.URL.Query().Get("langRestrict"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"totalItems": 2,
				"items": [
					{"id": "vol-1", "volumeInfo": {
						"title": "こころ 解説書",
						"authors": ["誰か"],
						"publishedDate": "2001-05"
					}},
					{"id": "vol-2", "volumeInfo": {
						"title": "こころ",
						"authors": ["夏目漱石"],
						"publisher": "新潮社",
						"publishedDate": "1914",
						"categories": ["Fiction"],
						"imageLinks": {"thumbnail": "http://books.example/cover?zoom=1"},
						"industryIdentifiers": [
							{"type": "ISBN_10", "identifier": "4101010137"},
							{"type": "ISBN_13", "identifier": "9784101010137"}
						]
					}}
				]
			}`))
		}))
		defer server.Close()

		client := NewGoogleClient(GoogleConfig{BaseURL: server.URL})
		book, err := client.Lookup(context.Background(), "こころ", "夏目漱石")
		require.NoError(t, err)

		assert.Equal(t, "vol-2", book.ID)
		assert.Equal(t, "こころ", book.Title)
		assert.Equal(t, "夏目漱石", book.Authors)
		assert.Equal(t, "新潮社", book.Publisher)
		assert.Equal(t, "1914", book.PublishedYear)
		assert.Equal(t, "Fiction", book.Category)
		assert.Equal(t, "9784101010137", book.ISBN)
		assert.Equal(t, "http://books.example/cover?zoom=2", book.ImageURL)
	})

	t.Run("no items means not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"totalItems": 0}`))
		}))
		defer server.Close()

		client := NewGoogleClient(GoogleConfig{BaseURL: server.URL})
		_, err := client.Lookup(context.Background(), "存在しない本", "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("server error surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewGoogleClient(GoogleConfig{BaseURL: server.URL})
		_, err := client.Lookup(context.Background(), "こころ", "")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

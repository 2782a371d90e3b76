package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-shelter/ytfs/internal/config"
)

func TestHTTPResolverSearchDecodesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "cats", r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode(searchResponse{
			Items:      []searchResponseItem{{ID: "1", Title: "a cat video"}},
			NextCursor: "n1",
			HasNext:    true,
		})
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, srv.Client())
	page, err := r.Search(context.Background(), "cats", "", 20)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a cat video", page.Items[0].Title)
	assert.Equal(t, "n1", page.NextCursor)
	assert.True(t, page.HasNext)
}

func TestHTTPResolverResolveDecodesSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resolve", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("id"))
		_ = json.NewEncoder(w).Encode(resolveResponse{
			Sources:           []resolveResponseSource{{URL: "https://cdn.example/a.m4a", Bitrate: 128000}},
			DurationSeconds:   100,
			ContentLengthHint: 1600000,
		})
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, srv.Client())
	res, err := r.Resolve(context.Background(), "42", config.AudioOnly)
	require.NoError(t, err)
	require.Len(t, res.URLs, 1)
	assert.Equal(t, "https://cdn.example/a.m4a", res.URLs[0].URL)
	assert.Equal(t, int64(1600000), res.ContentLengthHint)
}

func TestHTTPResolverResolveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, srv.Client())
	_, err := r.Resolve(context.Background(), "42", config.AudioOnly)
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestHTTPResolverResolveEmptySourcesIsNotAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(resolveResponse{})
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, srv.Client())
	_, err := r.Resolve(context.Background(), "42", config.AudioOnly)
	assert.ErrorIs(t, err, ErrNotAvailable)
}

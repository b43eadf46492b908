package searxng

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bububa/atomic-orchestrator/components/search"
)

func startSearxngServer(t *testing.T, status int, results []resultItem) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "json", r.URL.Query().Get("format"))
		require.Equal(t, NewsCategory, r.URL.Query().Get("categories"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(searchResponse{
			Query:           r.URL.Query().Get("q"),
			NumberOfResults: len(results),
			Results:         results,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchWithCategory(t *testing.T) {
	items := []resultItem{
		{URL: "https://example.com/1", Title: "First", Content: "first snippet"},
		{URL: "", Title: "No url"},
		{URL: "https://example.com/2", Title: "Second", Content: "second snippet"},
		{URL: "https://example.com/3", Title: "Third"},
	}
	srv := startSearxngServer(t, http.StatusOK, items)
	p := New(WithBaseURL(srv.URL+"/"), WithCategory(NewsCategory))
	require.Equal(t, search.SearxNG, p.Kind())

	results, err := p.Search(context.Background(), "test query", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "First", results[0].Title)
	require.Equal(t, "first snippet", results[0].Snippet)
	require.Equal(t, "https://example.com/2", results[1].URL)
}

func TestSearchRateLimited(t *testing.T) {
	srv := startSearxngServer(t, http.StatusTooManyRequests, nil)
	p := New(WithBaseURL(srv.URL), WithCategory(NewsCategory))
	_, err := p.Search(context.Background(), "test query", 3)
	require.ErrorIs(t, err, search.ErrProviderUnavailable)
	var perr *search.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
}

func TestSearchInvalidRequest(t *testing.T) {
	p := New(WithBaseURL("http://localhost"))
	_, err := p.Search(context.Background(), "  ", 3)
	require.ErrorIs(t, err, search.ErrEmptyQuery)
	_, err = p.Search(context.Background(), "q", search.MaxLimit+1)
	require.ErrorIs(t, err, search.ErrInvalidLimit)
	_, err = New().Search(context.Background(), "q", 1)
	require.ErrorIs(t, err, search.ErrProviderUnavailable)
}

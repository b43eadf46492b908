package tavily

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bububa/atomic-orchestrator/components/search"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "secret", req.APIKey)
		require.Equal(t, AdvancedDepth, req.SearchDepth)
		require.Equal(t, 1, req.MaxResults)
		io.WriteString(w, `{"results":[
			{"title":"One","url":"https://example.com/1","content":"first","score":0.9},
			{"title":"Two","url":"https://example.com/2","content":"second","score":0.5}
		]}`)
	}))
	defer srv.Close()

	p := New(WithEndpoint(srv.URL), WithAPIKey("secret"), WithDepth(AdvancedDepth))
	results, err := p.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "first", results[0].Snippet)
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(WithEndpoint(srv.URL), WithAPIKey("secret")).Search(context.Background(), "q", 1)
	require.ErrorIs(t, err, search.ErrProviderUnavailable)
}

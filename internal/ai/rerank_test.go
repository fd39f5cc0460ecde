package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPRerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rerank", r.URL.Path)
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "rerank-v3.5", req.Model)
		require.Equal(t, "deductible", req.Query)
		require.Len(t, req.Documents, 3)
		require.Equal(t, 2, req.TopN)
		_, _ = w.Write([]byte(`{"results":[{"index":2,"relevance_score":0.91},{"index":0,"relevance_score":0.12}]}`))
	}))
	defer server.Close()

	p, err := NewRerankProvider("cohere", map[string]interface{}{"api_key": "k", "base_url": server.URL})
	require.NoError(t, err)
	rr := NewReranker(p, "rerank-v3.5")
	res, err := rr.Rerank(context.Background(), "deductible", []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	require.Equal(t, []RerankResult{{Index: 2, RelevanceScore: 0.91}, {Index: 0, RelevanceScore: 0.12}}, res)
}

func TestHTTPRerankRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p, err := NewRerankProvider("jina", map[string]interface{}{"api_key": "k", "base_url": server.URL})
	require.NoError(t, err)
	_, err = p.Rerank(context.Background(), "m", "q", []string{"a"}, 1)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestHTTPRerankMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	p, err := NewRerankProvider("cohere", map[string]interface{}{"api_key": "k", "base_url": server.URL})
	require.NoError(t, err)
	_, err = p.Rerank(context.Background(), "m", "q", []string{"a"}, 1)
	require.Error(t, err)
}

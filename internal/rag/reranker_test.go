package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/metrics"
	"github.com/xxxsen/docqa/internal/model"
)

type fakeRerankProvider struct {
	results []ai.RerankResult
	err     error
	block   bool
	calls   int
	docs    []string
}

func (f *fakeRerankProvider) Rerank(ctx context.Context, query string, documents []string, topN int) ([]ai.RerankResult, error) {
	f.calls++
	f.docs = documents
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.results, f.err
}

// candidates returns n chunks with strictly decreasing combined scores.
func candidates(n int) []model.Chunk {
	out := make([]model.Chunk, n)
	for i := range out {
		out[i] = model.Chunk{
			ID:            fmt.Sprintf("c%d", i),
			Content:       fmt.Sprintf("content %d", i),
			PageNumber:    i + 1,
			VectorScore:   0.9 - float64(i)*0.01,
			CombinedScore: 0.9 - float64(i)*0.02,
		}
	}
	return out
}

func TestRerankReordersAndKeepsScores(t *testing.T) {
	provider := &fakeRerankProvider{results: []ai.RerankResult{
		{Index: 7, RelevanceScore: 0.8},
		{Index: 2, RelevanceScore: 0.6},
		{Index: 0, RelevanceScore: 0.9},
	}}
	in := candidates(10)
	r := NewReranker(provider, DefaultConfig())
	out := r.Rerank(context.Background(), "q", in, 5)
	require.Equal(t, []string{"c0", "c7", "c2"}, chunkIDs(out))
	require.Equal(t, in[7].VectorScore, out[1].VectorScore)
	require.Equal(t, in[7].CombinedScore, out[1].CombinedScore)
	require.NotNil(t, out[1].RerankerScore)
	require.Equal(t, 0.8, *out[1].RerankerScore)
	require.Len(t, provider.docs, 10)
	for _, c := range in {
		require.Nil(t, c.RerankerScore)
	}
}

func TestRerankSmallSetIsUnchanged(t *testing.T) {
	provider := &fakeRerankProvider{}
	in := candidates(5)
	out := NewReranker(provider, DefaultConfig()).Rerank(context.Background(), "q", in, 5)
	require.Equal(t, in, out)
	require.Equal(t, 0, provider.calls)
}

func TestRerankFallbackOnBadResponses(t *testing.T) {
	cases := []struct {
		name    string
		results []ai.RerankResult
		err     error
	}{
		{"provider error", nil, errors.New("boom")},
		{"empty", nil, nil},
		{"out of range", []ai.RerankResult{{Index: 42, RelevanceScore: 0.5}}, nil},
		{"negative", []ai.RerankResult{{Index: -1, RelevanceScore: 0.5}}, nil},
		{"duplicate", []ai.RerankResult{{Index: 1, RelevanceScore: 0.5}, {Index: 1, RelevanceScore: 0.4}}, nil},
		{"nan", []ai.RerankResult{{Index: 1, RelevanceScore: math.NaN()}}, nil},
	}
	in := candidates(8)
	want := in[:5]
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReranker(&fakeRerankProvider{results: tc.results, err: tc.err}, DefaultConfig())
			out := r.Rerank(context.Background(), "q", in, 5)
			require.Equal(t, want, out)
		})
	}
}

func TestRerankTimeoutFallsBackToCombinedOrder(t *testing.T) {
	before := testutil.ToFloat64(metrics.RerankFallbackTotal.WithLabelValues(fallbackReasonTimeout))
	cfg := DefaultConfig()
	cfg.RerankTimeout = 20 * time.Millisecond
	in := candidates(12)
	// shuffle so the fallback has to sort
	in[0], in[11] = in[11], in[0]
	r := NewReranker(&fakeRerankProvider{block: true}, cfg)
	out := r.Rerank(context.Background(), "q", in, 5)
	require.Equal(t, []string{"c0", "c1", "c2", "c3", "c4"}, chunkIDs(out))
	for _, c := range out {
		require.Nil(t, c.RerankerScore)
	}
	after := testutil.ToFloat64(metrics.RerankFallbackTotal.WithLabelValues(fallbackReasonTimeout))
	require.Equal(t, before+1, after)
}

func TestRerankWithoutProvider(t *testing.T) {
	var r *Reranker
	out := r.Rerank(context.Background(), "q", candidates(8), 3)
	require.Equal(t, []string{"c0", "c1", "c2"}, chunkIDs(out))
}

func TestFallbackIsTotalAndDeterministic(t *testing.T) {
	for n := 0; n <= 12; n++ {
		for topN := 0; topN <= 7; topN++ {
			in := candidates(n)
			out := Fallback(in, topN)
			require.Len(t, out, min(topN, n))
			require.Equal(t, in[:len(out)], out)
			require.Equal(t, out, Fallback(in, topN))
		}
	}
	ties := []model.Chunk{{ID: "a", CombinedScore: 0.5}, {ID: "b", CombinedScore: 0.7}, {ID: "c", CombinedScore: 0.5}}
	require.Equal(t, []string{"b", "a", "c"}, chunkIDs(Fallback(ties, 3)))
}

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultCohereBaseURL = "https://api.cohere.com/v2"
	defaultJinaBaseURL   = "https://api.jina.ai/v1"
)

type rerankConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// httpRerankProvider calls a cross-encoder behind the /rerank endpoint shape
// shared by Cohere and Jina.
type httpRerankProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

func (p *httpRerankProvider) Name() string {
	return p.name
}

func (p *httpRerankProvider) Rerank(ctx context.Context, model string, query string, documents []string, topN int) ([]RerankResult, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/rerank"
	data, err := json.Marshal(rerankRequest{
		Model:     model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError(p.name, resp)
	}
	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode rerank response: %w", p.name, err)
	}
	results := make([]RerankResult, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, RerankResult{Index: r.Index, RelevanceScore: r.RelevanceScore})
	}
	return results, nil
}

func rerankFactory(name string, defaultBaseURL string) RerankProviderFactory {
	return func(args interface{}) (IRerankProvider, error) {
		cfg := &rerankConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		baseURL := strings.TrimSpace(cfg.BaseURL)
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		return &httpRerankProvider{
			name:    name,
			apiKey:  strings.TrimSpace(cfg.APIKey),
			baseURL: baseURL,
			client:  http.DefaultClient,
		}, nil
	}
}

func init() {
	RegisterRerank("cohere", rerankFactory("cohere", defaultCohereBaseURL))
	RegisterRerank("jina", rerankFactory("jina", defaultJinaBaseURL))
}

package ai

import (
	"context"
	"net/http"
	"strings"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	APIKey      string `json:"api_key"`
	BaseURL     string `json:"base_url"`
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
}

type openrouterProvider struct {
	chat *chatCompletionsClient
}

func (p *openrouterProvider) Name() string {
	return "openrouter"
}

func (p *openrouterProvider) Stream(ctx context.Context, model string, req *GenerateRequest) (TokenStream, error) {
	return p.chat.stream(ctx, model, req)
}

func createOpenRouterFactory(args interface{}) (IProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	return &openrouterProvider{
		chat: &chatCompletionsClient{
			name:    "openrouter",
			apiKey:  strings.TrimSpace(cfg.APIKey),
			baseURL: baseURL,
			headers: map[string]string{
				"HTTP-Referer": strings.TrimSpace(cfg.HTTPReferer),
				"X-Title":      strings.TrimSpace(cfg.XTitle),
			},
			client: http.DefaultClient,
		},
	}, nil
}

func init() {
	Register("openrouter", createOpenRouterFactory)
}

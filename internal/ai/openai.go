package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	maxSSELineSize       = 1 << 20
)

type openAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type openAIChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIChatMsg `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openAIChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

type openAIEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// chatCompletionsClient speaks the OpenAI chat completions protocol. It is
// shared by every OpenAI-compatible provider.
type chatCompletionsClient struct {
	name    string
	apiKey  string
	baseURL string
	headers map[string]string
	client  *http.Client
}

func (c *chatCompletionsClient) stream(ctx context.Context, model string, req *GenerateRequest) (TokenStream, error) {
	if c.apiKey == "" {
		return nil, ErrUnavailable
	}
	if req == nil {
		return nil, fmt.Errorf("generate request is nil")
	}
	endpoint := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	body := openAIChatRequest{
		Model:    model,
		Messages: toOpenAIMessages(req),
		Stream:   true,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range c.headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, c.name, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		return nil, statusError(c.name, resp)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &sseTokenStream{ctx: ctx, name: c.name, body: resp.Body, scanner: scanner}, nil
}

func toOpenAIMessages(req *GenerateRequest) []openAIChatMsg {
	msgs := make([]openAIChatMsg, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, openAIChatMsg{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openAIChatMsg{Role: m.Role, Content: m.Content})
	}
	return msgs
}

type sseTokenStream struct {
	ctx     context.Context
	name    string
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *sseTokenStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			s.done = true
			return "", io.EOF
		}
		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return "", fmt.Errorf("%s: decode stream chunk: %w", s.name, err)
		}
		if chunk.Error != nil {
			if fmt.Sprint(chunk.Error.Code) == "429" || strings.Contains(strings.ToLower(chunk.Error.Message), "rate limit") {
				return "", fmt.Errorf("%s: %s: %w", s.name, chunk.Error.Message, ErrRateLimited)
			}
			return "", fmt.Errorf("%s: stream error: %s", s.name, chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", transportError(s.ctx, s.name, err)
	}
	if err := s.ctx.Err(); err != nil {
		return "", transportError(s.ctx, s.name, err)
	}
	s.done = true
	return "", io.EOF
}

func (s *sseTokenStream) Close() error {
	return s.body.Close()
}

type openAIProvider struct {
	chat *chatCompletionsClient
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) Stream(ctx context.Context, model string, req *GenerateRequest) (TokenStream, error) {
	return p.chat.stream(ctx, model, req)
}

type openAIEmbedProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func (p *openAIEmbedProvider) Name() string {
	return "openai"
}

func (p *openAIEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/embeddings"
	data, err := json.Marshal(openAIEmbedRequest{Model: model, Input: text})
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
		return nil, transportError(ctx, p.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError(p.Name(), resp)
	}
	var out openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai response has no embeddings")
	}
	return out.Data[0].Embedding, nil
}

func openAIBaseURL(raw string) string {
	baseURL := strings.TrimSpace(raw)
	if baseURL == "" {
		return defaultOpenAIBaseURL
	}
	return baseURL
}

func createOpenAIFactory(args interface{}) (IProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &openAIProvider{
		chat: &chatCompletionsClient{
			name:    "openai",
			apiKey:  strings.TrimSpace(cfg.APIKey),
			baseURL: openAIBaseURL(cfg.BaseURL),
			client:  http.DefaultClient,
		},
	}, nil
}

func createOpenAIEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &openAIEmbedProvider{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: openAIBaseURL(cfg.BaseURL),
		client:  http.DefaultClient,
	}, nil
}

func init() {
	Register("openai", createOpenAIFactory)
	RegisterEmbed("openai", createOpenAIEmbedFactory)
}

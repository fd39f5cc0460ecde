package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string
	Content string
}

// GenerateRequest is a system instruction followed by the chat turns to send.
type GenerateRequest struct {
	System   string
	Messages []ChatMessage
}

// TokenStream yields generated text pieces in order. Recv returns io.EOF once
// the provider has finished.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

type IStreamGenerator interface {
	Stream(ctx context.Context, req *GenerateRequest) (TokenStream, error)
}

type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
}

type RerankResult struct {
	Index          int
	RelevanceScore float64
}

type IReranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)
}

type IProvider interface {
	Name() string
	Stream(ctx context.Context, model string, req *GenerateRequest) (TokenStream, error)
}

type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
}

type IRerankProvider interface {
	Name() string
	Rerank(ctx context.Context, model string, query string, documents []string, topN int) ([]RerankResult, error)
}

type generator struct {
	provider IProvider
	model    string
}

func NewGenerator(p IProvider, model string) IStreamGenerator {
	return &generator{provider: p, model: model}
}

func (g *generator) Stream(ctx context.Context, req *GenerateRequest) (TokenStream, error) {
	return g.provider.Stream(ctx, g.model, req)
}

type embedder struct {
	provider IEmbedProvider
	model    string
}

func NewEmbedder(p IEmbedProvider, model string) IEmbedder {
	return &embedder{provider: p, model: model}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return e.provider.Embed(ctx, e.model, text, taskType)
}

func (e *embedder) ModelName() string {
	return e.model
}

type reranker struct {
	provider IRerankProvider
	model    string
}

func NewReranker(p IRerankProvider, model string) IReranker {
	return &reranker{provider: p, model: model}
}

func (r *reranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	return r.provider.Rerank(ctx, r.model, query, documents, topN)
}

type ProviderFactory func(args interface{}) (IProvider, error)
type EmbedProviderFactory func(args interface{}) (IEmbedProvider, error)
type RerankProviderFactory func(args interface{}) (IRerankProvider, error)

var (
	registry       = map[string]ProviderFactory{}
	embedRegistry  = map[string]EmbedProviderFactory{}
	rerankRegistry = map[string]RerankProviderFactory{}
)

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func Register(name string, factory ProviderFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func RegisterEmbed(name string, factory EmbedProviderFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	embedRegistry[key] = factory
}

func RegisterRerank(name string, factory RerankProviderFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	rerankRegistry[key] = factory
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("embed provider is required")
	}
	factory := embedRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported embed provider: %s", name)
	}
	return factory(args)
}

func NewRerankProvider(name string, args interface{}) (IRerankProvider, error) {
	key := normalizeName(name)
	if key == "" {
		return nil, fmt.Errorf("rerank provider is required")
	}
	factory := rerankRegistry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported rerank provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type GeneratorEntry struct {
	Name      string
	Generator IStreamGenerator
}

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

type groupGenerator struct {
	items []GeneratorEntry
}

// NewGroupGenerator tries each generator in order. A generator is only
// abandoned before it has produced its first token; once text has been
// handed out the stream is committed to that generator.
func NewGroupGenerator(items []GeneratorEntry) IStreamGenerator {
	if len(items) == 0 {
		return nil
	}
	return &groupGenerator{items: items}
}

func (g *groupGenerator) Stream(ctx context.Context, req *GenerateRequest) (TokenStream, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Generator == nil {
			continue
		}
		stream, err := item.Generator.Stream(ctx, req)
		if err == nil {
			first, ferr := stream.Recv()
			if ferr == nil || errors.Is(ferr, io.EOF) {
				return &primedStream{TokenStream: stream, first: first, firstErr: ferr}, nil
			}
			_ = stream.Close()
			err = ferr
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("generator failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return nil, fmt.Errorf("generator not configured")
	}
	return nil, lastErr
}

// primedStream replays the token read while probing the generator.
type primedStream struct {
	TokenStream
	first    string
	firstErr error
	replayed bool
}

func (s *primedStream) Recv() (string, error) {
	if !s.replayed {
		s.replayed = true
		if s.firstErr != nil {
			return "", s.firstErr
		}
		return s.first, nil
	}
	return s.TokenStream.Recv()
}

type groupEmbedder struct {
	items []EmbedderEntry
}

func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	if len(items) == 0 {
		return nil
	}
	return &groupEmbedder{items: items}
}

func (g *groupEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		res, err := item.Embedder.Embed(ctx, text, taskType)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("embedder failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	return nil, lastErr
}

func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Name == "" {
			continue
		}
		names = append(names, item.Name)
	}
	if len(names) == 0 {
		return ""
	}
	return strings.Join(names, "|")
}

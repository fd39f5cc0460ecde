package ai

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type sliceStream struct {
	tokens []string
	err    error
	pos    int
	closed bool
}

func (s *sliceStream) Recv() (string, error) {
	if s.pos < len(s.tokens) {
		tok := s.tokens[s.pos]
		s.pos++
		return tok, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

type fakeGenerator struct {
	stream *sliceStream
	err    error
	calls  int
}

func (f *fakeGenerator) Stream(ctx context.Context, req *GenerateRequest) (TokenStream, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func TestGroupGeneratorFailsOverBeforeFirstToken(t *testing.T) {
	broken := &fakeGenerator{err: ErrUnavailable}
	silent := &sliceStream{err: ErrRateLimited}
	rateLimited := &fakeGenerator{stream: silent}
	ok := &fakeGenerator{stream: &sliceStream{tokens: []string{"a", "b"}}}
	gen := NewGroupGenerator([]GeneratorEntry{
		{Name: "broken", Generator: broken},
		{Name: "limited", Generator: rateLimited},
		{Name: "ok", Generator: ok},
	})
	stream, err := gen.Stream(context.Background(), &GenerateRequest{})
	require.NoError(t, err)
	text, err := drain(t, stream)
	require.NoError(t, err)
	require.Equal(t, "ab", text)
	require.True(t, silent.closed)
	require.Equal(t, 1, ok.calls)
}

func TestGroupGeneratorKeepsCommittedStream(t *testing.T) {
	first := &fakeGenerator{stream: &sliceStream{tokens: []string{"partial"}, err: ErrTimeout}}
	second := &fakeGenerator{stream: &sliceStream{tokens: []string{"never"}}}
	gen := NewGroupGenerator([]GeneratorEntry{{Name: "first", Generator: first}, {Name: "second", Generator: second}})
	stream, err := gen.Stream(context.Background(), &GenerateRequest{})
	require.NoError(t, err)
	text, err := drain(t, stream)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, "partial", text)
	require.Equal(t, 0, second.calls)
}

func TestGroupGeneratorAllFail(t *testing.T) {
	gen := NewGroupGenerator([]GeneratorEntry{
		{Name: "a", Generator: &fakeGenerator{err: ErrUnavailable}},
		{Name: "b", Generator: &fakeGenerator{err: ErrRateLimited}},
	})
	_, err := gen.Stream(context.Background(), &GenerateRequest{})
	require.ErrorIs(t, err, ErrRateLimited)
	require.Nil(t, NewGroupGenerator(nil))
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return f.vec, f.err
}

func (f *fakeEmbedder) ModelName() string { return "fake" }

func TestGroupEmbedder(t *testing.T) {
	emb := NewGroupEmbedder([]EmbedderEntry{
		{Name: "a", Embedder: &fakeEmbedder{err: errors.New("boom")}},
		{Name: "b", Embedder: &fakeEmbedder{vec: []float32{1}}},
	})
	vec, err := emb.Embed(context.Background(), "q", "")
	require.NoError(t, err)
	require.Equal(t, []float32{1}, vec)
	require.Equal(t, "a|b", emb.ModelName())
}
